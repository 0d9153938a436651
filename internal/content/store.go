// Package content stores the paid ration menus: recipe texts keyed by
// calorie level, day and meal. Admins edit rows; the bot assembles a
// day's meals into one message for paying users.
package content

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// MealType is one of the three slots a day menu is assembled from.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
)

func (m MealType) Valid() bool {
	switch m {
	case MealBreakfast, MealLunch, MealDinner:
		return true
	}
	return false
}

// mealOrder fixes the assembly order regardless of row order.
var mealOrder = []MealType{MealBreakfast, MealLunch, MealDinner}

var mealHeaders = map[MealType]string{
	MealBreakfast: "🍳 <b>Завтрак</b>",
	MealLunch:     "🍲 <b>Обед</b>",
	MealDinner:    "🍽 <b>Ужин</b>",
}

// Recipe is one editable cell of the ration grid.
type Recipe struct {
	Calories  int       `json:"calories"`
	Day       int       `json:"day"`
	Meal      MealType  `json:"meal_type"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// Store handles CRUD for the recipes table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save creates or overwrites the recipe for one (calories, day, meal) cell.
func (s *Store) Save(ctx context.Context, r Recipe) error {
	if !r.Meal.Valid() {
		return fmt.Errorf("unknown meal type %q", r.Meal)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipes (calories, day, meal_type, content, updated_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (calories, day, meal_type) DO UPDATE SET
			content = EXCLUDED.content,
			updated_at = NOW(),
			updated_by = EXCLUDED.updated_by`,
		r.Calories, r.Day, r.Meal, r.Content, r.UpdatedBy)
	return err
}

// Delete removes one cell. Returns false when nothing matched.
func (s *Store) Delete(ctx context.Context, calories, day int, meal MealType) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM recipes WHERE calories = $1 AND day = $2 AND meal_type = $3`,
		calories, day, meal)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Recipe returns one cell's text, or "" when the cell is empty.
func (s *Store) Recipe(ctx context.Context, calories, day int, meal MealType) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM recipes WHERE calories = $1 AND day = $2 AND meal_type = $3`,
		calories, day, meal).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return content, err
}

// AvailableCalories lists the calorie levels that have any content.
func (s *Store) AvailableCalories(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT calories FROM recipes ORDER BY calories`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var c int
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Days lists the day numbers filled in for a calorie level.
func (s *Store) Days(ctx context.Context, calories int) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT day FROM recipes WHERE calories = $1 ORDER BY day`, calories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DayMenu assembles a day's meals into one message, breakfast first. It
// returns "" when the day has no content at all; missing slots are skipped.
func (s *Store) DayMenu(ctx context.Context, calories, day int) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT meal_type, content FROM recipes WHERE calories = $1 AND day = $2`,
		calories, day)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	meals := make(map[MealType]string, len(mealOrder))
	for rows.Next() {
		var meal MealType
		var content string
		if err := rows.Scan(&meal, &content); err != nil {
			return "", err
		}
		meals[meal] = content
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(meals) == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 <b>Рацион на %d ккал, день %d</b>", calories, day)
	for _, meal := range mealOrder {
		content, ok := meals[meal]
		if !ok {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(mealHeaders[meal])
		b.WriteString("\n")
		b.WriteString(content)
	}
	return b.String(), nil
}

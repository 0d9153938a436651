package calculator

import (
	"context"
	"database/sql"
	"time"
)

// Store persists questionnaire results.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SavedResult is one stored questionnaire with its computed targets.
type SavedResult struct {
	ID        int64
	UserID    int64
	Input     Input
	Result    Result
	CreatedAt time.Time
}

// Save records a completed questionnaire.
func (s *Store) Save(ctx context.Context, userID int64, in Input, r Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calculator_results
			(user_id, gender, age, height_cm, weight_kg, activity, goal, calories, protein, fat, carbs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		userID, in.Gender, in.Age, in.HeightCm, in.WeightKg, in.Activity, in.Goal,
		r.Calories, r.Protein, r.Fat, r.Carbs)
	return err
}

// Latest returns the user's most recent result, or nil.
func (s *Store) Latest(ctx context.Context, userID int64) (*SavedResult, error) {
	var sr SavedResult
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, gender, age, height_cm, weight_kg, activity, goal,
			calories, protein, fat, carbs, created_at
		FROM calculator_results
		WHERE user_id = $1
		ORDER BY created_at DESC LIMIT 1`, userID).
		Scan(&sr.ID, &sr.UserID, &sr.Input.Gender, &sr.Input.Age, &sr.Input.HeightCm,
			&sr.Input.WeightKg, &sr.Input.Activity, &sr.Input.Goal,
			&sr.Result.Calories, &sr.Result.Protein, &sr.Result.Fat, &sr.Result.Carbs,
			&sr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

// CompletedSince counts finished questionnaires after the cutoff.
func (s *Store) CompletedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM calculator_results WHERE created_at >= $1`,
		since).Scan(&n)
	return n, err
}

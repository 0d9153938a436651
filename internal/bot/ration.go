package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/rationly/rationbot/internal/domain"
	"github.com/rationly/rationbot/internal/telegram"
)

func rationCalorieButtons(calories []int) []telegram.Button {
	buttons := make([]telegram.Button, 0, len(calories))
	for _, c := range calories {
		buttons = append(buttons, telegram.Button{
			Label: fmt.Sprintf("🔥 %d ккал", c),
			Data:  fmt.Sprintf("ration:cal:%d", c),
		})
	}
	return buttons
}

func rationDayButtons(calories int, days []int) []telegram.Button {
	buttons := make([]telegram.Button, 0, len(days)+1)
	for _, d := range days {
		buttons = append(buttons, telegram.Button{
			Label: fmt.Sprintf("День %d", d),
			Data:  fmt.Sprintf("ration:day:%d:%d", calories, d),
		})
	}
	buttons = append(buttons, telegram.Button{Label: "⬅️ Назад", Data: "ration:menu"})
	return buttons
}

// parseRationDay decodes the "<calories>:<day>" tail of a day button.
func parseRationDay(data string) (calories, day int, err error) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed ration day %q", data)
	}
	calories, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	day, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return calories, day, nil
}

// handleRation serves the paid ration navigation. Every branch re-checks the
// paid flag: the buttons outlive an approval being revoked.
func (b *Bot) handleRation(ctx context.Context, userID int64, data string) {
	paid, err := b.users.HasPaid(ctx, userID, domain.ProductMain)
	if err != nil {
		log.Printf("[Bot] paid check for %d: %v", userID, err)
		return
	}
	if !paid {
		denied := "⛔ <b>Доступ ограничен</b>\n\nРационы открываются после оплаты."
		if err := b.client.SendMessage(ctx, userID, denied); err != nil {
			log.Printf("[Bot] access denied notice %d: %v", userID, err)
		}
		b.handlePaymentClick(ctx, userID, domain.ProductMain)
		return
	}

	switch {
	case data == "menu":
		b.sendRationMenu(ctx, userID)

	case strings.HasPrefix(data, "cal:"):
		calories, err := strconv.Atoi(strings.TrimPrefix(data, "cal:"))
		if err != nil {
			return
		}
		b.sendRationDays(ctx, userID, calories)

	case strings.HasPrefix(data, "day:"):
		calories, day, err := parseRationDay(strings.TrimPrefix(data, "day:"))
		if err != nil {
			return
		}
		b.sendRationDay(ctx, userID, calories, day)
	}
}

func (b *Bot) sendRationMenu(ctx context.Context, userID int64) {
	calories, err := b.content.AvailableCalories(ctx)
	if err != nil {
		log.Printf("[Bot] list calories for %d: %v", userID, err)
		return
	}
	if len(calories) == 0 {
		b.sendText(ctx, userID, "Рационы пока наполняются, загляни чуть позже 🙌")
		return
	}
	text := "🔥 <b>Выбери калорийность рациона:</b>"
	if err := b.client.SendMessage(ctx, userID, text, rationCalorieButtons(calories)...); err != nil {
		log.Printf("[Bot] ration menu %d: %v", userID, err)
	}
}

func (b *Bot) sendRationDays(ctx context.Context, userID int64, calories int) {
	days, err := b.content.Days(ctx, calories)
	if err != nil {
		log.Printf("[Bot] list days for %d: %v", userID, err)
		return
	}
	if len(days) == 0 {
		b.sendText(ctx, userID, "Для этой калорийности пока нет рациона.")
		return
	}
	text := fmt.Sprintf("📅 <b>Рацион на %d ккал</b>\n\nВыбери день:", calories)
	if err := b.client.SendMessage(ctx, userID, text, rationDayButtons(calories, days)...); err != nil {
		log.Printf("[Bot] ration days %d: %v", userID, err)
	}
}

func (b *Bot) sendRationDay(ctx context.Context, userID int64, calories, day int) {
	menu, err := b.content.DayMenu(ctx, calories, day)
	if err != nil {
		log.Printf("[Bot] day menu %d/%d for %d: %v", calories, day, userID, err)
		return
	}
	if menu == "" {
		b.sendText(ctx, userID, "Рецепт не найден.")
		return
	}
	if err := b.client.SendMessage(ctx, userID, menu,
		telegram.Button{Label: "⬅️ К калорийностям", Data: "ration:menu"}); err != nil {
		log.Printf("[Bot] day menu send %d: %v", userID, err)
		return
	}
	b.events.Log(ctx, userID, domain.EventContentViewed, fmt.Sprintf("%d:%d", calories, day))
}

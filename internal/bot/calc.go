package bot

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/rationly/rationbot/internal/calculator"
	"github.com/rationly/rationbot/internal/domain"
	"github.com/rationly/rationbot/internal/telegram"
)

// calcStep is the questionnaire position.
type calcStep int

const (
	stepGender calcStep = iota
	stepAge
	stepHeight
	stepWeight
	stepActivity
	stepGoal
)

// calcSession is one user's in-flight questionnaire. Sessions live in memory
// only; a restart drops them and the user starts over with /calc.
type calcSession struct {
	step  calcStep
	input calculator.Input
}

func (b *Bot) session(userID int64) *calcSession {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()
	return b.sessions[userID]
}

func (b *Bot) setSession(userID int64, s *calcSession) {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()
	if s == nil {
		delete(b.sessions, userID)
	} else {
		b.sessions[userID] = s
	}
}

func (b *Bot) startCalculator(ctx context.Context, userID int64) {
	b.events.Log(ctx, userID, domain.EventCalculatorStarted, "")
	b.setSession(userID, &calcSession{step: stepGender})

	err := b.client.SendMessage(ctx, userID, "🧮 Посчитаем твою норму калорий!\n\nТы:",
		telegram.Button{Label: "👩 Женщина", Data: "calc:gender:female"},
		telegram.Button{Label: "👨 Мужчина", Data: "calc:gender:male"},
	)
	if err != nil {
		log.Printf("[Bot] calc start %d: %v", userID, err)
	}
}

// handleCalcCallback consumes the button steps: gender, activity, goal.
func (b *Bot) handleCalcCallback(ctx context.Context, userID int64, data string) {
	if data == "start" {
		b.startCalculator(ctx, userID)
		return
	}

	s := b.session(userID)
	if s == nil {
		b.sendText(ctx, userID, "Начни калькулятор заново: /calc")
		return
	}

	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return
	}
	kind, value := parts[0], parts[1]

	switch {
	case kind == "gender" && s.step == stepGender:
		s.input.Gender = calculator.Gender(value)
		s.step = stepAge
		b.sendText(ctx, userID, "Сколько тебе лет? Напиши числом.")

	case kind == "activity" && s.step == stepActivity:
		s.input.Activity = calculator.Activity(value)
		s.step = stepGoal
		if err := b.client.SendMessage(ctx, userID, "Какая цель?",
			telegram.Button{Label: "📉 Похудеть", Data: "calc:goal:lose"},
			telegram.Button{Label: "⚖️ Поддерживать", Data: "calc:goal:maintain"},
			telegram.Button{Label: "📈 Набрать", Data: "calc:goal:gain"},
		); err != nil {
			log.Printf("[Bot] calc goal prompt %d: %v", userID, err)
		}

	case kind == "goal" && s.step == stepGoal:
		s.input.Goal = calculator.Goal(value)
		b.finishCalculator(ctx, userID, s)
	}
}

// handleText consumes the numeric questionnaire steps. Outside a session,
// free text gets a gentle redirect to the menu.
func (b *Bot) handleText(ctx context.Context, userID int64, text string) {
	s := b.session(userID)
	if s == nil {
		b.sendText(ctx, userID, "Не совсем поняла 🙈 Напиши /start, чтобы открыть меню.")
		return
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(text, ",", ".")), 64)
	if err != nil {
		b.sendText(ctx, userID, "Напиши, пожалуйста, числом.")
		return
	}

	switch s.step {
	case stepAge:
		s.input.Age = int(value)
		s.step = stepHeight
		b.sendText(ctx, userID, "Какой у тебя рост в сантиметрах?")
	case stepHeight:
		s.input.HeightCm = value
		s.step = stepWeight
		b.sendText(ctx, userID, "И вес в килограммах?")
	case stepWeight:
		s.input.WeightKg = value
		s.step = stepActivity
		if err := b.client.SendMessage(ctx, userID, "Насколько ты активна?",
			telegram.Button{Label: "🛋 Сидячий образ жизни", Data: "calc:activity:low"},
			telegram.Button{Label: "🏃 Тренировки 3-5 раз в неделю", Data: "calc:activity:medium"},
			telegram.Button{Label: "🔥 Ежедневные нагрузки", Data: "calc:activity:high"},
		); err != nil {
			log.Printf("[Bot] calc activity prompt %d: %v", userID, err)
		}
	default:
		b.sendText(ctx, userID, "Выбери вариант кнопкой выше 👆")
	}
}

func (b *Bot) finishCalculator(ctx context.Context, userID int64, s *calcSession) {
	defer b.setSession(userID, nil)

	result, err := calculator.Calculate(s.input)
	if err != nil {
		log.Printf("[Bot] calc for %d: %v", userID, err)
		b.sendText(ctx, userID, "Что-то не сходится в ответах 🤔 Попробуй ещё раз: /calc")
		return
	}

	if err := b.calc.Save(ctx, userID, s.input, result); err != nil {
		log.Printf("[Bot] save calc result for %d: %v", userID, err)
	}
	b.events.Log(ctx, userID, domain.EventCalculatorDone, strconv.Itoa(result.Calories))

	if err := b.client.SendMessage(ctx, userID, result.Format(),
		telegram.Button{Label: "🍽 Подобрать рацион", Data: "pay:click:main"}); err != nil {
		log.Printf("[Bot] calc result %d: %v", userID, err)
	}
}

func (b *Bot) sendText(ctx context.Context, userID int64, text string) {
	if err := b.client.SendMessage(ctx, userID, text); err != nil {
		log.Printf("[Bot] send to %d: %v", userID, err)
	}
}

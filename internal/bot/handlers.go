package bot

import (
	"context"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/rationly/rationbot/internal/domain"
	"github.com/rationly/rationbot/internal/payment"
	"github.com/rationly/rationbot/internal/pkg/logger"
	"github.com/rationly/rationbot/internal/telegram"
)

const welcomeText = "👋 Привет! Я помогу подобрать готовый рацион питания с КБЖУ.\n\n" +
	"🍽 Рационы расписаны по дням: завтрак, обед, ужин и перекусы.\n" +
	"🧮 Не знаешь свою норму калорий? Пройди калькулятор.\n\n" +
	"Выбирай, с чего начнём:"

const paidWelcomeText = "👋 <b>С возвращением!</b>\n\n" +
	"🎉 У тебя есть доступ к рационам питания.\n" +
	"Выбери нужное действие в меню ниже:"

func mainMenu() []telegram.Button {
	return []telegram.Button{
		{Label: "🍽 Получить рацион", Data: "pay:click:main"},
		{Label: "🧮 Калькулятор КБЖУ", Data: "calc:start"},
	}
}

func paidMenu() []telegram.Button {
	return []telegram.Button{
		{Label: "🍽 Выбрать рацион", Data: "ration:menu"},
		{Label: "🧮 Калькулятор КБЖУ", Data: "calc:start"},
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	userID := msg.From.ID

	if err := b.users.Upsert(ctx, userID, msg.From.UserName, msg.From.FirstName); err != nil {
		log.Printf("[Bot] upsert user %d: %v", userID, err)
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, userID, msg.Command())
	case len(msg.Photo) > 0 || msg.Document != nil:
		b.handleScreenshot(ctx, msg)
	default:
		b.handleText(ctx, userID, msg.Text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, userID int64, command string) {
	switch command {
	case "start":
		b.events.Log(ctx, userID, domain.EventStartCommand, "")
		logger.Info("start command", "user_id", userID)

		paid, err := b.users.HasPaid(ctx, userID, domain.ProductMain)
		if err != nil {
			log.Printf("[Bot] paid check for %d: %v", userID, err)
		}
		text, buttons := welcomeText, mainMenu()
		if paid {
			text, buttons = paidWelcomeText, paidMenu()
		}
		if err := b.client.SendMessage(ctx, userID, text, buttons...); err != nil {
			log.Printf("[Bot] welcome %d: %v", userID, err)
		}
	case "calc":
		b.startCalculator(ctx, userID)
	case "help":
		help := "Команды:\n/start — меню рационов\n/calc — калькулятор КБЖУ\n\n" +
			"Вопрос по оплате? Просто напиши сюда."
		if err := b.client.SendMessage(ctx, userID, help); err != nil {
			log.Printf("[Bot] help %d: %v", userID, err)
		}
	}
}

// handleScreenshot runs the payment claim intake: any photo or document from
// a user counts as a payment screenshot.
func (b *Bot) handleScreenshot(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	b.events.Log(ctx, userID, domain.EventScreenshotSent, "")

	req, err := b.payments.RequestPayment(ctx, userID, domain.ProductMain)
	if err != nil {
		log.Printf("[Bot] payment request for %d: %v", userID, err)
		return
	}

	logger.Info("payment screenshot received",
		"user_id", userID, "username", msg.From.UserName, "request_id", req.ID)

	if err := b.payments.NotifyModerators(ctx, req, msg.From.UserName, msg.From.FirstName); err != nil {
		log.Printf("[Bot] notify moderators about %d: %v", req.ID, err)
	}

	confirm := "📸 Скриншот получен! Проверим оплату и откроем доступ.\n" +
		"Обычно это занимает не больше пары часов."
	if err := b.client.SendMessage(ctx, userID, confirm); err != nil {
		log.Printf("[Bot] confirm screenshot %d: %v", userID, err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	userID := cb.From.ID

	switch {
	case strings.HasPrefix(data, "pay:click:"):
		b.answerCallback(cb.ID, "")
		b.handlePaymentClick(ctx, userID, domain.Product(strings.TrimPrefix(data, "pay:click:")))

	case strings.HasPrefix(data, "pay:paid:"):
		b.answerCallback(cb.ID, "")
		prompt := "📸 Отлично! Пришли скриншот или фото чека прямо сюда, и мы проверим оплату."
		if err := b.client.SendMessage(ctx, userID, prompt); err != nil {
			log.Printf("[Bot] screenshot prompt %d: %v", userID, err)
		}

	case strings.HasPrefix(data, "pay:approve:"), strings.HasPrefix(data, "pay:reject:"):
		b.handleModeration(ctx, cb)

	case strings.HasPrefix(data, "ration:"):
		b.answerCallback(cb.ID, "")
		b.handleRation(ctx, userID, strings.TrimPrefix(data, "ration:"))

	case strings.HasPrefix(data, "chain:"):
		b.answerCallback(cb.ID, "")
		b.handleChainButton(ctx, userID, strings.TrimPrefix(data, "chain:"))

	case strings.HasPrefix(data, "calc:"):
		b.answerCallback(cb.ID, "")
		b.handleCalcCallback(ctx, userID, strings.TrimPrefix(data, "calc:"))

	default:
		b.answerCallback(cb.ID, "")
	}
}

// handlePaymentClick shows the transfer details and records the click, which
// arms the no-screenshot follow-up.
func (b *Bot) handlePaymentClick(ctx context.Context, userID int64, product domain.Product) {
	if !product.Valid() {
		return
	}
	b.events.Log(ctx, userID, domain.EventPaymentClicked, string(product))

	if err := b.client.SendMessage(ctx, userID, b.payments.PaymentInstructions(),
		telegram.Button{Label: "✅ Я оплатила", Data: "pay:paid:" + string(product)}); err != nil {
		log.Printf("[Bot] payment instructions %d: %v", userID, err)
	}
}

// handleModeration applies an approve or reject press from the admin channel.
func (b *Bot) handleModeration(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat.ID != b.adminChannelID {
		b.answerCallback(cb.ID, "Недоступно")
		return
	}

	approve := strings.HasPrefix(cb.Data, "pay:approve:")
	idStr := cb.Data[strings.LastIndex(cb.Data, ":")+1:]
	requestID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		b.answerCallback(cb.ID, "Некорректная заявка")
		return
	}

	if approve {
		_, err = b.payments.Approve(ctx, requestID)
	} else {
		_, err = b.payments.Reject(ctx, requestID)
	}

	switch {
	case err == payment.ErrAlreadyResolved:
		b.answerCallback(cb.ID, "Заявка уже обработана")
		return
	case err != nil:
		log.Printf("[Bot] moderate request %d: %v", requestID, err)
		b.answerCallback(cb.ID, "Ошибка, попробуйте ещё раз")
		return
	}

	verdict := "✅ Подтверждено"
	if !approve {
		verdict = "❌ Отклонено"
	}
	b.answerCallback(cb.ID, verdict)

	// strip the buttons off the review card so it reads as settled
	edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID,
		cb.Message.Text+"\n\n"+verdict)
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("[Bot] edit review card: %v", err)
	}
}

// handleChainButton applies a chain press and performs whatever handoff the
// engine reports back.
func (b *Bot) handleChainButton(ctx context.Context, userID int64, rawID string) {
	buttonID, err := uuid.Parse(rawID)
	if err != nil {
		return
	}

	outcome, err := b.chains.HandleButton(ctx, userID, buttonID)
	if err != nil {
		log.Printf("[Bot] chain button %s for %d: %v", buttonID, userID, err)
		return
	}

	switch outcome.Action {
	case domain.ActionTriggerPayment:
		b.handlePaymentClick(ctx, userID, outcome.Product)
	case domain.ActionRunCommand:
		b.handleChainCommand(ctx, userID, outcome.Command)
	}
}

func (b *Bot) handleChainCommand(ctx context.Context, userID int64, command string) {
	b.handleCommand(ctx, userID, strings.TrimPrefix(command, "/"))
}

package followup

import (
	"math/rand"

	"github.com/rationly/rationbot/internal/domain"
)

// Canned reminder texts. A random variant is picked per send so repeated
// reminders don't read like a bot stuck on one script.

var onlyStartMessages = []string{
	"👋 Привет!\n\n" +
		"Вчера ты заходила посмотреть рационы питания, но так и не продолжила.\n\n" +
		"🍽 У нас есть <b>готовые рационы</b> с КБЖУ на разную калорийность — " +
		"от похудения до набора массы.\n\n" +
		"💡 <i>Не нужно считать калории — всё уже рассчитано!</i>\n\n" +
		"Напиши /start, чтобы начать!",
	"🤔 Эй, ты вчера интересовалась рационами питания...\n\n" +
		"Знаю, бывает сложно решиться. Но представь:\n" +
		"✅ Не нужно думать, что готовить\n" +
		"✅ Не нужно считать калории\n" +
		"✅ Всё расписано по дням\n\n" +
		"Жми /start и погнали! 💪",
	"🔥 Напоминание для тебя!\n\n" +
		"Вчера ты начала знакомство с ботом рационов.\n" +
		"У меня есть <b>готовые планы питания</b> на любую цель:\n\n" +
		"• 🏃 Похудение (от 1200 ккал)\n" +
		"• ⚖️ Поддержание формы\n" +
		"• 💪 Набор массы (до 2100 ккал)\n\n" +
		"Каждый день расписан: завтрак, обед, ужин с рецептами. 🚀",
}

var clickedPaymentMessages = []string{
	"⏳ Привет! Ты нажала кнопку «Я оплатила», " +
		"но мы не получили скриншот оплаты.\n\n" +
		"📸 <b>Чтобы получить доступ:</b>\n" +
		"1. Оплати по реквизитам\n" +
		"2. Сделай скриншот\n" +
		"3. Отправь его мне\n\n" +
		"Если возникли вопросы — напиши, поможем! 💬",
	"👀 Заметили, что ты была близко к получению доступа!\n\n" +
		"Ты нажала «Я оплатила», но скриншот так и не пришёл.\n\n" +
		"Напиши /start и попробуй ещё раз. Мы рядом! 🙌",
	"🔔 Напоминание!\n\n" +
		"Пару часов назад ты хотела подтвердить оплату, " +
		"но мы так и не получили скриншот.\n\n" +
		"Если уже оплатила — просто пришли фото/скрин чека.\n" +
		"Если ещё нет — не проблема, реквизиты по команде /start.\n\n" +
		"Ждём тебя! 🎯",
}

// RandomMessage picks a variant for the given follow-up type. Returns ""
// for an unknown type, which dispatch treats as a failed send.
func RandomMessage(t domain.FollowupType) string {
	switch t {
	case domain.FollowupOnlyStart:
		return onlyStartMessages[rand.Intn(len(onlyStartMessages))]
	case domain.FollowupClickedPayment:
		return clickedPaymentMessages[rand.Intn(len(clickedPaymentMessages))]
	}
	return ""
}

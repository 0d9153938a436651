// Package telegram wraps the Bot API client behind the narrow send surface
// the schedulers need. Send failures come back as ordinary errors so
// dispatch loops can record a per-message failure without aborting the
// batch; the one case worth distinguishing is a user who blocked the bot.
package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Button is one inline keyboard button. Data buttons produce callback
// queries; URL buttons open links client-side.
type Button struct {
	Label string
	Data  string
	URL   string
}

// Client sends messages through the Telegram Bot API.
type Client struct {
	bot *tgbotapi.BotAPI
}

// New authenticates against the Bot API.
func New(token string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &Client{bot: bot}, nil
}

// NewWithBot wraps an existing API client (used by the update loop, which
// shares the client with the senders).
func NewWithBot(bot *tgbotapi.BotAPI) *Client {
	return &Client{bot: bot}
}

// Bot exposes the underlying API client for the update loop.
func (c *Client) Bot() *tgbotapi.BotAPI { return c.bot }

func keyboard(buttons []Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		var btn tgbotapi.InlineKeyboardButton
		if b.URL != "" {
			btn = tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL)
		} else {
			btn = tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

// SendMessage delivers an HTML-formatted text message.
func (c *Client) SendMessage(ctx context.Context, userID int64, content string, buttons ...Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(userID, content)
	msg.ParseMode = tgbotapi.ModeHTML
	if kb := keyboard(buttons); kb != nil {
		msg.ReplyMarkup = kb
	}
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", userID, err)
	}
	return nil
}

// SendMedia delivers a photo by Telegram file ID with a caption.
func (c *Client) SendMedia(ctx context.Context, userID int64, mediaRef, caption string, buttons ...Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(userID, tgbotapi.FileID(mediaRef))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	if kb := keyboard(buttons); kb != nil {
		photo.ReplyMarkup = kb
	}
	if _, err := c.bot.Send(photo); err != nil {
		return fmt.Errorf("send media to %d: %w", userID, err)
	}
	return nil
}

// IsBlocked reports whether the error means the user has blocked the bot.
// Blocked users are unreachable until they /start again; callers treat this
// the same as any other send failure, it is only interesting for logs.
func IsBlocked(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 403
	}
	return false
}

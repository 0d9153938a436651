// Package bot runs the Telegram update loop and the interactive handlers:
// commands, payment buttons, screenshot intake, moderator review buttons,
// chain buttons and the calorie questionnaire.
package bot

import (
	"context"
	"database/sql"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rationly/rationbot/internal/calculator"
	"github.com/rationly/rationbot/internal/chain"
	"github.com/rationly/rationbot/internal/content"
	"github.com/rationly/rationbot/internal/events"
	"github.com/rationly/rationbot/internal/payment"
	"github.com/rationly/rationbot/internal/telegram"
	"github.com/rationly/rationbot/internal/users"
)

// Bot glues the Telegram update stream to the stores and workers.
type Bot struct {
	api    *tgbotapi.BotAPI
	client *telegram.Client

	users    *users.Store
	events   *events.Store
	payments *payment.Service
	chains   *chain.Engine
	calc     *calculator.Store
	content  *content.Store

	adminChannelID int64

	// in-flight calculator questionnaires, keyed by user id
	sessions   map[int64]*calcSession
	sessionsMu sync.Mutex
}

// New creates the bot around an authenticated API client.
func New(api *tgbotapi.BotAPI, db *sql.DB, payments *payment.Service, chains *chain.Engine, adminChannelID int64) *Bot {
	return &Bot{
		api:            api,
		client:         telegram.NewWithBot(api),
		users:          users.NewStore(db),
		events:         events.NewStore(db),
		payments:       payments,
		chains:         chains,
		calc:           calculator.NewStore(db),
		content:        content.NewStore(db),
		adminChannelID: adminChannelID,
		sessions:       make(map[int64]*calcSession),
	}
}

// Run consumes updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	log.Printf("[Bot] update loop started as @%s", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Printf("[Bot] update loop stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Bot] panic in update handler: %v", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// answerCallback stops the client-side spinner, optionally with a toast.
func (b *Bot) answerCallback(id, text string) {
	cb := tgbotapi.NewCallback(id, text)
	if _, err := b.api.Request(cb); err != nil {
		log.Printf("[Bot] answer callback: %v", err)
	}
}

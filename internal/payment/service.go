package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/rationly/rationbot/internal/chain"
	"github.com/rationly/rationbot/internal/domain"
	"github.com/rationly/rationbot/internal/events"
	"github.com/rationly/rationbot/internal/followup"
	"github.com/rationly/rationbot/internal/telegram"
	"github.com/rationly/rationbot/internal/users"
)

// ErrAlreadyResolved is returned when a moderator acts on a request that was
// already approved or rejected.
var ErrAlreadyResolved = errors.New("payment request already resolved")

// Sender is the transport slice the service needs.
type Sender interface {
	SendMessage(ctx context.Context, userID int64, content string, buttons ...telegram.Button) error
}

// Service runs the verification workflow around the payment_requests table.
// Approval fans out: paid flag, event log, pending follow-up cancellation,
// active chain stop, user notification.
type Service struct {
	store     *Store
	users     *users.Store
	events    *events.Store
	followups *followup.Store
	chains    *chain.Store
	sender    Sender

	adminChannelID int64
	amount         int
	details        string
}

// NewService wires the workflow.
func NewService(db *sql.DB, sender Sender, adminChannelID int64, amount int, details string) *Service {
	return &Service{
		store:          NewStore(db),
		users:          users.NewStore(db),
		events:         events.NewStore(db),
		followups:      followup.NewStore(db),
		chains:         chain.NewStore(db),
		sender:         sender,
		adminChannelID: adminChannelID,
		amount:         amount,
		details:        details,
	}
}

// Store exposes the request store for the bot handlers.
func (s *Service) Store() *Store { return s.store }

// PaymentInstructions is the text shown when the user asks to pay.
func (s *Service) PaymentInstructions() string {
	return fmt.Sprintf(
		"💳 <b>Оплата: %d ₽</b>\n\n"+
			"Реквизиты для перевода:\n%s\n\n"+
			"После оплаты нажми кнопку «Я оплатила» и пришли скриншот чека.",
		s.amount, s.details)
}

// RequestPayment opens a pending request after the user submits a screenshot.
// Repeated submissions reuse the open request instead of stacking new ones.
func (s *Service) RequestPayment(ctx context.Context, userID int64, product domain.Product) (*domain.PaymentRequest, error) {
	if !product.Valid() {
		return nil, fmt.Errorf("unknown product %q", product)
	}

	if existing, err := s.store.PendingForUser(ctx, userID, product); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	req, err := s.store.Create(ctx, userID, product)
	if err != nil {
		return nil, err
	}
	if err := s.users.MarkPaymentRequested(ctx, userID, product); err != nil {
		log.Printf("[Payment] mark requested for %d: %v", userID, err)
	}
	return req, nil
}

// Approve resolves a pending request as approved and fans the outcome out.
// The events append and the notifications are best-effort; the paid flag and
// the request status are the authoritative writes.
func (s *Service) Approve(ctx context.Context, requestID int64) (*domain.PaymentRequest, error) {
	req, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("payment request %d not found", requestID)
	}

	ok, err := s.store.Resolve(ctx, requestID, domain.PaymentApproved)
	if err != nil {
		return nil, err
	}
	if !ok {
		return req, ErrAlreadyResolved
	}
	req.Status = domain.PaymentApproved

	if err := s.users.SetPaid(ctx, req.UserID, req.Product, true); err != nil {
		return req, fmt.Errorf("set paid flag: %w", err)
	}

	s.events.Log(ctx, req.UserID, domain.EventPaymentApproved, string(req.Product))

	if n, err := s.followups.CancelPendingForUser(ctx, req.UserID); err != nil {
		log.Printf("[Payment] cancel followups for %d: %v", req.UserID, err)
	} else if n > 0 {
		log.Printf("[Payment] cancelled %d pending follow-ups for %d", n, req.UserID)
	}

	if n, err := s.chains.StopAllForUser(ctx, req.UserID); err != nil {
		log.Printf("[Payment] stop chains for %d: %v", req.UserID, err)
	} else if n > 0 {
		log.Printf("[Payment] stopped %d chain runs for %d", n, req.UserID)
	}

	notice := "✅ <b>Оплата подтверждена!</b>\n\nДоступ открыт. Напиши /start, чтобы открыть меню рационов."
	if err := s.sender.SendMessage(ctx, req.UserID, notice); err != nil {
		log.Printf("[Payment] notify %d about approval: %v", req.UserID, err)
	}

	log.Printf("[Payment] request %d approved (user %d, product %s)", requestID, req.UserID, req.Product)
	return req, nil
}

// Reject resolves a pending request as rejected and tells the user.
func (s *Service) Reject(ctx context.Context, requestID int64) (*domain.PaymentRequest, error) {
	req, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("payment request %d not found", requestID)
	}

	ok, err := s.store.Resolve(ctx, requestID, domain.PaymentRejected)
	if err != nil {
		return nil, err
	}
	if !ok {
		return req, ErrAlreadyResolved
	}
	req.Status = domain.PaymentRejected

	s.events.Log(ctx, req.UserID, domain.EventPaymentRejected, string(req.Product))

	notice := "❌ Оплата не найдена.\n\n" +
		"Проверь, что перевод прошёл, и пришли скриншот ещё раз. " +
		"Если уверена, что всё верно, напиши нам, разберёмся."
	if err := s.sender.SendMessage(ctx, req.UserID, notice); err != nil {
		log.Printf("[Payment] notify %d about rejection: %v", req.UserID, err)
	}

	log.Printf("[Payment] request %d rejected (user %d, product %s)", requestID, req.UserID, req.Product)
	return req, nil
}

// NotifyModerators posts the review card to the admin channel and links the
// resulting message back to the request.
func (s *Service) NotifyModerators(ctx context.Context, req *domain.PaymentRequest, username, firstName string) error {
	card := fmt.Sprintf(
		"🧾 <b>Новая оплата на проверку</b>\n\n"+
			"Пользователь: %s (@%s, id %d)\n"+
			"Продукт: %s\nЗаявка: #%d",
		firstName, username, req.UserID, req.Product, req.ID)
	return s.sender.SendMessage(ctx, s.adminChannelID, card,
		telegram.Button{Label: "✅ Подтвердить", Data: fmt.Sprintf("pay:approve:%d", req.ID)},
		telegram.Button{Label: "❌ Отклонить", Data: fmt.Sprintf("pay:reject:%d", req.ID)},
	)
}

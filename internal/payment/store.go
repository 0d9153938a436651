// Package payment implements the manual bank-transfer verification workflow:
// a user claims to have paid, a moderator approves or rejects, and the
// outcome fans out to the paid flags, the event log, the follow-up and chain
// schedulers, and the user.
package payment

import (
	"context"
	"database/sql"

	"github.com/rationly/rationbot/internal/domain"
)

// Store handles CRUD for the payment_requests table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const requestColumns = `id, user_id, product, status, COALESCE(admin_message_id, 0), created_at, resolved_at`

func scanRequest(row interface{ Scan(...interface{}) error }) (*domain.PaymentRequest, error) {
	var r domain.PaymentRequest
	err := row.Scan(&r.ID, &r.UserID, &r.Product, &r.Status, &r.AdminMessageID, &r.CreatedAt, &r.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts a pending request and fills in its id.
func (s *Store) Create(ctx context.Context, userID int64, product domain.Product) (*domain.PaymentRequest, error) {
	r := &domain.PaymentRequest{UserID: userID, Product: product, Status: domain.PaymentPending}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO payment_requests (user_id, product, status)
		VALUES ($1, $2, 'pending')
		RETURNING id, created_at`,
		userID, product).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns one request, or nil if unknown.
func (s *Store) Get(ctx context.Context, id int64) (*domain.PaymentRequest, error) {
	r, err := scanRequest(s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM payment_requests WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// SetAdminMessageID links the request to the moderation message in the admin
// channel, so the approve and reject buttons can be resolved back to it.
func (s *Store) SetAdminMessageID(ctx context.Context, id, messageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE payment_requests SET admin_message_id = $1 WHERE id = $2`,
		messageID, id)
	return err
}

// Resolve finalizes a pending request. Returns false when the request was no
// longer pending: a second moderator already resolved it. The status guard in
// the WHERE clause makes the transition first-wins under concurrent reviews.
func (s *Store) Resolve(ctx context.Context, id int64, status domain.PaymentStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_requests
		SET status = $1, resolved_at = NOW()
		WHERE id = $2 AND status = 'pending'`,
		status, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PendingForUser returns the user's open request for a product, or nil.
func (s *Store) PendingForUser(ctx context.Context, userID int64, product domain.Product) (*domain.PaymentRequest, error) {
	r, err := scanRequest(s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM payment_requests
		WHERE user_id = $1 AND product = $2 AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1`,
		userID, product))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

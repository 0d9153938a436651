// Package broadcast implements the two outbound bulk channels: one-shot
// admin broadcasts to a named audience, and rule-driven auto-broadcasts
// evaluated continuously against the funnel.
package broadcast

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/rationly/rationbot/internal/domain"
)

// Store handles the broadcasts, auto_broadcast_rules and auto_broadcast_sent
// tables.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// =============================================================================
// One-shot broadcasts
// =============================================================================

// CreateBroadcast schedules a one-shot broadcast.
func (s *Store) CreateBroadcast(ctx context.Context, b *domain.Broadcast) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Status = domain.BroadcastPending
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO broadcasts (id, content, audience, scheduled_at, status)
		VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.Content, b.Audience, b.ScheduledAt, b.Status)
	return err
}

const broadcastColumns = `id, content, audience, scheduled_at, status,
	sent_count, failed_count, created_at, completed_at`

func scanBroadcast(row interface{ Scan(...interface{}) error }) (*domain.Broadcast, error) {
	var b domain.Broadcast
	err := row.Scan(&b.ID, &b.Content, &b.Audience, &b.ScheduledAt, &b.Status,
		&b.SentCount, &b.FailedCount, &b.CreatedAt, &b.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBroadcast fetches one broadcast by id.
func (s *Store) GetBroadcast(ctx context.Context, id uuid.UUID) (*domain.Broadcast, error) {
	return scanBroadcast(s.db.QueryRowContext(ctx,
		`SELECT `+broadcastColumns+` FROM broadcasts WHERE id = $1`, id))
}

// ListBroadcasts returns all broadcasts, newest first.
func (s *Store) ListBroadcasts(ctx context.Context) ([]*domain.Broadcast, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+broadcastColumns+` FROM broadcasts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// PendingDue returns pending broadcasts whose scheduled time has arrived.
func (s *Store) PendingDue(ctx context.Context) ([]*domain.Broadcast, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+broadcastColumns+`
		FROM broadcasts
		WHERE status = 'pending' AND scheduled_at <= NOW()
		ORDER BY scheduled_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MarkSending flips a pending broadcast to sending. Returns false if the
// broadcast was no longer pending, which means another tick claimed it.
func (s *Store) MarkSending(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET status = 'sending' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Complete finalizes a broadcast with its aggregate counts.
func (s *Store) Complete(ctx context.Context, id uuid.UUID, sent, failed int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE broadcasts
		SET status = 'sent', sent_count = $1, failed_count = $2, completed_at = NOW()
		WHERE id = $3`,
		sent, failed, id)
	return err
}

// CancelBroadcast cancels a broadcast that has not started sending. Returns
// false if it was already picked up or finished.
func (s *Store) CancelBroadcast(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET status = 'cancelled' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// =============================================================================
// Auto-broadcast rules and per-user ledger
// =============================================================================

// CreateRule persists a new auto-broadcast rule.
func (s *Store) CreateRule(ctx context.Context, r *domain.AutoBroadcastRule) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_broadcast_rules (id, trigger_type, content, delay_hours, is_active)
		VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.Trigger, r.Content, r.DelayHours, r.IsActive)
	return err
}

const ruleColumns = `id, trigger_type, content, delay_hours, is_active,
	sent_count, created_at, updated_at`

func scanRule(row interface{ Scan(...interface{}) error }) (*domain.AutoBroadcastRule, error) {
	var r domain.AutoBroadcastRule
	err := row.Scan(&r.ID, &r.Trigger, &r.Content, &r.DelayHours, &r.IsActive,
		&r.SentCount, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRule fetches one rule by id.
func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (*domain.AutoBroadcastRule, error) {
	return scanRule(s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM auto_broadcast_rules WHERE id = $1`, id))
}

// ListRules returns all rules, newest first.
func (s *Store) ListRules(ctx context.Context) ([]*domain.AutoBroadcastRule, error) {
	return s.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM auto_broadcast_rules ORDER BY created_at DESC`)
}

// ActiveRules returns the rules the engine evaluates each tick.
func (s *Store) ActiveRules(ctx context.Context) ([]*domain.AutoBroadcastRule, error) {
	return s.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM auto_broadcast_rules WHERE is_active ORDER BY created_at`)
}

func (s *Store) queryRules(ctx context.Context, query string) ([]*domain.AutoBroadcastRule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AutoBroadcastRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRule rewrites a rule's content, delay and active flag.
func (s *Store) UpdateRule(ctx context.Context, r *domain.AutoBroadcastRule) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE auto_broadcast_rules
		SET trigger_type = $1, content = $2, delay_hours = $3, is_active = $4, updated_at = NOW()
		WHERE id = $5`,
		r.Trigger, r.Content, r.DelayHours, r.IsActive, r.ID)
	return err
}

// DeleteRule removes a rule. Its ledger rows go with it.
func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auto_broadcast_rules WHERE id = $1`, id)
	return err
}

// MarkSentOnce records in the ledger that the rule fired for the user.
// Returns false when the (rule, user) pair already exists: the send has
// happened before and must not repeat. The primary key on the ledger makes
// this check atomic.
func (s *Store) MarkSentOnce(ctx context.Context, ruleID uuid.UUID, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_broadcast_sent (rule_id, user_id, sent_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (rule_id, user_id) DO NOTHING`,
		ruleID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearLedgerEntry removes a ledger row so the rule can fire again for the
// user. Used when a send fails after the row was claimed.
func (s *Store) ClearLedgerEntry(ctx context.Context, ruleID uuid.UUID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM auto_broadcast_sent WHERE rule_id = $1 AND user_id = $2`,
		ruleID, userID)
	return err
}

// IncrementRuleSent bumps the rule's lifetime sent counter.
func (s *Store) IncrementRuleSent(ctx context.Context, ruleID uuid.UUID, by int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auto_broadcast_rules SET sent_count = sent_count + $1, updated_at = NOW() WHERE id = $2`,
		by, ruleID)
	return err
}

// SentCountSince counts one-shot broadcast deliveries after the cutoff, for
// the weekly report.
func (s *Store) SentCountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(sent_count), 0) FROM broadcasts
		WHERE status = 'sent' AND completed_at >= $1`,
		since).Scan(&n)
	return n, err
}

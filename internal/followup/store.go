// Package followup schedules and dispatches one-off reminder messages for
// users stuck early in the funnel.
package followup

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/rationly/rationbot/internal/domain"
)

// ErrAlreadyScheduled is returned by Schedule when the user already has a
// pending or sent follow-up of that type. The partial unique index on
// followup_messages makes the insert conflict the "already scheduled"
// signal, so the guarantee holds even under concurrent discovery ticks.
var ErrAlreadyScheduled = errors.New("followup already scheduled")

// Store handles CRUD for the followup_messages table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schedule inserts one pending follow-up for the user.
func (s *Store) Schedule(ctx context.Context, userID int64, t domain.FollowupType, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO followup_messages (user_id, message_type, status, scheduled_at)
		VALUES ($1, $2, 'pending', $3)`,
		userID, t, at)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrAlreadyScheduled
	}
	return err
}

// DueFollowup is a pending row whose time has arrived, joined with the
// user's current paid flag so dispatch can suppress the nudge for users
// who already converted.
type DueFollowup struct {
	ID      int64
	UserID  int64
	Type    domain.FollowupType
	HasPaid bool
}

// PendingDue returns pending follow-ups with scheduled_at in the past.
func (s *Store) PendingDue(ctx context.Context) ([]DueFollowup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.user_id, f.message_type, u.paid_main
		FROM followup_messages f
		JOIN users u ON u.user_id = f.user_id
		WHERE f.status = 'pending' AND f.scheduled_at <= NOW()
		ORDER BY f.scheduled_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []DueFollowup
	for rows.Next() {
		var d DueFollowup
		if err := rows.Scan(&d.ID, &d.UserID, &d.Type, &d.HasPaid); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

// MarkStatus finalizes one follow-up. sent also stamps sent_at.
func (s *Store) MarkStatus(ctx context.Context, id int64, status domain.FollowupStatus) error {
	if status == domain.FollowupSent {
		_, err := s.db.ExecContext(ctx,
			`UPDATE followup_messages SET status = $1, sent_at = NOW() WHERE id = $2`,
			status, id)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE followup_messages SET status = $1 WHERE id = $2`,
		status, id)
	return err
}

// CancelPendingForUser cancels every pending follow-up of a user. Called by
// the payment workflow on approval: the goal achieved itself, the nudges
// are suppressed.
func (s *Store) CancelPendingForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE followup_messages SET status = 'cancelled'
		WHERE user_id = $1 AND status = 'pending'`,
		userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SentCountSince counts follow-ups sent after the cutoff (weekly report).
func (s *Store) SentCountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM followup_messages WHERE status = 'sent' AND sent_at >= $1`,
		since).Scan(&n)
	return n, err
}

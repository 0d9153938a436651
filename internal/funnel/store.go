// Package funnel derives a user's lifecycle bucket from the event log and
// the users table. There is no stored "state" field: a bucket is purely the
// presence or absence of specific event rows plus the paid flag, optionally
// bounded by a time window.
package funnel

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rationly/rationbot/internal/domain"
)

// Store runs the classifier queries.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UsersOnlyStarted returns unpaid users whose only recorded activity is the
// start command, with accounts at least olderThan old. A payment click,
// screenshot, or calculator start disqualifies.
func (s *Store) UsersOnlyStarted(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.user_id
		FROM users u
		WHERE NOT u.paid_main
		  AND u.created_at <= NOW() - $1 * INTERVAL '1 second'
		  AND EXISTS (
			SELECT 1 FROM events e
			WHERE e.user_id = u.user_id AND e.event_type = 'start_command')
		  AND NOT EXISTS (
			SELECT 1 FROM events e
			WHERE e.user_id = u.user_id
			  AND e.event_type IN ('payment_button_clicked', 'screenshot_sent', 'calculator_started'))
		ORDER BY u.user_id`,
		int64(olderThan.Seconds()))
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// UsersClickedPaymentNoScreenshot returns unpaid users who clicked the
// payment button at least olderThan ago and have no screenshot event.
// The screenshot check is existence-only, not ordered against the click.
func (s *Store) UsersClickedPaymentNoScreenshot(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.user_id
		FROM users u
		WHERE NOT u.paid_main
		  AND EXISTS (
			SELECT 1 FROM events e
			WHERE e.user_id = u.user_id
			  AND e.event_type = 'payment_button_clicked'
			  AND e.created_at <= NOW() - $1 * INTERVAL '1 second')
		  AND NOT EXISTS (
			SELECT 1 FROM events e
			WHERE e.user_id = u.user_id AND e.event_type = 'screenshot_sent')
		ORDER BY u.user_id`,
		int64(olderThan.Seconds()))
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// usersClickedNotPaid returns unpaid users whose payment click is at least
// the window old, regardless of screenshots.
func (s *Store) usersClickedNotPaid(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.user_id
		FROM users u
		WHERE NOT u.paid_main
		  AND EXISTS (
			SELECT 1 FROM events e
			WHERE e.user_id = u.user_id
			  AND e.event_type = 'payment_button_clicked'
			  AND e.created_at <= NOW() - $1 * INTERVAL '1 second')
		ORDER BY u.user_id`,
		int64(olderThan.Seconds()))
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// usersRejected returns unpaid users whose most recent rejection is at least
// the window old. The predicate is time-only below: once eligible, a user
// stays eligible; the auto-broadcast ledger is what prevents repeats.
func (s *Store) usersRejected(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.user_id
		FROM users u
		WHERE NOT u.paid_main
		  AND EXISTS (
			SELECT 1 FROM events e
			WHERE e.user_id = u.user_id AND e.event_type = 'payment_rejected')
		  AND (
			SELECT MAX(e.created_at) FROM events e
			WHERE e.user_id = u.user_id AND e.event_type = 'payment_rejected'
		  ) <= NOW() - $1 * INTERVAL '1 second'
		ORDER BY u.user_id`,
		int64(olderThan.Seconds()))
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// EligibleForTrigger resolves an auto-broadcast rule's trigger to the users
// matching it right now, with the rule's delay as the time window.
func (s *Store) EligibleForTrigger(ctx context.Context, trigger domain.TriggerType, delayHours int) ([]int64, error) {
	window := time.Duration(delayHours) * time.Hour
	switch trigger {
	case domain.TriggerOnlyStarted:
		return s.UsersOnlyStarted(ctx, window)
	case domain.TriggerClickedNotPaid:
		return s.usersClickedNotPaid(ctx, window)
	case domain.TriggerPaymentRejected:
		return s.usersRejected(ctx, window)
	case domain.TriggerClickedNoScreenshot:
		return s.UsersClickedPaymentNoScreenshot(ctx, window)
	}
	return nil, fmt.Errorf("unknown trigger type %q", trigger)
}

// AudienceUsers resolves a one-shot broadcast audience selector.
func (s *Store) AudienceUsers(ctx context.Context, audience domain.Audience) ([]int64, error) {
	switch audience {
	case domain.AudienceAll:
		rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM users ORDER BY user_id`)
		if err != nil {
			return nil, err
		}
		return collectIDs(rows)
	case domain.AudienceOnlyStarted:
		return s.UsersOnlyStarted(ctx, 0)
	case domain.AudienceRejected:
		return s.usersRejected(ctx, 0)
	case domain.AudienceClickedNoScreenshot:
		return s.UsersClickedPaymentNoScreenshot(ctx, 0)
	}
	return nil, fmt.Errorf("unknown audience %q", audience)
}

// Counts are the dashboard aggregates: how many users sit in each bucket.
type Counts struct {
	TotalUsers          int `json:"total_users"`
	Paid                int `json:"paid"`
	OnlyStarted         int `json:"only_started"`
	ClickedNoScreenshot int `json:"clicked_no_screenshot"`
	Rejected            int `json:"rejected"`
}

// ConversionPercent returns paid users as a percentage of all users.
func (c Counts) ConversionPercent() float64 {
	if c.TotalUsers == 0 {
		return 0
	}
	return float64(c.Paid) / float64(c.TotalUsers) * 100
}

// FunnelCounts computes the bucket sizes in one query.
func (s *Store) FunnelCounts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE paid_main),
			COUNT(*) FILTER (WHERE NOT paid_main
				AND EXISTS (SELECT 1 FROM events e WHERE e.user_id = u.user_id AND e.event_type = 'start_command')
				AND NOT EXISTS (SELECT 1 FROM events e WHERE e.user_id = u.user_id
					AND e.event_type IN ('payment_button_clicked', 'screenshot_sent', 'calculator_started'))),
			COUNT(*) FILTER (WHERE NOT paid_main
				AND EXISTS (SELECT 1 FROM events e WHERE e.user_id = u.user_id AND e.event_type = 'payment_button_clicked')
				AND NOT EXISTS (SELECT 1 FROM events e WHERE e.user_id = u.user_id AND e.event_type = 'screenshot_sent')),
			COUNT(*) FILTER (WHERE NOT paid_main
				AND EXISTS (SELECT 1 FROM events e WHERE e.user_id = u.user_id AND e.event_type = 'payment_rejected'))
		FROM users u`).
		Scan(&c.TotalUsers, &c.Paid, &c.OnlyStarted, &c.ClickedNoScreenshot, &c.Rejected)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

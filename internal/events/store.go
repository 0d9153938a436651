// Package events is the append-only interaction log. Events are never
// updated or deleted; funnel classification reads them as the sole source
// of truth for what a user has done.
package events

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/rationly/rationbot/internal/domain"
)

// Store handles appends and reads on the events table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append records one immutable event. Callers on critical paths check the
// error; interactive handlers use Log instead.
func (s *Store) Append(ctx context.Context, userID int64, t domain.EventType, metadata string) error {
	if !t.Valid() {
		return fmt.Errorf("invalid event type %q", t)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (user_id, event_type, metadata) VALUES ($1, $2, $3)`,
		userID, t, metadata)
	return err
}

// Log appends an event and downgrades any storage error to a log line.
// Event logging must never fail the user action that triggered it.
func (s *Store) Log(ctx context.Context, userID int64, t domain.EventType, metadata string) {
	if err := s.Append(ctx, userID, t, metadata); err != nil {
		log.Printf("[Events] append %s for user %d failed: %v", t, userID, err)
	}
}

// HasEvent reports whether the user has at least one event of the given type.
func (s *Store) HasEvent(ctx context.Context, userID int64, t domain.EventType) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM events WHERE user_id = $1 AND event_type = $2)`,
		userID, t).Scan(&exists)
	return exists, err
}

// ListForUser returns the user's events ordered by time, newest last.
func (s *Store) ListForUser(ctx context.Context, userID int64, limit int) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, event_type, COALESCE(metadata,''), created_at
		FROM events WHERE user_id = $1 ORDER BY created_at, id LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package domain

import "time"

// FollowupType enumerates the funnel buckets that get reminder messages.
type FollowupType string

const (
	FollowupOnlyStart      FollowupType = "only_start"
	FollowupClickedPayment FollowupType = "clicked_payment"
)

// Valid reports whether t is a known follow-up type.
func (t FollowupType) Valid() bool {
	return t == FollowupOnlyStart || t == FollowupClickedPayment
}

// FollowupStatus enumerates the lifecycle of a scheduled reminder.
type FollowupStatus string

const (
	FollowupPending   FollowupStatus = "pending"
	FollowupSent      FollowupStatus = "sent"
	FollowupCancelled FollowupStatus = "cancelled"
	FollowupFailed    FollowupStatus = "failed"
)

// Valid reports whether s is a known follow-up status.
func (s FollowupStatus) Valid() bool {
	switch s {
	case FollowupPending, FollowupSent, FollowupCancelled, FollowupFailed:
		return true
	}
	return false
}

// FollowupMessage is one scheduled reminder. At most one row per
// (user, type) may be pending or sent at a time; the store enforces this
// with a partial unique index.
type FollowupMessage struct {
	ID          int64
	UserID      int64
	Type        FollowupType
	Status      FollowupStatus
	ScheduledAt time.Time
	SentAt      *time.Time
	CreatedAt   time.Time
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType enumerates the funnel conditions an auto-broadcast rule can
// react to. Each is a time-windowed predicate parameterized by the rule's
// delay.
type TriggerType string

const (
	TriggerOnlyStarted         TriggerType = "only_started"
	TriggerClickedNotPaid      TriggerType = "clicked_not_paid"
	TriggerPaymentRejected     TriggerType = "payment_rejected"
	TriggerClickedNoScreenshot TriggerType = "clicked_no_screenshot"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerOnlyStarted, TriggerClickedNotPaid,
		TriggerPaymentRejected, TriggerClickedNoScreenshot:
		return true
	}
	return false
}

// AutoBroadcastRule is an admin-authored, long-lived (trigger, delay,
// content) tuple evaluated against all users on every engine tick.
type AutoBroadcastRule struct {
	ID         uuid.UUID
	Trigger    TriggerType
	Content    string
	DelayHours int
	IsActive   bool
	SentCount  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Audience enumerates the named segments a one-shot broadcast can target.
type Audience string

const (
	AudienceAll                 Audience = "all"
	AudienceOnlyStarted         Audience = "only_started"
	AudienceRejected            Audience = "rejected"
	AudienceClickedNoScreenshot Audience = "clicked_no_screenshot"
)

// Valid reports whether a is a known audience selector.
func (a Audience) Valid() bool {
	switch a {
	case AudienceAll, AudienceOnlyStarted, AudienceRejected, AudienceClickedNoScreenshot:
		return true
	}
	return false
}

// BroadcastStatus enumerates the lifecycle of a one-shot broadcast.
type BroadcastStatus string

const (
	BroadcastPending   BroadcastStatus = "pending"
	BroadcastSending   BroadcastStatus = "sending"
	BroadcastSent      BroadcastStatus = "sent"
	BroadcastCancelled BroadcastStatus = "cancelled"
)

// Valid reports whether s is a known broadcast status.
func (s BroadcastStatus) Valid() bool {
	switch s {
	case BroadcastPending, BroadcastSending, BroadcastSent, BroadcastCancelled:
		return true
	}
	return false
}

// Broadcast is a single admin-scheduled message to a named audience.
// There is no per-user ledger: an interrupted broadcast cannot be resumed.
type Broadcast struct {
	ID          uuid.UUID
	Content     string
	Audience    Audience
	ScheduledAt time.Time
	Status      BroadcastStatus
	SentCount   int
	FailedCount int
	CreatedAt   time.Time
	CompletedAt *time.Time
}

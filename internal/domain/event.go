package domain

import "time"

// EventType enumerates the interaction facts recorded in the event log.
type EventType string

const (
	EventStartCommand      EventType = "start_command"
	EventPaymentClicked    EventType = "payment_button_clicked"
	EventScreenshotSent    EventType = "screenshot_sent"
	EventPaymentApproved   EventType = "payment_approved"
	EventPaymentRejected   EventType = "payment_rejected"
	EventCalculatorStarted EventType = "calculator_started"
	EventCalculatorDone    EventType = "calculator_finished"
	EventContentViewed     EventType = "content_viewed"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventStartCommand, EventPaymentClicked, EventScreenshotSent,
		EventPaymentApproved, EventPaymentRejected,
		EventCalculatorStarted, EventCalculatorDone, EventContentViewed:
		return true
	}
	return false
}

// Event is an immutable fact about a user interaction. Events are never
// updated or deleted; the event log is the sole source of truth for funnel
// classification.
type Event struct {
	ID        int64
	UserID    int64
	Type      EventType
	Metadata  string
	CreatedAt time.Time
}

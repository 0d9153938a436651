package domain

import (
	"time"

	"github.com/google/uuid"
)

// Chain is a multi-step, button-driven drip sequence.
type Chain struct {
	ID        uuid.UUID
	Name      string
	Trigger   TriggerType
	IsActive  bool
	Steps     []ChainStep
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FirstStep returns the step with the lowest order, or nil for an empty chain.
func (c *Chain) FirstStep() *ChainStep {
	if len(c.Steps) == 0 {
		return nil
	}
	return &c.Steps[0]
}

// StepByID returns the step with the given id, or nil.
func (c *Chain) StepByID(id uuid.UUID) *ChainStep {
	for i := range c.Steps {
		if c.Steps[i].ID == id {
			return &c.Steps[i]
		}
	}
	return nil
}

// NextStep returns the step following the given one in order, or nil if it
// is the last step.
func (c *Chain) NextStep(after uuid.UUID) *ChainStep {
	for i := range c.Steps {
		if c.Steps[i].ID == after && i+1 < len(c.Steps) {
			return &c.Steps[i+1]
		}
	}
	return nil
}

// ChainStep is one message in a chain. DelayHours governs how long after the
// previous transition the step's content is sent; the first step's delay is
// ignored on launch (the launch send always fires immediately).
type ChainStep struct {
	ID         uuid.UUID
	ChainID    uuid.UUID
	Order      int
	Content    string
	DelayHours int
	Buttons    []ChainButton
}

// ButtonAction enumerates what pressing a chain button does to the cursor.
type ButtonAction string

const (
	ActionAdvance        ButtonAction = "advance"
	ActionGoto           ButtonAction = "goto"
	ActionOpenURL        ButtonAction = "open_url"
	ActionRunCommand     ButtonAction = "run_command"
	ActionStop           ButtonAction = "stop"
	ActionTriggerPayment ButtonAction = "trigger_payment"
)

// Valid reports whether a is a known button action.
func (a ButtonAction) Valid() bool {
	switch a {
	case ActionAdvance, ActionGoto, ActionOpenURL, ActionRunCommand,
		ActionStop, ActionTriggerPayment:
		return true
	}
	return false
}

// ChainButton is an inline button attached to a step.
// TargetStep is set for goto, URL for open_url, Command for run_command,
// Product for trigger_payment.
type ChainButton struct {
	ID         uuid.UUID
	StepID     uuid.UUID
	Label      string
	Action     ButtonAction
	TargetStep *uuid.UUID
	URL        string
	Command    string
	Product    Product
	Order      int
}

// ChainUserStatus enumerates the per-user cursor states.
type ChainUserStatus string

const (
	ChainActive    ChainUserStatus = "active"
	ChainCompleted ChainUserStatus = "completed"
	ChainStopped   ChainUserStatus = "stopped"
)

// Valid reports whether s is a known chain user status.
func (s ChainUserStatus) Valid() bool {
	return s == ChainActive || s == ChainCompleted || s == ChainStopped
}

// ChainUserState is a user's cursor in one chain, unique per (chain, user).
// NextSendAt is set when the current step's send is still owed; nil once the
// step has been delivered and the cursor is waiting on a button press.
type ChainUserState struct {
	ChainID     uuid.UUID
	UserID      int64
	CurrentStep uuid.UUID
	Status      ChainUserStatus
	NextSendAt  *time.Time
	StartedAt   time.Time
	UpdatedAt   time.Time
}

// ChainLogKind enumerates chain message log entries.
type ChainLogKind string

const (
	ChainLogSent    ChainLogKind = "sent"
	ChainLogClicked ChainLogKind = "clicked"
	ChainLogFailed  ChainLogKind = "failed"
)

// ChainLogEntry is one append-only send/click record. The log, not the
// cursor, is the record of what the user actually received.
type ChainLogEntry struct {
	ID        int64
	ChainID   uuid.UUID
	UserID    int64
	StepID    uuid.UUID
	Kind      ChainLogKind
	Detail    string
	CreatedAt time.Time
}

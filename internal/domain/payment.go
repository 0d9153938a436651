package domain

import "time"

// PaymentStatus enumerates the lifecycle of a manual payment request.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentApproved || s == PaymentRejected
}

// PaymentRequest is one "I paid" claim awaiting moderator review.
// Exactly one of approve/reject may transition a pending request;
// the transition is final.
type PaymentRequest struct {
	ID             int64
	UserID         int64
	Product        Product
	Status         PaymentStatus
	AdminMessageID int64
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// Resolved reports whether the request has already been approved or rejected.
func (r *PaymentRequest) Resolved() bool {
	return r.Status != PaymentPending
}

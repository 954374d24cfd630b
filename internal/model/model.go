package model

import "time"

// Subscription is the access record for one principal. A principal holds at
// most one subscription; a new purchase overwrites the previous record.
type Subscription struct {
	Principal int64     `json:"principal"`
	PlanID    string    `json:"plan_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentStatus is the provider-reported state of a payment.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusApproved  PaymentStatus = "approved"
	StatusRejected  PaymentStatus = "rejected"
	StatusCancelled PaymentStatus = "cancelled"
	StatusError     PaymentStatus = "error"
)

// Terminal reports whether no further status transition is expected.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// PendingPayment is one purchase attempt being watched to a terminal
// outcome. It is owned exclusively by the watcher that created it.
type PendingPayment struct {
	TransactionID string
	Principal     int64
	PlanID        string
	CreatedAt     time.Time
	Status        PaymentStatus
}

// PixCharge is the renderable artifact returned by payment creation.
type PixCharge struct {
	TransactionID string
	QRCodeBase64  string
	QRCodeText    string
	ExpiresAt     time.Time
}

// InviteGrant is an ephemeral single-use invite issued when a direct group
// add fails. The link is revoked at ExpiresAt whether or not it was used.
type InviteGrant struct {
	Link      string
	Principal int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConsentStatus tracks a guarantor's response to a guarantee request.
type ConsentStatus string

const (
	ConsentPending  ConsentStatus = "pending"
	ConsentAccepted ConsentStatus = "accepted"
	ConsentRejected ConsentStatus = "rejected"
)

// Guarantor pledges part of a member's loan. Exposure for a member is the
// sum of guaranteed amounts across loans where consent is not rejected and
// the guaranteed loan is not fully repaid or rejected.
type Guarantor struct {
	ID           uuid.UUID       `json:"id"`
	LoanID       uuid.UUID       `json:"loan_id"`
	MemberID     uuid.UUID       `json:"member_id"`
	Relationship string          `json:"relationship,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Consent      ConsentStatus   `json:"consent"`
	ConsentAt    *time.Time      `json:"consent_at,omitempty"`
}

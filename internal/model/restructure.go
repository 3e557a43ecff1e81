package model

import (
	"time"

	"github.com/google/uuid"
)

// RestructureType selects how a new schedule is derived from the remaining
// outstanding balance of a disbursed loan.
type RestructureType string

const (
	RestructureExtendTerm       RestructureType = "extend_term"
	RestructureReduceInstalment RestructureType = "reduce_instalment"
	RestructureAdjustRate       RestructureType = "adjust_rate"
	RestructureWaivePenalty     RestructureType = "waive_penalty"
	RestructureGracePeriod      RestructureType = "grace_period"
)

// RestructureRecord links a loan's archived schedule version to the one that
// replaced it. Prior postings are never reversed by a restructure.
type RestructureRecord struct {
	ID            uuid.UUID       `json:"id"`
	LoanID        uuid.UUID       `json:"loan_id"`
	Type          RestructureType `json:"type"`
	OldVersion    int             `json:"old_version"`
	NewVersion    int             `json:"new_version"`
	EffectiveDate time.Time       `json:"effective_date"`
	AppliedBy     string          `json:"applied_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InterestMethod selects how interest is computed over the term.
type InterestMethod string

const (
	InterestFlat            InterestMethod = "flat"
	InterestReducingBalance InterestMethod = "reducing_balance"
)

// Frequency controls instalment count and due-date spacing.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// PeriodsPerYear returns the number of instalment periods in a year.
func (f Frequency) PeriodsPerYear() int {
	switch f {
	case FrequencyDaily:
		return 365
	case FrequencyWeekly:
		return 52
	case FrequencyBiweekly:
		return 26
	default:
		return 12
	}
}

// FeeTiming controls when a product fee or insurance charge is collected.
type FeeTiming string

const (
	// FeeTimingDeducted deducts the charge from the disbursed proceeds.
	FeeTimingDeducted FeeTiming = "deducted"
	// FeeTimingUpfront adds the full charge to the first instalment.
	FeeTimingUpfront FeeTiming = "upfront"
	// FeeTimingSpread spreads the charge evenly across all instalments.
	FeeTimingSpread FeeTiming = "spread"
)

// LoanProduct holds the pricing and rule parameters for a class of loans.
// Once a disbursed loan references a product the product is immutable;
// edits apply only to future loans.
type LoanProduct struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Method             InterestMethod  `json:"method"`
	AnnualRate         decimal.Decimal `json:"annual_rate"` // 0.12 = 12% p.a.
	Frequency          Frequency       `json:"frequency"`
	MinAmount          decimal.Decimal `json:"min_amount"`
	MaxAmount          decimal.Decimal `json:"max_amount"`
	MinTermMonths      int             `json:"min_term_months"`
	MaxTermMonths      int             `json:"max_term_months"`
	ProcessingFeeRate  decimal.Decimal `json:"processing_fee_rate"` // of principal, charged once
	ProcessingTiming   FeeTiming       `json:"processing_timing"`
	InsuranceRate      decimal.Decimal `json:"insurance_rate"` // of principal, charged once
	InsuranceTiming    FeeTiming       `json:"insurance_timing"`
	SharesMultiplier   decimal.Decimal `json:"shares_multiplier"` // shares x multiplier must cover amount
	MinShares          decimal.Decimal `json:"min_shares"`
	AllowMultiple      bool            `json:"allow_multiple"`   // concurrent active loans on this product
	RequireStanding    bool            `json:"require_standing"` // no overdue instalments anywhere
	MinGuarantors      int             `json:"min_guarantors"`
	MaxGuarantorAmount decimal.Decimal `json:"max_guarantor_amount"`
	CollateralLTV      decimal.Decimal `json:"collateral_ltv"` // 0 = collateral not required
	CreatedAt          time.Time       `json:"created_at"`
}

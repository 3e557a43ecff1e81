package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementRow is one confirmed incoming payment from a settlement export.
// Receipt doubles as the idempotency reference when the row is recorded as a
// repayment.
type SettlementRow struct {
	Receipt     string // provider receipt number, unique per payment
	CompletedAt time.Time
	Amount      decimal.Decimal
	LoanRef     string // account reference the payer entered, e.g. "LN-000042"
	Method      string // e.g. "mpesa"
}

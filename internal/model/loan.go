package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusPending      LoanStatus = "pending"
	LoanStatusApproved     LoanStatus = "approved"
	LoanStatusRejected     LoanStatus = "rejected"
	LoanStatusDisbursed    LoanStatus = "disbursed"
	LoanStatusFullyRepaid  LoanStatus = "fully_repaid"
	LoanStatusDefaulted    LoanStatus = "defaulted"
	LoanStatusRestructured LoanStatus = "restructured"
)

// Active reports whether the loan carries a live schedule that can receive
// repayments. Defaulted loans still accept repayments but never leave
// defaulted without an explicit restructure or full repayment.
func (s LoanStatus) Active() bool {
	return s == LoanStatusDisbursed || s == LoanStatusRestructured || s == LoanStatusDefaulted
}

// Terminal reports whether the loan can no longer transition.
func (s LoanStatus) Terminal() bool {
	return s == LoanStatusFullyRepaid || s == LoanStatusRejected
}

// InstalmentStatus tracks one scheduled repayment unit.
type InstalmentStatus string

const (
	InstalmentUpcoming InstalmentStatus = "upcoming"
	InstalmentDue      InstalmentStatus = "due"
	InstalmentPaid     InstalmentStatus = "paid"
	InstalmentOverdue  InstalmentStatus = "overdue"
)

// Instalment is one row of a loan schedule. Portions are fixed at
// generation; only AmountPaid, Penalty and Status mutate afterwards.
type Instalment struct {
	ID         uuid.UUID        `json:"id"`
	LoanID     uuid.UUID        `json:"loan_id"`
	Version    int              `json:"version"` // schedule version this row belongs to
	Number     int              `json:"number"`  // 1-based within its version
	DueDate    time.Time        `json:"due_date"`
	Principal  decimal.Decimal  `json:"principal"`
	Interest   decimal.Decimal  `json:"interest"`
	Fee        decimal.Decimal  `json:"fee"`
	Insurance  decimal.Decimal  `json:"insurance"`
	Penalty    decimal.Decimal  `json:"penalty"`
	AmountPaid decimal.Decimal  `json:"amount_paid"`
	Status     InstalmentStatus `json:"status"`
}

// AmountDue is the full charge of the instalment including penalties.
func (i *Instalment) AmountDue() decimal.Decimal {
	return i.Principal.Add(i.Interest).Add(i.Fee).Add(i.Insurance).Add(i.Penalty)
}

// Balance is the unpaid remainder of the instalment.
func (i *Instalment) Balance() decimal.Decimal {
	return i.AmountDue().Sub(i.AmountPaid)
}

// Loan is a member's borrowing against a product. The schedule is generated
// once at disbursement and mutated only by allocation; restructuring writes
// a new schedule version and keeps prior versions read-only.
type Loan struct {
	ID              uuid.UUID       `json:"id"`
	Reference       string          `json:"reference"` // "LN-000042"
	ProductID       uuid.UUID       `json:"product_id"`
	MemberID        uuid.UUID       `json:"member_id"`
	Principal       decimal.Decimal `json:"principal"`
	TermMonths      int             `json:"term_months"`
	Status          LoanStatus      `json:"status"`
	ScheduleVersion int             `json:"schedule_version"` // 0 until disbursed
	RejectReason    string          `json:"reject_reason,omitempty"`
	AppliedAt       time.Time       `json:"applied_at"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	DisbursedAt     *time.Time      `json:"disbursed_at,omitempty"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty"`
}

// ScheduleOutstanding sums the unpaid balance across a schedule.
func ScheduleOutstanding(schedule []Instalment) decimal.Decimal {
	total := decimal.Zero
	for i := range schedule {
		total = total.Add(schedule[i].Balance())
	}
	return total
}

// SchedulePrincipalOutstanding sums the unpaid principal portions across a
// schedule, replaying each instalment's payments through the allocation
// waterfall order.
func SchedulePrincipalOutstanding(schedule []Instalment) decimal.Decimal {
	total := decimal.Zero
	for i := range schedule {
		inst := &schedule[i]
		// Payments consume penalty, interest, insurance and fee before
		// principal, so unpaid principal is the tail of the balance.
		nonPrincipal := inst.Penalty.Add(inst.Interest).Add(inst.Insurance).Add(inst.Fee)
		paidTowardPrincipal := inst.AmountPaid.Sub(nonPrincipal)
		if paidTowardPrincipal.IsNegative() {
			paidTowardPrincipal = decimal.Zero
		}
		remaining := inst.Principal.Sub(paidTowardPrincipal)
		if remaining.IsPositive() {
			total = total.Add(remaining)
		}
	}
	return total
}

// Payment is a received repayment, recorded for idempotency: the (loan,
// reference) pair is unique and a duplicate reference is a no-op.
type Payment struct {
	ID         uuid.UUID       `json:"id"`
	LoanID     uuid.UUID       `json:"loan_id"`
	Reference  string          `json:"reference"`
	Method     string          `json:"method"`
	Amount     decimal.Decimal `json:"amount"`
	Applied    decimal.Decimal `json:"applied"`
	Overpaid   decimal.Decimal `json:"overpaid"`
	EntryID    uuid.UUID       `json:"entry_id"` // journal entry posted for this payment
	ReceivedAt time.Time       `json:"received_at"`
}

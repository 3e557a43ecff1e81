// Package allocation applies a received payment against a loan schedule
// under the fixed waterfall: within each instalment, penalty, then interest,
// then insurance, then fee, then principal, walking instalments in due-date
// order.
package allocation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/harambee-dev/harambee/internal/fault"
	"github.com/harambee-dev/harambee/internal/model"
)

// Options control which instalments may receive the payment.
type Options struct {
	AsOf time.Time
	// ProactiveNext additionally includes the next instalment whose due date
	// has not yet arrived. Used by payroll auto-deduction, which collects an
	// instalment slightly ahead of its due date.
	ProactiveNext bool
}

// Application records what one instalment received, per component.
type Application struct {
	InstalmentNumber int             `json:"instalment_number"`
	Penalty          decimal.Decimal `json:"penalty"`
	Interest         decimal.Decimal `json:"interest"`
	Insurance        decimal.Decimal `json:"insurance"`
	Fee              decimal.Decimal `json:"fee"`
	Principal        decimal.Decimal `json:"principal"`
}

// Total sums all components of the application.
func (a Application) Total() decimal.Decimal {
	return a.Penalty.Add(a.Interest).Add(a.Insurance).Add(a.Fee).Add(a.Principal)
}

// Result is the outcome of one allocation. Overpayment is whatever the
// eligible instalments could not absorb; it is reported to the caller and
// never silently discarded.
type Result struct {
	Applications []Application   `json:"applications"`
	Totals       Application     `json:"totals"` // aggregate across instalments, drives postings
	Applied      decimal.Decimal `json:"applied"`
	Overpayment  decimal.Decimal `json:"overpayment"`
	FullyRepaid  bool            `json:"fully_repaid"` // every instalment balance reached zero
}

// Allocate walks the schedule in due-date order and applies payment under
// the waterfall, mutating AmountPaid and Status on the instalments it
// touches. A payment smaller than the first open instalment is a normal
// partial allocation, not an error.
func Allocate(schedule []model.Instalment, payment decimal.Decimal, opts Options) (*Result, error) {
	if payment.IsNegative() || payment.IsZero() {
		return nil, fault.Validationf(fault.CodeInvalidAmount, "payment must be positive, got %s", payment)
	}

	res := &Result{}
	remaining := payment
	proactiveBudget := 0
	if opts.ProactiveNext {
		proactiveBudget = 1
	}

	for i := range schedule {
		inst := &schedule[i]
		if inst.Balance().IsZero() {
			continue
		}
		if inst.DueDate.After(opts.AsOf) {
			if proactiveBudget == 0 {
				break
			}
			proactiveBudget--
		}
		if remaining.IsZero() {
			break
		}

		app := applyWaterfall(inst, &remaining)
		if app.Total().IsPositive() {
			res.Applications = append(res.Applications, app)
			res.Totals.Penalty = res.Totals.Penalty.Add(app.Penalty)
			res.Totals.Interest = res.Totals.Interest.Add(app.Interest)
			res.Totals.Insurance = res.Totals.Insurance.Add(app.Insurance)
			res.Totals.Fee = res.Totals.Fee.Add(app.Fee)
			res.Totals.Principal = res.Totals.Principal.Add(app.Principal)
		}
		if inst.Balance().IsZero() {
			inst.Status = model.InstalmentPaid
		}
	}

	res.Applied = payment.Sub(remaining)
	res.Overpayment = remaining
	res.FullyRepaid = model.ScheduleOutstanding(schedule).IsZero()
	return res, nil
}

// componentBalances replays an instalment's payments through the waterfall
// to find what remains of each component.
func componentBalances(inst *model.Instalment) (penalty, interest, insurance, fee, principal decimal.Decimal) {
	paid := inst.AmountPaid
	consume := func(portion decimal.Decimal) decimal.Decimal {
		covered := decimal.Min(paid, portion)
		paid = paid.Sub(covered)
		return portion.Sub(covered)
	}
	penalty = consume(inst.Penalty)
	interest = consume(inst.Interest)
	insurance = consume(inst.Insurance)
	fee = consume(inst.Fee)
	principal = consume(inst.Principal)
	return penalty, interest, insurance, fee, principal
}

// applyWaterfall consumes from remaining into one instalment, returning the
// per-component application.
func applyWaterfall(inst *model.Instalment, remaining *decimal.Decimal) Application {
	penalty, interest, insurance, fee, principal := componentBalances(inst)

	take := func(open decimal.Decimal) decimal.Decimal {
		got := decimal.Min(*remaining, open)
		*remaining = remaining.Sub(got)
		return got
	}

	app := Application{InstalmentNumber: inst.Number}
	app.Penalty = take(penalty)
	app.Interest = take(interest)
	app.Insurance = take(insurance)
	app.Fee = take(fee)
	app.Principal = take(principal)

	inst.AmountPaid = inst.AmountPaid.Add(app.Total())
	return app
}

// RefreshStatuses flips upcoming instalments to due once their due date
// arrives. Paid instalments never change; overdue classification is owned by
// the arrears sweep.
func RefreshStatuses(schedule []model.Instalment, asOf time.Time) {
	for i := range schedule {
		inst := &schedule[i]
		if inst.Status == model.InstalmentUpcoming && !inst.DueDate.After(asOf) {
			inst.Status = model.InstalmentDue
		}
	}
}

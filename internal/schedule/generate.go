// Package schedule generates repayment schedules. Generation is a pure
// function of its parameters: identical inputs always produce identical
// schedules, which audit and restructuring depend on.
package schedule

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harambee-dev/harambee/internal/fault"
	"github.com/harambee-dev/harambee/internal/model"
)

// Params are the inputs to schedule generation. Fee and insurance amounts
// are absolute (already computed against principal); a charge with timing
// "deducted" never appears on the schedule because it is withheld from the
// disbursed proceeds instead.
type Params struct {
	Principal        decimal.Decimal
	AnnualRate       decimal.Decimal // 0.12 = 12% p.a.
	TermMonths       int
	Frequency        model.Frequency
	Method           model.InterestMethod
	Start            time.Time // disbursement date; first instalment due one period later
	ProcessingFee    decimal.Decimal
	ProcessingTiming model.FeeTiming
	Insurance        decimal.Decimal
	InsuranceTiming  model.FeeTiming
}

// Generate produces the ordered instalment sequence for a loan. The sum of
// principal portions equals Principal exactly and the sum of interest
// portions equals the computed total interest exactly; any rounding residue
// is absorbed by the final instalment.
func Generate(p Params) ([]model.Instalment, error) {
	if !p.Principal.IsPositive() {
		return nil, fault.Validationf(fault.CodeInvalidAmount, "principal must be positive, got %s", p.Principal)
	}
	if p.TermMonths <= 0 {
		return nil, fault.Validationf(fault.CodeInvalidAmount, "term must be positive, got %d months", p.TermMonths)
	}
	if p.AnnualRate.IsNegative() {
		return nil, fault.Validationf(fault.CodeInvalidAmount, "annual rate must not be negative, got %s", p.AnnualRate)
	}

	n := InstalmentCount(p.TermMonths, p.Frequency)

	var principals, interests []decimal.Decimal
	switch p.Method {
	case model.InterestFlat:
		principals, interests = flatPortions(p.Principal, p.AnnualRate, p.TermMonths, n)
	case model.InterestReducingBalance:
		principals, interests = reducingPortions(p.Principal, p.AnnualRate, p.Frequency, n)
	default:
		return nil, fault.Validationf(fault.CodeInvalidProduct, "unknown interest method %q", p.Method)
	}

	fees := distributeCharge(p.ProcessingFee, p.ProcessingTiming, n)
	insurance := distributeCharge(p.Insurance, p.InsuranceTiming, n)

	instalments := make([]model.Instalment, n)
	for i := 0; i < n; i++ {
		instalments[i] = model.Instalment{
			Number:     i + 1,
			DueDate:    dueDate(p.Start, p.Frequency, i+1),
			Principal:  principals[i],
			Interest:   interests[i],
			Fee:        fees[i],
			Insurance:  insurance[i],
			Penalty:    decimal.Zero,
			AmountPaid: decimal.Zero,
			Status:     model.InstalmentUpcoming,
		}
	}
	return instalments, nil
}

// InstalmentCount derives the number of instalments from the term in months
// and the repayment frequency, rounding to the nearest whole period.
func InstalmentCount(termMonths int, f model.Frequency) int {
	if f == model.FrequencyMonthly {
		return termMonths
	}
	n := (termMonths*f.PeriodsPerYear() + 6) / 12
	if n < 1 {
		n = 1
	}
	return n
}

// flatPortions splits principal and flat-method total interest evenly,
// rounding down to the cent with the final instalment absorbing residue.
func flatPortions(principal, annualRate decimal.Decimal, termMonths, n int) (principals, interests []decimal.Decimal) {
	totalInterest := principal.
		Mul(annualRate).
		Mul(decimal.NewFromInt(int64(termMonths))).
		Div(decimal.NewFromInt(12)).
		Round(2)

	principals = splitEvenly(principal, n)
	interests = splitEvenly(totalInterest, n)
	return principals, interests
}

// reducingPortions computes annuity instalments: a fixed payment whose
// interest component is recomputed on the declining balance each period.
func reducingPortions(principal, annualRate decimal.Decimal, f model.Frequency, n int) (principals, interests []decimal.Decimal) {
	periodicRate := annualRate.Div(decimal.NewFromInt(int64(f.PeriodsPerYear())))
	principals = make([]decimal.Decimal, n)
	interests = make([]decimal.Decimal, n)

	if periodicRate.IsZero() {
		copy(principals, splitEvenly(principal, n))
		for i := range interests {
			interests[i] = decimal.Zero
		}
		return principals, interests
	}

	// The power term is computed in float64 and rounded back to the cent
	// before any monetary arithmetic; everything after is exact decimal.
	r := periodicRate.InexactFloat64()
	factor := math.Pow(1+r, float64(n))
	paymentFloat := principal.InexactFloat64() * r * factor / (factor - 1)
	payment := decimal.NewFromFloat(paymentFloat).Round(2)

	outstanding := principal
	for i := 0; i < n; i++ {
		interest := outstanding.Mul(periodicRate).Round(2)
		var principalPart decimal.Decimal
		if i == n-1 {
			// Final instalment absorbs the rounding residue so the schedule's
			// principal sums to the loan principal exactly.
			principalPart = outstanding
		} else {
			principalPart = payment.Sub(interest)
		}
		principals[i] = principalPart
		interests[i] = interest
		outstanding = outstanding.Sub(principalPart)
	}
	return principals, interests
}

// splitEvenly divides total into n portions rounded down to the cent, with
// the final portion absorbing the remainder so the portions sum exactly.
func splitEvenly(total decimal.Decimal, n int) []decimal.Decimal {
	portions := make([]decimal.Decimal, n)
	per := total.Div(decimal.NewFromInt(int64(n))).RoundDown(2)
	running := decimal.Zero
	for i := 0; i < n-1; i++ {
		portions[i] = per
		running = running.Add(per)
	}
	portions[n-1] = total.Sub(running)
	return portions
}

// distributeCharge places a one-off charge on the schedule per its timing.
func distributeCharge(amount decimal.Decimal, timing model.FeeTiming, n int) []decimal.Decimal {
	portions := make([]decimal.Decimal, n)
	for i := range portions {
		portions[i] = decimal.Zero
	}
	if amount.IsZero() {
		return portions
	}
	switch timing {
	case model.FeeTimingUpfront:
		portions[0] = amount
	case model.FeeTimingSpread:
		copy(portions, splitEvenly(amount, n))
	case model.FeeTimingDeducted:
		// Withheld from proceeds at disbursement; nothing on the schedule.
	}
	return portions
}

// dueDate returns the due date of the i-th instalment (1-based) after start.
// Monthly schedules keep the start's day-of-month, clamped to month length.
func dueDate(start time.Time, f model.Frequency, i int) time.Time {
	switch f {
	case model.FrequencyDaily:
		return start.AddDate(0, 0, i)
	case model.FrequencyWeekly:
		return start.AddDate(0, 0, 7*i)
	case model.FrequencyBiweekly:
		return start.AddDate(0, 0, 14*i)
	default:
		return addMonthsClamped(start, i)
	}
}

// addMonthsClamped advances by months keeping the day-of-month, clamping to
// the target month's length (Jan 31 + 1 month = Feb 28/29).
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(first.Year(), first.Month(), d,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

package loans

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/harambee-dev/harambee/internal/fault"
	"github.com/harambee-dev/harambee/internal/model"
	"github.com/harambee-dev/harambee/internal/schedule"
	"github.com/harambee-dev/harambee/internal/store"
)

// RestructureParams select how the replacement schedule is derived.
// NewTermMonths is the total term measured from disbursement, so it must
// exceed the elapsed term. A zero NewAnnualRate on AdjustRate means
// interest-free going forward.
type RestructureParams struct {
	Type          model.RestructureType
	NewTermMonths int
	NewAnnualRate decimal.Decimal
	GraceMonths   int
	EffectiveDate time.Time
	Actor         string
}

// Restructure derives a new schedule from the loan's remaining outstanding
// principal, archives the current schedule as a read-only prior version and
// records the change. Prior postings are never reversed: principal already
// collected stays collected, and no entry is posted by the restructure
// itself.
func (s *Service) Restructure(loanID uuid.UUID, p RestructureParams) ([]model.Instalment, error) {
	defer s.lockLoan(loanID)()

	loan, err := s.getLoan(loanID)
	if err != nil {
		return nil, err
	}
	if !loan.Status.Active() {
		return nil, fault.Statef(fault.CodeLoanNotDisbursed,
			"loan %s is %s, only disbursed loans can be restructured", loan.Reference, loan.Status)
	}
	product, err := s.getProduct(loan.ProductID)
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetSchedule(loan.ID, loan.ScheduleVersion)
	if err != nil {
		return nil, err
	}

	if p.Type == model.RestructureWaivePenalty {
		return s.waivePenalties(loan, current, p)
	}

	outstanding := model.SchedulePrincipalOutstanding(current)
	if outstanding.IsZero() {
		return nil, fault.Validationf(fault.CodeInvalidRestructureParams,
			"loan %s has no outstanding principal", loan.Reference)
	}

	elapsed := monthsBetween(*loan.DisbursedAt, p.EffectiveDate)
	termMonths, rate, start, err := restructureTerms(loan, product, p, elapsed)
	if err != nil {
		return nil, err
	}

	newSchedule, err := schedule.Generate(schedule.Params{
		Principal:  outstanding,
		AnnualRate: rate,
		TermMonths: termMonths,
		Frequency:  product.Frequency,
		Method:     product.Method,
		Start:      start,
		// Fees and insurance were charged at disbursement; a restructure
		// never charges them again.
	})
	if err != nil {
		return nil, err
	}

	// Unpaid penalties survive the restructure on the first new instalment.
	carryPenalty := unpaidPenalties(current)
	if carryPenalty.IsPositive() {
		newSchedule[0].Penalty = carryPenalty
	}

	newVersion := loan.ScheduleVersion + 1
	for i := range newSchedule {
		newSchedule[i].ID = uuid.New()
		newSchedule[i].LoanID = loan.ID
		newSchedule[i].Version = newVersion
	}

	record := &model.RestructureRecord{
		ID:            uuid.New(),
		LoanID:        loan.ID,
		Type:          p.Type,
		OldVersion:    loan.ScheduleVersion,
		NewVersion:    newVersion,
		EffectiveDate: p.EffectiveDate,
		AppliedBy:     p.Actor,
		CreatedAt:     time.Now().UTC(),
	}

	err = s.store.InTransaction(func(tx store.Storage) error {
		if err := tx.SaveSchedule(newSchedule); err != nil {
			return err
		}
		if err := tx.CreateRestructure(record); err != nil {
			return err
		}
		loan.ScheduleVersion = newVersion
		loan.Status = model.LoanStatusRestructured
		return tx.UpdateLoan(loan)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("loan restructured",
		zap.String("loan", loan.Reference),
		zap.String("type", string(p.Type)),
		zap.String("outstanding", outstanding.StringFixed(2)),
		zap.Int("version", newVersion))
	s.audit("restructure", loan.Reference, "", p.Actor,
		fmt.Sprintf("%s: schedule v%d -> v%d over %s", p.Type, record.OldVersion, newVersion, outstanding.StringFixed(2)))
	return newSchedule, nil
}

// restructureTerms resolves the new schedule's term, rate and start date
// per restructure type.
func restructureTerms(loan *model.Loan, product *model.LoanProduct,
	p RestructureParams, elapsed int) (termMonths int, rate decimal.Decimal, start time.Time, err error) {

	rate = product.AnnualRate
	start = p.EffectiveDate

	switch p.Type {
	case model.RestructureExtendTerm, model.RestructureReduceInstalment:
		if p.NewTermMonths <= elapsed {
			return 0, decimal.Zero, time.Time{}, fault.Validationf(fault.CodeInvalidRestructureParams,
				"new term of %d months is not longer than the %d months already elapsed", p.NewTermMonths, elapsed)
		}
		termMonths = p.NewTermMonths - elapsed
	case model.RestructureAdjustRate:
		if p.NewAnnualRate.IsNegative() {
			return 0, decimal.Zero, time.Time{}, fault.Validationf(fault.CodeInvalidRestructureParams,
				"new annual rate must not be negative")
		}
		rate = p.NewAnnualRate
		termMonths = loan.TermMonths - elapsed
	case model.RestructureGracePeriod:
		if p.GraceMonths <= 0 {
			return 0, decimal.Zero, time.Time{}, fault.Validationf(fault.CodeInvalidRestructureParams,
				"grace period must be positive, got %d months", p.GraceMonths)
		}
		termMonths = loan.TermMonths - elapsed
		start = p.EffectiveDate.AddDate(0, p.GraceMonths, 0)
	default:
		return 0, decimal.Zero, time.Time{}, fault.Validationf(fault.CodeInvalidRestructureParams,
			"unknown restructure type %q", p.Type)
	}

	if termMonths < 1 {
		termMonths = 1
	}
	return termMonths, rate, start, nil
}

// waivePenalties clears unpaid penalties on the current schedule. No new
// schedule version is created; nothing was posted for the penalties yet, so
// no journal entry is needed either.
func (s *Service) waivePenalties(loan *model.Loan, current []model.Instalment, p RestructureParams) ([]model.Instalment, error) {
	waived := decimal.Zero
	record := &model.RestructureRecord{
		ID:            uuid.New(),
		LoanID:        loan.ID,
		Type:          model.RestructureWaivePenalty,
		OldVersion:    loan.ScheduleVersion,
		NewVersion:    loan.ScheduleVersion,
		EffectiveDate: p.EffectiveDate,
		AppliedBy:     p.Actor,
		CreatedAt:     time.Now().UTC(),
	}

	err := s.store.InTransaction(func(tx store.Storage) error {
		for i := range current {
			inst := &current[i]
			open := unpaidPenalty(inst)
			if open.IsZero() {
				continue
			}
			waived = waived.Add(open)
			inst.Penalty = inst.Penalty.Sub(open)
			if inst.Balance().IsZero() {
				inst.Status = model.InstalmentPaid
			}
			if err := tx.UpdateInstalment(inst); err != nil {
				return err
			}
		}
		return tx.CreateRestructure(record)
	})
	if err != nil {
		return nil, err
	}

	s.audit("restructure", loan.Reference, "", p.Actor,
		fmt.Sprintf("waive_penalty: %s forgiven", waived.StringFixed(2)))
	return current, nil
}

// unpaidPenalty is the penalty portion not yet covered; the waterfall pays
// penalties first, so coverage is simply min(paid, penalty).
func unpaidPenalty(inst *model.Instalment) decimal.Decimal {
	covered := decimal.Min(inst.AmountPaid, inst.Penalty)
	return inst.Penalty.Sub(covered)
}

func unpaidPenalties(schedule []model.Instalment) decimal.Decimal {
	total := decimal.Zero
	for i := range schedule {
		total = total.Add(unpaidPenalty(&schedule[i]))
	}
	return total
}

// monthsBetween counts whole calendar months from a to b, never negative.
func monthsBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

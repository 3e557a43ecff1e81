package loans

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/harambee-dev/harambee/internal/allocation"
	"github.com/harambee-dev/harambee/internal/fault"
	"github.com/harambee-dev/harambee/internal/journal"
	"github.com/harambee-dev/harambee/internal/model"
	"github.com/harambee-dev/harambee/internal/store"
)

// RepaymentParams describe one incoming payment. Reference is the
// idempotency key: replaying a reference already recorded for the loan is a
// no-op that returns the original outcome.
type RepaymentParams struct {
	LoanID        uuid.UUID
	Amount        decimal.Decimal
	Method        string // "cash", "mpesa", anything else = bank
	Reference     string
	ProactiveNext bool // include the next not-yet-due instalment (auto-deduction)
	AsOf          time.Time
	Actor         string
}

// RepaymentResult reports how a payment landed.
type RepaymentResult struct {
	Payment        *model.Payment     `json:"payment"`
	Allocation     *allocation.Result `json:"allocation,omitempty"`
	Schedule       []model.Instalment `json:"schedule,omitempty"`
	LoanStatus     model.LoanStatus   `json:"loan_status"`
	AlreadyApplied bool               `json:"already_applied"` // reference seen before; nothing changed
}

// RecordRepayment allocates a payment against the loan's current schedule
// and posts the matching journal entry, all in one transaction. A payment
// smaller than the first open instalment is recorded as a partial
// allocation; a payment larger than everything outstanding reports the
// excess as overpayment.
func (s *Service) RecordRepayment(p RepaymentParams) (*RepaymentResult, error) {
	if p.Reference == "" {
		return nil, fault.Validationf(fault.CodeDuplicatePayment, "payment reference is required")
	}
	defer s.lockLoan(p.LoanID)()

	loan, err := s.getLoan(p.LoanID)
	if err != nil {
		return nil, err
	}

	// Idempotency: a scheduled trigger re-running an already-recorded
	// payment must not charge twice.
	if prior, err := s.store.GetPaymentByReference(p.LoanID, p.Reference); err == nil {
		s.log.Info("duplicate payment reference ignored",
			zap.String("loan", loan.Reference),
			zap.String("reference", p.Reference))
		return &RepaymentResult{Payment: prior, LoanStatus: loan.Status, AlreadyApplied: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if !loan.Status.Active() {
		return nil, fault.Statef(fault.CodeInvalidTransition,
			"loan %s is %s and cannot receive repayments", loan.Reference, loan.Status)
	}

	instalments, err := s.store.GetSchedule(loan.ID, loan.ScheduleVersion)
	if err != nil {
		return nil, err
	}
	allocation.RefreshStatuses(instalments, p.AsOf)

	result, err := allocation.Allocate(instalments, p.Amount, allocation.Options{
		AsOf:          p.AsOf,
		ProactiveNext: p.ProactiveNext,
	})
	if err != nil {
		return nil, err
	}

	payment := &model.Payment{
		ID:         uuid.New(),
		LoanID:     loan.ID,
		Reference:  p.Reference,
		Method:     p.Method,
		Amount:     p.Amount,
		Applied:    result.Applied,
		Overpaid:   result.Overpayment,
		ReceivedAt: p.AsOf,
	}

	err = s.store.InTransaction(func(tx store.Storage) error {
		if result.Applied.IsPositive() {
			lines, err := s.repaymentLines(loan, p.Method, result)
			if err != nil {
				return err
			}
			entry, err := s.journal.WithStore(tx).Post(journal.PostParams{
				Date:        p.AsOf,
				Description: "Repayment on " + loan.Reference,
				Lines:       lines,
			})
			if err != nil {
				return err
			}
			payment.EntryID = entry.ID
		}

		for i := range instalments {
			if err := tx.UpdateInstalment(&instalments[i]); err != nil {
				return err
			}
		}
		if err := tx.CreatePayment(payment); err != nil {
			return err
		}

		if result.FullyRepaid {
			now := time.Now().UTC()
			loan.Status = model.LoanStatusFullyRepaid
			loan.ClosedAt = &now
			return tx.UpdateLoan(loan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case result.Overpayment.IsPositive():
		s.log.Warn("overpayment received",
			zap.String("loan", loan.Reference),
			zap.String("overpayment", result.Overpayment.StringFixed(2)))
	case len(result.Applications) > 0 && instalments[result.Applications[0].InstalmentNumber-1].Balance().IsPositive():
		s.log.Info("partial allocation recorded",
			zap.String("loan", loan.Reference),
			zap.String("applied", result.Applied.StringFixed(2)))
	}

	s.audit("repay", loan.Reference, entryRefOf(payment), p.Actor,
		fmt.Sprintf("amount %s via %s ref %s", p.Amount.StringFixed(2), p.Method, p.Reference))

	return &RepaymentResult{
		Payment:    payment,
		Allocation: result,
		Schedule:   instalments,
		LoanStatus: loan.Status,
	}, nil
}

// repaymentLines builds the balanced entry for an allocation: debit the
// receiving account for what was applied, credit receivable for principal
// and the income accounts for the rest.
func (s *Service) repaymentLines(loan *model.Loan, method string, result *allocation.Result) ([]journal.Line, error) {
	receivingID, err := s.accounts.ResolveCode(s.ledger.ReceivingAccountCode(method))
	if err != nil {
		return nil, err
	}

	lines := []journal.Line{
		{AccountID: receivingID, Debit: result.Applied, Memo: "repayment " + loan.Reference},
	}
	credit := func(code int, amount decimal.Decimal, memo string) error {
		if !amount.IsPositive() {
			return nil
		}
		accountID, err := s.accounts.ResolveCode(code)
		if err != nil {
			return err
		}
		lines = append(lines, journal.Line{AccountID: accountID, Credit: amount, Memo: memo + " " + loan.Reference})
		return nil
	}

	if err := credit(s.ledger.LoansReceivable, result.Totals.Principal, "principal"); err != nil {
		return nil, err
	}
	if err := credit(s.ledger.InterestIncome, result.Totals.Interest, "interest"); err != nil {
		return nil, err
	}
	if err := credit(s.ledger.PenaltyIncome, result.Totals.Penalty, "penalty"); err != nil {
		return nil, err
	}
	if err := credit(s.ledger.InsuranceIncome, result.Totals.Insurance, "insurance"); err != nil {
		return nil, err
	}
	if err := credit(s.ledger.FeeIncome, result.Totals.Fee, "fee"); err != nil {
		return nil, err
	}
	return lines, nil
}

func entryRefOf(p *model.Payment) string {
	if p.EntryID == uuid.Nil {
		return ""
	}
	return p.EntryID.String()
}

// Package loans drives the loan lifecycle: application, approval,
// disbursement, repayment allocation and restructuring. Every transition
// that moves money posts its journal entry in the same transaction as the
// state change, so neither is ever observable without the other.
package loans

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/harambee-dev/harambee/internal/accounts"
	"github.com/harambee-dev/harambee/internal/auditlog"
	"github.com/harambee-dev/harambee/internal/config"
	"github.com/harambee-dev/harambee/internal/eligibility"
	"github.com/harambee-dev/harambee/internal/fault"
	"github.com/harambee-dev/harambee/internal/id"
	"github.com/harambee-dev/harambee/internal/journal"
	"github.com/harambee-dev/harambee/internal/model"
	"github.com/harambee-dev/harambee/internal/schedule"
	"github.com/harambee-dev/harambee/internal/store"
)

// Service orchestrates loan state against the ledger.
type Service struct {
	store    store.Storage
	journal  *journal.Service
	accounts *accounts.Service
	ledger   config.LedgerConfig
	arrears  config.ArrearsConfig
	auditDir string // "" disables the audit trail (tests)
	log      *zap.Logger
	validate *validator.Validate

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewService creates a loan Service.
func NewService(st store.Storage, jn *journal.Service, reg *accounts.Service,
	ledger config.LedgerConfig, arrears config.ArrearsConfig, auditDir string, log *zap.Logger) *Service {
	return &Service{
		store:    st,
		journal:  jn,
		accounts: reg,
		ledger:   ledger,
		arrears:  arrears,
		auditDir: auditDir,
		log:      log,
		validate: validator.New(),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockLoan serializes mutating operations per loan so two payments cannot
// race past each other and double-spend an instalment's balance.
func (s *Service) lockLoan(loanID uuid.UUID) func() {
	s.mu.Lock()
	l, ok := s.locks[loanID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[loanID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) audit(action string, loanRef, entryRef, actor, details string) {
	if s.auditDir == "" {
		return
	}
	err := auditlog.Append(s.auditDir, []auditlog.Entry{{
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Action:    action,
		LoanRef:   loanRef,
		EntryRef:  entryRef,
		Details:   details,
	}})
	if err != nil {
		s.log.Warn("audit log append failed", zap.Error(err))
	}
}

// ProductParams holds the parameters for creating a loan product.
type ProductParams struct {
	Name               string `validate:"required"`
	Method             model.InterestMethod
	AnnualRate         decimal.Decimal
	Frequency          model.Frequency
	MinAmount          decimal.Decimal
	MaxAmount          decimal.Decimal
	MinTermMonths      int `validate:"gt=0"`
	MaxTermMonths      int `validate:"gt=0"`
	ProcessingFeeRate  decimal.Decimal
	ProcessingTiming   model.FeeTiming
	InsuranceRate      decimal.Decimal
	InsuranceTiming    model.FeeTiming
	SharesMultiplier   decimal.Decimal
	MinShares          decimal.Decimal
	AllowMultiple      bool
	RequireStanding    bool
	MinGuarantors      int `validate:"gte=0"`
	MaxGuarantorAmount decimal.Decimal
	CollateralLTV      decimal.Decimal
}

// CreateProduct validates and stores a loan product.
func (s *Service) CreateProduct(p ProductParams) (*model.LoanProduct, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, fault.Validationf(fault.CodeInvalidProduct, "invalid product: %v", err)
	}
	switch p.Method {
	case model.InterestFlat, model.InterestReducingBalance:
	default:
		return nil, fault.Validationf(fault.CodeInvalidProduct, "unknown interest method %q", p.Method)
	}
	switch p.Frequency {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyBiweekly, model.FrequencyMonthly:
	default:
		return nil, fault.Validationf(fault.CodeInvalidProduct, "unknown frequency %q", p.Frequency)
	}
	if p.AnnualRate.IsNegative() {
		return nil, fault.Validationf(fault.CodeInvalidProduct, "annual rate must not be negative")
	}
	if p.MinAmount.GreaterThan(p.MaxAmount) {
		return nil, fault.Validationf(fault.CodeInvalidProduct, "min amount %s exceeds max amount %s",
			p.MinAmount.StringFixed(2), p.MaxAmount.StringFixed(2))
	}
	if p.MinTermMonths > p.MaxTermMonths {
		return nil, fault.Validationf(fault.CodeInvalidProduct, "min term %d exceeds max term %d",
			p.MinTermMonths, p.MaxTermMonths)
	}

	product := &model.LoanProduct{
		ID:                 uuid.New(),
		Name:               p.Name,
		Method:             p.Method,
		AnnualRate:         p.AnnualRate,
		Frequency:          p.Frequency,
		MinAmount:          p.MinAmount,
		MaxAmount:          p.MaxAmount,
		MinTermMonths:      p.MinTermMonths,
		MaxTermMonths:      p.MaxTermMonths,
		ProcessingFeeRate:  p.ProcessingFeeRate,
		ProcessingTiming:   p.ProcessingTiming,
		InsuranceRate:      p.InsuranceRate,
		InsuranceTiming:    p.InsuranceTiming,
		SharesMultiplier:   p.SharesMultiplier,
		MinShares:          p.MinShares,
		AllowMultiple:      p.AllowMultiple,
		RequireStanding:    p.RequireStanding,
		MinGuarantors:      p.MinGuarantors,
		MaxGuarantorAmount: p.MaxGuarantorAmount,
		CollateralLTV:      p.CollateralLTV,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.store.CreateProduct(product); err != nil {
		return nil, err
	}
	return product, nil
}

// GuarantorPledge is a proposed guarantee attached to an application.
type GuarantorPledge struct {
	MemberID     uuid.UUID
	Relationship string
	Amount       decimal.Decimal
}

// CheckEligibility runs the pre-lending checks without recording anything.
func (s *Service) CheckEligibility(member model.MemberSnapshot, productID uuid.UUID,
	amount decimal.Decimal, termMonths int, pledges []GuarantorPledge) (eligibility.Report, error) {

	product, err := s.getProduct(productID)
	if err != nil {
		return eligibility.Report{}, err
	}
	elig := make([]eligibility.GuarantorPledge, len(pledges))
	for i, pl := range pledges {
		elig[i] = eligibility.GuarantorPledge{MemberID: pl.MemberID.String(), Amount: pl.Amount}
	}
	return eligibility.Evaluate(eligibility.Request{
		Member:     member,
		Product:    *product,
		Amount:     amount,
		TermMonths: termMonths,
		Pledges:    elig,
	}), nil
}

// Apply evaluates eligibility and, if the member qualifies, records a
// pending loan with its guarantor requests.
func (s *Service) Apply(member model.MemberSnapshot, productID uuid.UUID,
	amount decimal.Decimal, termMonths int, pledges []GuarantorPledge) (*model.Loan, error) {

	product, err := s.getProduct(productID)
	if err != nil {
		return nil, err
	}

	elig := make([]eligibility.GuarantorPledge, len(pledges))
	for i, pl := range pledges {
		elig[i] = eligibility.GuarantorPledge{MemberID: pl.MemberID.String(), Amount: pl.Amount}
	}
	report := eligibility.Evaluate(eligibility.Request{
		Member:     member,
		Product:    *product,
		Amount:     amount,
		TermMonths: termMonths,
		Pledges:    elig,
	})
	if !report.Eligible {
		var reasons []string
		for _, c := range report.Checks {
			if !c.Passed {
				reasons = append(reasons, c.Reason)
			}
		}
		return nil, fault.Eligibilityf(fault.CodeNotEligible, "%s", strings.Join(reasons, "; "))
	}

	seq, err := s.store.NextLoanSeq()
	if err != nil {
		return nil, err
	}
	loan := &model.Loan{
		ID:         uuid.New(),
		Reference:  id.FormatLoanRef(seq),
		ProductID:  productID,
		MemberID:   member.MemberID,
		Principal:  amount,
		TermMonths: termMonths,
		Status:     model.LoanStatusPending,
		AppliedAt:  time.Now().UTC(),
	}

	guarantors := make([]model.Guarantor, len(pledges))
	for i, pl := range pledges {
		guarantors[i] = model.Guarantor{
			ID:           uuid.New(),
			LoanID:       loan.ID,
			MemberID:     pl.MemberID,
			Relationship: pl.Relationship,
			Amount:       pl.Amount,
			Consent:      model.ConsentPending,
		}
	}

	if err := s.store.CreateLoan(loan, guarantors); err != nil {
		return nil, err
	}
	s.audit("apply", loan.Reference, "", member.MemberID.String(),
		fmt.Sprintf("amount %s over %d months", amount.StringFixed(2), termMonths))
	return loan, nil
}

// Approve moves a pending loan to approved.
func (s *Service) Approve(loanID uuid.UUID, actor string) (*model.Loan, error) {
	defer s.lockLoan(loanID)()

	loan, err := s.getLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != model.LoanStatusPending {
		return nil, fault.Statef(fault.CodeInvalidTransition,
			"loan %s is %s, only pending loans can be approved", loan.Reference, loan.Status)
	}

	now := time.Now().UTC()
	loan.Status = model.LoanStatusApproved
	loan.ApprovedAt = &now
	if err := s.store.UpdateLoan(loan); err != nil {
		return nil, err
	}
	s.audit("approve", loan.Reference, "", actor, "")
	return loan, nil
}

// Reject moves a pending loan to rejected with a reason.
func (s *Service) Reject(loanID uuid.UUID, reason, actor string) (*model.Loan, error) {
	defer s.lockLoan(loanID)()

	loan, err := s.getLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != model.LoanStatusPending {
		return nil, fault.Statef(fault.CodeInvalidTransition,
			"loan %s is %s, only pending loans can be rejected", loan.Reference, loan.Status)
	}

	loan.Status = model.LoanStatusRejected
	loan.RejectReason = reason
	if err := s.store.UpdateLoan(loan); err != nil {
		return nil, err
	}
	s.audit("reject", loan.Reference, "", actor, reason)
	return loan, nil
}

// Disburse generates the schedule and posts the disbursement entry in one
// transaction: debit loans receivable for the principal, credit the paying
// account for the proceeds, credit income for any charge withheld up front.
func (s *Service) Disburse(loanID uuid.UUID, method string, asOf time.Time, actor string) ([]model.Instalment, error) {
	defer s.lockLoan(loanID)()

	loan, err := s.getLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != model.LoanStatusApproved {
		return nil, fault.Statef(fault.CodeInvalidTransition,
			"loan %s is %s, only approved loans can be disbursed", loan.Reference, loan.Status)
	}
	product, err := s.getProduct(loan.ProductID)
	if err != nil {
		return nil, err
	}

	processingFee := loan.Principal.Mul(product.ProcessingFeeRate).Round(2)
	insurance := loan.Principal.Mul(product.InsuranceRate).Round(2)

	instalments, err := schedule.Generate(schedule.Params{
		Principal:        loan.Principal,
		AnnualRate:       product.AnnualRate,
		TermMonths:       loan.TermMonths,
		Frequency:        product.Frequency,
		Method:           product.Method,
		Start:            asOf,
		ProcessingFee:    processingFee,
		ProcessingTiming: product.ProcessingTiming,
		Insurance:        insurance,
		InsuranceTiming:  product.InsuranceTiming,
	})
	if err != nil {
		return nil, err
	}
	for i := range instalments {
		instalments[i].ID = uuid.New()
		instalments[i].LoanID = loan.ID
		instalments[i].Version = 1
	}

	receivableID, err := s.accounts.ResolveCode(s.ledger.LoansReceivable)
	if err != nil {
		return nil, err
	}
	payingID, err := s.accounts.ResolveCode(s.ledger.ReceivingAccountCode(method))
	if err != nil {
		return nil, err
	}

	proceeds := loan.Principal
	lines := []journal.Line{
		{AccountID: receivableID, Debit: loan.Principal, Memo: "principal " + loan.Reference},
	}
	if product.ProcessingTiming == model.FeeTimingDeducted && processingFee.IsPositive() {
		feeID, err := s.accounts.ResolveCode(s.ledger.FeeIncome)
		if err != nil {
			return nil, err
		}
		proceeds = proceeds.Sub(processingFee)
		lines = append(lines, journal.Line{AccountID: feeID, Credit: processingFee, Memo: "processing fee " + loan.Reference})
	}
	if product.InsuranceTiming == model.FeeTimingDeducted && insurance.IsPositive() {
		insID, err := s.accounts.ResolveCode(s.ledger.InsuranceIncome)
		if err != nil {
			return nil, err
		}
		proceeds = proceeds.Sub(insurance)
		lines = append(lines, journal.Line{AccountID: insID, Credit: insurance, Memo: "insurance " + loan.Reference})
	}
	lines = append(lines, journal.Line{AccountID: payingID, Credit: proceeds, Memo: "proceeds " + loan.Reference})

	var entryRef string
	err = s.store.InTransaction(func(tx store.Storage) error {
		entry, err := s.journal.WithStore(tx).Post(journal.PostParams{
			Date:        asOf,
			Description: "Disbursement of " + loan.Reference,
			Lines:       lines,
		})
		if err != nil {
			return err
		}
		entryRef = entry.Reference

		if err := tx.SaveSchedule(instalments); err != nil {
			return err
		}

		disbursedAt := asOf
		loan.Status = model.LoanStatusDisbursed
		loan.ScheduleVersion = 1
		loan.DisbursedAt = &disbursedAt
		return tx.UpdateLoan(loan)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("loan disbursed",
		zap.String("loan", loan.Reference),
		zap.String("principal", loan.Principal.StringFixed(2)),
		zap.Int("instalments", len(instalments)))
	s.audit("disburse", loan.Reference, entryRef, actor,
		fmt.Sprintf("method %s, proceeds %s", method, proceeds.StringFixed(2)))
	return instalments, nil
}

// Get returns a loan by ID.
func (s *Service) Get(loanID uuid.UUID) (*model.Loan, error) {
	return s.getLoan(loanID)
}

// GetByReference returns a loan by its human reference.
func (s *Service) GetByReference(ref string) (*model.Loan, error) {
	loan, err := s.store.GetLoanByReference(ref)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.Validationf(fault.CodeLoanNotFound, "loan %s does not exist", ref)
	}
	return loan, err
}

// Schedule returns a loan's schedule at the given version; version 0 means
// the current one. Prior versions are the read-only archive kept by
// restructuring.
func (s *Service) Schedule(loanID uuid.UUID, version int) ([]model.Instalment, error) {
	loan, err := s.getLoan(loanID)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		version = loan.ScheduleVersion
	}
	if version == 0 {
		return nil, fault.Statef(fault.CodeLoanNotDisbursed, "loan %s has no schedule yet", loan.Reference)
	}
	return s.store.GetSchedule(loanID, version)
}

// Restructures returns the loan's restructure history.
func (s *Service) Restructures(loanID uuid.UUID) ([]model.RestructureRecord, error) {
	return s.store.ListRestructures(loanID)
}

// RecordGuarantorConsent records a guarantor's accept/reject on a pending
// guarantee.
func (s *Service) RecordGuarantorConsent(guarantorID uuid.UUID, accepted bool) (*model.Guarantor, error) {
	g, err := s.store.GetGuarantor(guarantorID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.Validationf(fault.CodeLoanNotFound, "guarantee %s does not exist", guarantorID)
	}
	if err != nil {
		return nil, err
	}
	if g.Consent != model.ConsentPending {
		return nil, fault.Statef(fault.CodeInvalidTransition, "guarantee is already %s", g.Consent)
	}

	now := time.Now().UTC()
	if accepted {
		g.Consent = model.ConsentAccepted
	} else {
		g.Consent = model.ConsentRejected
	}
	g.ConsentAt = &now
	if err := s.store.UpdateGuarantor(g); err != nil {
		return nil, err
	}
	return g, nil
}

// GuarantorExposure sums a member's live guaranteed amounts.
func (s *Service) GuarantorExposure(memberID uuid.UUID) (decimal.Decimal, error) {
	return s.store.GuarantorExposure(memberID)
}

// MarkOverdue is the arrears sweep, invoked by the external scheduler. It
// flips past-due instalments to overdue, assesses the configured late
// penalty on each instalment's unpaid balance as it flips, and classifies
// loans as defaulted once an instalment has been overdue longer than the
// configured threshold. Penalty income is posted when the penalty is
// collected, not when it is assessed.
func (s *Service) MarkOverdue(asOf time.Time, actor string) error {
	loans, err := s.store.ListActiveLoans()
	if err != nil {
		return err
	}

	for _, loan := range loans {
		if err := s.sweepLoan(loan, asOf, actor); err != nil {
			return fmt.Errorf("sweeping %s: %w", loan.Reference, err)
		}
	}
	return nil
}

func (s *Service) sweepLoan(loan *model.Loan, asOf time.Time, actor string) error {
	unlock := s.lockLoan(loan.ID)
	defer unlock()

	instalments, err := s.store.GetSchedule(loan.ID, loan.ScheduleVersion)
	if err != nil {
		return err
	}

	penaltyRate := decimal.NewFromFloat(s.arrears.LatePenaltyRate)
	assessed := decimal.Zero
	var oldestOverdue *time.Time
	for i := range instalments {
		inst := &instalments[i]
		if inst.Status == model.InstalmentPaid || inst.DueDate.After(asOf) {
			continue
		}
		if inst.Status != model.InstalmentOverdue {
			// Assessed once, on the flip; repeat sweeps never compound it.
			if penaltyRate.IsPositive() {
				penalty := inst.Balance().Mul(penaltyRate).Round(2)
				inst.Penalty = inst.Penalty.Add(penalty)
				assessed = assessed.Add(penalty)
			}
			inst.Status = model.InstalmentOverdue
			if err := s.store.UpdateInstalment(inst); err != nil {
				return err
			}
		}
		if oldestOverdue == nil || inst.DueDate.Before(*oldestOverdue) {
			due := inst.DueDate
			oldestOverdue = &due
		}
	}

	if assessed.IsPositive() {
		s.log.Info("late penalties assessed",
			zap.String("loan", loan.Reference),
			zap.String("amount", assessed.StringFixed(2)))
		s.audit("penalty", loan.Reference, "", actor,
			fmt.Sprintf("%s assessed on overdue instalments", assessed.StringFixed(2)))
	}

	if s.arrears.DefaultAfterDays <= 0 || oldestOverdue == nil || loan.Status == model.LoanStatusDefaulted {
		return nil
	}
	deadline := oldestOverdue.AddDate(0, 0, s.arrears.DefaultAfterDays)
	if asOf.Before(deadline) {
		return nil
	}

	loan.Status = model.LoanStatusDefaulted
	if err := s.store.UpdateLoan(loan); err != nil {
		return err
	}
	s.log.Warn("loan defaulted",
		zap.String("loan", loan.Reference),
		zap.Time("oldest_overdue", *oldestOverdue))
	s.audit("default", loan.Reference, "", actor,
		fmt.Sprintf("overdue since %s", oldestOverdue.Format("2006-01-02")))
	return nil
}

func (s *Service) getLoan(loanID uuid.UUID) (*model.Loan, error) {
	loan, err := s.store.GetLoan(loanID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.Validationf(fault.CodeLoanNotFound, "loan %s does not exist", loanID)
	}
	return loan, err
}

func (s *Service) getProduct(productID uuid.UUID) (*model.LoanProduct, error) {
	product, err := s.store.GetProduct(productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.Validationf(fault.CodeInvalidProduct, "product %s does not exist", productID)
	}
	return product, err
}

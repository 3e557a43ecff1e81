package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harambee-dev/harambee/internal/loans"
	"github.com/harambee-dev/harambee/internal/model"
)

type createProductRequest struct {
	Name               string          `json:"name" validate:"required"`
	Method             string          `json:"method" validate:"required"`
	AnnualRate         decimal.Decimal `json:"annual_rate"`
	Frequency          string          `json:"frequency" validate:"required"`
	MinAmount          decimal.Decimal `json:"min_amount"`
	MaxAmount          decimal.Decimal `json:"max_amount"`
	MinTermMonths      int             `json:"min_term_months" validate:"gt=0"`
	MaxTermMonths      int             `json:"max_term_months" validate:"gt=0"`
	ProcessingFeeRate  decimal.Decimal `json:"processing_fee_rate"`
	ProcessingTiming   string          `json:"processing_timing"`
	InsuranceRate      decimal.Decimal `json:"insurance_rate"`
	InsuranceTiming    string          `json:"insurance_timing"`
	SharesMultiplier   decimal.Decimal `json:"shares_multiplier"`
	MinShares          decimal.Decimal `json:"min_shares"`
	AllowMultiple      bool            `json:"allow_multiple"`
	RequireStanding    bool            `json:"require_standing"`
	MinGuarantors      int             `json:"min_guarantors" validate:"gte=0"`
	MaxGuarantorAmount decimal.Decimal `json:"max_guarantor_amount"`
	CollateralLTV      decimal.Decimal `json:"collateral_ltv"`
}

func (s *Server) createProductHandler(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !s.decode(w, r, &req) {
		return
	}

	product, err := s.loans.CreateProduct(loans.ProductParams{
		Name:               req.Name,
		Method:             model.InterestMethod(req.Method),
		AnnualRate:         req.AnnualRate,
		Frequency:          model.Frequency(req.Frequency),
		MinAmount:          req.MinAmount,
		MaxAmount:          req.MaxAmount,
		MinTermMonths:      req.MinTermMonths,
		MaxTermMonths:      req.MaxTermMonths,
		ProcessingFeeRate:  req.ProcessingFeeRate,
		ProcessingTiming:   model.FeeTiming(req.ProcessingTiming),
		InsuranceRate:      req.InsuranceRate,
		InsuranceTiming:    model.FeeTiming(req.InsuranceTiming),
		SharesMultiplier:   req.SharesMultiplier,
		MinShares:          req.MinShares,
		AllowMultiple:      req.AllowMultiple,
		RequireStanding:    req.RequireStanding,
		MinGuarantors:      req.MinGuarantors,
		MaxGuarantorAmount: req.MaxGuarantorAmount,
		CollateralLTV:      req.CollateralLTV,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, product)
}

// memberSnapshotRequest carries the point-in-time member view supplied by
// the upstream member system. The engine trusts it as given.
type memberSnapshotRequest struct {
	MemberID             string          `json:"member_id" validate:"required"`
	Active               bool            `json:"active"`
	SharesBalance        decimal.Decimal `json:"shares_balance"`
	SavingsBalance       decimal.Decimal `json:"savings_balance"`
	CollateralValue      decimal.Decimal `json:"collateral_value"`
	ActiveLoanProductIDs []string        `json:"active_loan_product_ids"`
	HasOverdueInstalment bool            `json:"has_overdue_instalment"`
}

func (m *memberSnapshotRequest) toModel() (model.MemberSnapshot, error) {
	memberID, err := uuid.Parse(m.MemberID)
	if err != nil {
		return model.MemberSnapshot{}, err
	}
	productIDs := make([]uuid.UUID, len(m.ActiveLoanProductIDs))
	for i, raw := range m.ActiveLoanProductIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return model.MemberSnapshot{}, err
		}
		productIDs[i] = id
	}
	return model.MemberSnapshot{
		MemberID:             memberID,
		Active:               m.Active,
		SharesBalance:        m.SharesBalance,
		SavingsBalance:       m.SavingsBalance,
		CollateralValue:      m.CollateralValue,
		ActiveLoanProductIDs: productIDs,
		HasOverdueInstalment: m.HasOverdueInstalment,
	}, nil
}

type pledgeRequest struct {
	MemberID     string          `json:"member_id" validate:"required"`
	Relationship string          `json:"relationship"`
	Amount       decimal.Decimal `json:"amount"`
}

func toPledges(reqs []pledgeRequest) ([]loans.GuarantorPledge, error) {
	pledges := make([]loans.GuarantorPledge, len(reqs))
	for i, p := range reqs {
		memberID, err := uuid.Parse(p.MemberID)
		if err != nil {
			return nil, err
		}
		pledges[i] = loans.GuarantorPledge{
			MemberID:     memberID,
			Relationship: p.Relationship,
			Amount:       p.Amount,
		}
	}
	return pledges, nil
}

type applyRequest struct {
	Member     memberSnapshotRequest `json:"member" validate:"required"`
	ProductID  string                `json:"product_id" validate:"required"`
	Amount     decimal.Decimal       `json:"amount"`
	TermMonths int                   `json:"term_months" validate:"gt=0"`
	Guarantors []pledgeRequest       `json:"guarantors" validate:"dive"`
}

func (s *Server) applyHandler(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if !s.decode(w, r, &req) {
		return
	}
	member, productID, pledges, ok := s.applyInputs(w, &req)
	if !ok {
		return
	}

	loan, err := s.loans.Apply(member, productID, req.Amount, req.TermMonths, pledges)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, loan)
}

func (s *Server) checkEligibilityHandler(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if !s.decode(w, r, &req) {
		return
	}
	member, productID, pledges, ok := s.applyInputs(w, &req)
	if !ok {
		return
	}

	report, err := s.loans.CheckEligibility(member, productID, req.Amount, req.TermMonths, pledges)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, report)
}

func (s *Server) applyInputs(w http.ResponseWriter, req *applyRequest) (model.MemberSnapshot, uuid.UUID, []loans.GuarantorPledge, bool) {
	member, err := req.Member.toModel()
	if err != nil {
		s.badRequest(w, err)
		return model.MemberSnapshot{}, uuid.Nil, nil, false
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		s.badRequest(w, err)
		return model.MemberSnapshot{}, uuid.Nil, nil, false
	}
	pledges, err := toPledges(req.Guarantors)
	if err != nil {
		s.badRequest(w, err)
		return model.MemberSnapshot{}, uuid.Nil, nil, false
	}
	return member, productID, pledges, true
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	loan, err := s.loans.Get(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, loan)
}

type actorRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (s *Server) approveHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	var req actorRequest
	if !s.decode(w, r, &req) {
		return
	}
	loan, err := s.loans.Approve(id, req.Actor)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, loan)
}

func (s *Server) rejectHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	var req actorRequest
	if !s.decode(w, r, &req) {
		return
	}
	loan, err := s.loans.Reject(id, req.Reason, req.Actor)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, loan)
}

type disburseRequest struct {
	Method string    `json:"method"`
	AsOf   time.Time `json:"as_of"`
	Actor  string    `json:"actor"`
}

func (s *Server) disburseHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	var req disburseRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.AsOf.IsZero() {
		req.AsOf = time.Now().UTC()
	}

	schedule, err := s.loans.Disburse(id, req.Method, req.AsOf, req.Actor)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, schedule)
}

type repaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Reference     string          `json:"reference" validate:"required"`
	ProactiveNext bool            `json:"proactive_next"`
	AsOf          time.Time       `json:"as_of"`
	Actor         string          `json:"actor"`
}

func (s *Server) recordRepaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	var req repaymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.AsOf.IsZero() {
		req.AsOf = time.Now().UTC()
	}

	result, err := s.loans.RecordRepayment(loans.RepaymentParams{
		LoanID:        id,
		Amount:        req.Amount,
		Method:        req.Method,
		Reference:     req.Reference,
		ProactiveNext: req.ProactiveNext,
		AsOf:          req.AsOf,
		Actor:         req.Actor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	status := http.StatusCreated
	if result.AlreadyApplied {
		status = http.StatusOK
	}
	s.respond(w, status, result)
}

type restructureRequest struct {
	Type          string          `json:"type" validate:"required"`
	NewTermMonths int             `json:"new_term_months"`
	NewAnnualRate decimal.Decimal `json:"new_annual_rate"`
	GraceMonths   int             `json:"grace_months"`
	EffectiveDate time.Time       `json:"effective_date"`
	Actor         string          `json:"actor"`
}

func (s *Server) restructureHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	var req restructureRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.EffectiveDate.IsZero() {
		req.EffectiveDate = time.Now().UTC()
	}

	schedule, err := s.loans.Restructure(id, loans.RestructureParams{
		Type:          model.RestructureType(req.Type),
		NewTermMonths: req.NewTermMonths,
		NewAnnualRate: req.NewAnnualRate,
		GraceMonths:   req.GraceMonths,
		EffectiveDate: req.EffectiveDate,
		Actor:         req.Actor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, schedule)
}

func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	version := 0
	if raw := r.URL.Query().Get("version"); raw != "" {
		var err error
		version, err = strconv.Atoi(raw)
		if err != nil {
			s.badRequest(w, err)
			return
		}
	}

	schedule, err := s.loans.Schedule(id, version)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, schedule)
}

func (s *Server) restructuresHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	records, err := s.loans.Restructures(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, records)
}

type consentRequest struct {
	Accepted bool `json:"accepted"`
}

func (s *Server) consentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	var req consentRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.loans.RecordGuarantorConsent(id, req.Accepted)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, g)
}

type sweepRequest struct {
	AsOf  time.Time `json:"as_of"`
	Actor string    `json:"actor"`
}

func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.AsOf.IsZero() {
		req.AsOf = time.Now().UTC()
	}
	if err := s.loans.MarkOverdue(req.AsOf, req.Actor); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

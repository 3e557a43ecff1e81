package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harambee-dev/harambee/internal/model"
)

// --- Loan products ---

func (s *SQLiteStore) CreateProduct(p *model.LoanProduct) error {
	_, err := s.q.Exec(
		`INSERT INTO loan_products (
			id, name, method, annual_rate, frequency, min_amount, max_amount,
			min_term_months, max_term_months, processing_fee_rate, processing_timing,
			insurance_rate, insurance_timing, shares_multiplier, min_shares,
			allow_multiple, require_standing, min_guarantors, max_guarantor_amount,
			collateral_ltv, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.Name, string(p.Method), p.AnnualRate.String(), string(p.Frequency),
		p.MinAmount.String(), p.MaxAmount.String(), p.MinTermMonths, p.MaxTermMonths,
		p.ProcessingFeeRate.String(), string(p.ProcessingTiming),
		p.InsuranceRate.String(), string(p.InsuranceTiming),
		p.SharesMultiplier.String(), p.MinShares.String(),
		p.AllowMultiple, p.RequireStanding, p.MinGuarantors,
		p.MaxGuarantorAmount.String(), p.CollateralLTV.String(), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return nil
}

const productCols = `id, name, method, annual_rate, frequency, min_amount, max_amount,
	min_term_months, max_term_months, processing_fee_rate, processing_timing,
	insurance_rate, insurance_timing, shares_multiplier, min_shares,
	allow_multiple, require_standing, min_guarantors, max_guarantor_amount,
	collateral_ltv, created_at`

func scanProduct(row interface{ Scan(...any) error }) (*model.LoanProduct, error) {
	var (
		p                                          model.LoanProduct
		idStr, method, freq, procTiming, insTiming string
		rate, minAmt, maxAmt, procRate, insRate    string
		sharesMult, minShares, maxGuarantor, ltv   string
	)
	err := row.Scan(
		&idStr, &p.Name, &method, &rate, &freq, &minAmt, &maxAmt,
		&p.MinTermMonths, &p.MaxTermMonths, &procRate, &procTiming,
		&insRate, &insTiming, &sharesMult, &minShares,
		&p.AllowMultiple, &p.RequireStanding, &p.MinGuarantors,
		&maxGuarantor, &ltv, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	p.Method = model.InterestMethod(method)
	p.Frequency = model.Frequency(freq)
	p.ProcessingTiming = model.FeeTiming(procTiming)
	p.InsuranceTiming = model.FeeTiming(insTiming)
	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.AnnualRate, rate}, {&p.MinAmount, minAmt}, {&p.MaxAmount, maxAmt},
		{&p.ProcessingFeeRate, procRate}, {&p.InsuranceRate, insRate},
		{&p.SharesMultiplier, sharesMult}, {&p.MinShares, minShares},
		{&p.MaxGuarantorAmount, maxGuarantor}, {&p.CollateralLTV, ltv},
	} {
		if *field.dst, err = scanDecimal(field.src); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (s *SQLiteStore) GetProduct(id uuid.UUID) (*model.LoanProduct, error) {
	row := s.q.QueryRow(`SELECT `+productCols+` FROM loan_products WHERE id = ?`, id.String())
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return p, err
}

func (s *SQLiteStore) ListProducts() ([]*model.LoanProduct, error) {
	rows, err := s.q.Query(`SELECT ` + productCols + ` FROM loan_products ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var products []*model.LoanProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// --- Loans ---

func (s *SQLiteStore) CreateLoan(l *model.Loan, guarantors []model.Guarantor) error {
	return s.InTransaction(func(tx Storage) error {
		ts := tx.(*SQLiteStore)
		_, err := ts.q.Exec(
			`INSERT INTO loans (id, reference, product_id, member_id, principal, term_months,
			 status, schedule_version, reject_reason, applied_at, approved_at, disbursed_at, closed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID.String(), l.Reference, l.ProductID.String(), l.MemberID.String(),
			l.Principal.String(), l.TermMonths, string(l.Status), l.ScheduleVersion,
			l.RejectReason, l.AppliedAt, nullTime(l.ApprovedAt), nullTime(l.DisbursedAt), nullTime(l.ClosedAt),
		)
		if err != nil {
			return fmt.Errorf("creating loan %s: %w", l.Reference, err)
		}
		for i := range guarantors {
			g := &guarantors[i]
			_, err := ts.q.Exec(
				`INSERT INTO guarantors (id, loan_id, member_id, relationship, amount, consent, consent_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				g.ID.String(), g.LoanID.String(), g.MemberID.String(),
				g.Relationship, g.Amount.String(), string(g.Consent), nullTime(g.ConsentAt),
			)
			if err != nil {
				return fmt.Errorf("creating guarantor for %s: %w", l.Reference, err)
			}
		}
		return nil
	})
}

const loanCols = `id, reference, product_id, member_id, principal, term_months,
	status, schedule_version, reject_reason, applied_at, approved_at, disbursed_at, closed_at`

func scanLoan(row interface{ Scan(...any) error }) (*model.Loan, error) {
	var (
		l                           model.Loan
		idStr, pidStr, midStr       string
		principal, status           string
		approved, disbursed, closed sql.NullTime
	)
	err := row.Scan(
		&idStr, &l.Reference, &pidStr, &midStr, &principal, &l.TermMonths,
		&status, &l.ScheduleVersion, &l.RejectReason, &l.AppliedAt,
		&approved, &disbursed, &closed,
	)
	if err != nil {
		return nil, err
	}
	if l.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if l.ProductID, err = uuid.Parse(pidStr); err != nil {
		return nil, err
	}
	if l.MemberID, err = uuid.Parse(midStr); err != nil {
		return nil, err
	}
	if l.Principal, err = scanDecimal(principal); err != nil {
		return nil, err
	}
	l.Status = model.LoanStatus(status)
	l.ApprovedAt = scanNullTime(approved)
	l.DisbursedAt = scanNullTime(disbursed)
	l.ClosedAt = scanNullTime(closed)
	return &l, nil
}

func (s *SQLiteStore) GetLoan(id uuid.UUID) (*model.Loan, error) {
	row := s.q.QueryRow(`SELECT `+loanCols+` FROM loans WHERE id = ?`, id.String())
	l, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	return l, err
}

func (s *SQLiteStore) GetLoanByReference(ref string) (*model.Loan, error) {
	row := s.q.QueryRow(`SELECT `+loanCols+` FROM loans WHERE reference = ?`, ref)
	l, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loan %s: %w", ref, ErrNotFound)
	}
	return l, err
}

func (s *SQLiteStore) UpdateLoan(l *model.Loan) error {
	res, err := s.q.Exec(
		`UPDATE loans SET status = ?, schedule_version = ?, reject_reason = ?,
		 approved_at = ?, disbursed_at = ?, closed_at = ? WHERE id = ?`,
		string(l.Status), l.ScheduleVersion, l.RejectReason,
		nullTime(l.ApprovedAt), nullTime(l.DisbursedAt), nullTime(l.ClosedAt), l.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating loan %s: %w", l.Reference, err)
	}
	return rowsAffected(res, "loan")
}

func (s *SQLiteStore) NextLoanSeq() (int, error) {
	var n int
	if err := s.q.QueryRow(`SELECT COUNT(1) FROM loans`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting loans: %w", err)
	}
	return n + 1, nil
}

func (s *SQLiteStore) ListActiveLoans() ([]*model.Loan, error) {
	rows, err := s.q.Query(
		`SELECT `+loanCols+` FROM loans WHERE status IN (?, ?, ?) ORDER BY applied_at`,
		string(model.LoanStatusDisbursed), string(model.LoanStatusRestructured), string(model.LoanStatusDefaulted),
	)
	if err != nil {
		return nil, fmt.Errorf("listing active loans: %w", err)
	}
	defer rows.Close()

	var loans []*model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// --- Schedules ---

func (s *SQLiteStore) SaveSchedule(instalments []model.Instalment) error {
	return s.InTransaction(func(tx Storage) error {
		ts := tx.(*SQLiteStore)
		for i := range instalments {
			inst := &instalments[i]
			_, err := ts.q.Exec(
				`INSERT INTO instalments (id, loan_id, version, number, due_date,
				 principal, interest, fee, insurance, penalty, amount_paid, status)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				inst.ID.String(), inst.LoanID.String(), inst.Version, inst.Number, inst.DueDate,
				inst.Principal.String(), inst.Interest.String(), inst.Fee.String(),
				inst.Insurance.String(), inst.Penalty.String(), inst.AmountPaid.String(),
				string(inst.Status),
			)
			if err != nil {
				return fmt.Errorf("saving instalment %d: %w", inst.Number, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetSchedule(loanID uuid.UUID, version int) ([]model.Instalment, error) {
	rows, err := s.q.Query(
		`SELECT id, loan_id, version, number, due_date, principal, interest, fee,
		 insurance, penalty, amount_paid, status
		 FROM instalments WHERE loan_id = ? AND version = ? ORDER BY number`,
		loanID.String(), version,
	)
	if err != nil {
		return nil, fmt.Errorf("reading schedule: %w", err)
	}
	defer rows.Close()

	var schedule []model.Instalment
	for rows.Next() {
		var (
			inst                                     model.Instalment
			idStr, lidStr, status                    string
			principal, interest, fee, ins, pen, paid string
		)
		err := rows.Scan(
			&idStr, &lidStr, &inst.Version, &inst.Number, &inst.DueDate,
			&principal, &interest, &fee, &ins, &pen, &paid, &status,
		)
		if err != nil {
			return nil, err
		}
		if inst.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if inst.LoanID, err = uuid.Parse(lidStr); err != nil {
			return nil, err
		}
		for _, field := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&inst.Principal, principal}, {&inst.Interest, interest}, {&inst.Fee, fee},
			{&inst.Insurance, ins}, {&inst.Penalty, pen}, {&inst.AmountPaid, paid},
		} {
			if *field.dst, err = scanDecimal(field.src); err != nil {
				return nil, err
			}
		}
		inst.Status = model.InstalmentStatus(status)
		schedule = append(schedule, inst)
	}
	return schedule, rows.Err()
}

func (s *SQLiteStore) UpdateInstalment(inst *model.Instalment) error {
	res, err := s.q.Exec(
		`UPDATE instalments SET penalty = ?, amount_paid = ?, status = ? WHERE id = ?`,
		inst.Penalty.String(), inst.AmountPaid.String(), string(inst.Status), inst.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating instalment %d: %w", inst.Number, err)
	}
	return rowsAffected(res, "instalment")
}

// --- Guarantors ---

func (s *SQLiteStore) ListGuarantors(loanID uuid.UUID) ([]model.Guarantor, error) {
	rows, err := s.q.Query(
		`SELECT id, loan_id, member_id, relationship, amount, consent, consent_at
		 FROM guarantors WHERE loan_id = ?`, loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing guarantors: %w", err)
	}
	defer rows.Close()

	var guarantors []model.Guarantor
	for rows.Next() {
		g, err := scanGuarantor(rows)
		if err != nil {
			return nil, err
		}
		guarantors = append(guarantors, *g)
	}
	return guarantors, rows.Err()
}

func scanGuarantor(row interface{ Scan(...any) error }) (*model.Guarantor, error) {
	var (
		g                     model.Guarantor
		idStr, lidStr, midStr string
		amount, consent       string
		consentAt             sql.NullTime
	)
	err := row.Scan(&idStr, &lidStr, &midStr, &g.Relationship, &amount, &consent, &consentAt)
	if err != nil {
		return nil, err
	}
	if g.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if g.LoanID, err = uuid.Parse(lidStr); err != nil {
		return nil, err
	}
	if g.MemberID, err = uuid.Parse(midStr); err != nil {
		return nil, err
	}
	if g.Amount, err = scanDecimal(amount); err != nil {
		return nil, err
	}
	g.Consent = model.ConsentStatus(consent)
	g.ConsentAt = scanNullTime(consentAt)
	return &g, nil
}

func (s *SQLiteStore) GetGuarantor(id uuid.UUID) (*model.Guarantor, error) {
	row := s.q.QueryRow(
		`SELECT id, loan_id, member_id, relationship, amount, consent, consent_at
		 FROM guarantors WHERE id = ?`, id.String(),
	)
	g, err := scanGuarantor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("guarantor %s: %w", id, ErrNotFound)
	}
	return g, err
}

func (s *SQLiteStore) UpdateGuarantor(g *model.Guarantor) error {
	res, err := s.q.Exec(
		`UPDATE guarantors SET consent = ?, consent_at = ? WHERE id = ?`,
		string(g.Consent), nullTime(g.ConsentAt), g.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating guarantor: %w", err)
	}
	return rowsAffected(res, "guarantor")
}

// GuarantorExposure sums guaranteed amounts for a member across loans where
// consent is not rejected and the loan is still collectible.
func (s *SQLiteStore) GuarantorExposure(memberID uuid.UUID) (decimal.Decimal, error) {
	rows, err := s.q.Query(
		`SELECT g.amount FROM guarantors g JOIN loans l ON g.loan_id = l.id
		 WHERE g.member_id = ? AND g.consent != ? AND l.status NOT IN (?, ?)`,
		memberID.String(), string(model.ConsentRejected),
		string(model.LoanStatusFullyRepaid), string(model.LoanStatusRejected),
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing exposure: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		d, err := scanDecimal(amount)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

// --- Payments ---

func (s *SQLiteStore) CreatePayment(p *model.Payment) error {
	_, err := s.q.Exec(
		`INSERT INTO payments (id, loan_id, reference, method, amount, applied, overpaid, entry_id, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.LoanID.String(), p.Reference, p.Method,
		p.Amount.String(), p.Applied.String(), p.Overpaid.String(),
		nullUUID(p.EntryID), p.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("recording payment %s: %w", p.Reference, err)
	}
	return nil
}

func (s *SQLiteStore) GetPaymentByReference(loanID uuid.UUID, reference string) (*model.Payment, error) {
	row := s.q.QueryRow(
		`SELECT id, loan_id, reference, method, amount, applied, overpaid, entry_id, received_at
		 FROM payments WHERE loan_id = ? AND reference = ?`,
		loanID.String(), reference,
	)
	var (
		p                         model.Payment
		idStr, lidStr             string
		amount, applied, overpaid string
		entryID                   sql.NullString
	)
	err := row.Scan(&idStr, &lidStr, &p.Reference, &p.Method, &amount, &applied, &overpaid, &entryID, &p.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", reference, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading payment: %w", err)
	}
	if p.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if p.LoanID, err = uuid.Parse(lidStr); err != nil {
		return nil, err
	}
	if p.Amount, err = scanDecimal(amount); err != nil {
		return nil, err
	}
	if p.Applied, err = scanDecimal(applied); err != nil {
		return nil, err
	}
	if p.Overpaid, err = scanDecimal(overpaid); err != nil {
		return nil, err
	}
	if p.EntryID, err = scanUUID(entryID); err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Restructures ---

func (s *SQLiteStore) CreateRestructure(r *model.RestructureRecord) error {
	_, err := s.q.Exec(
		`INSERT INTO restructures (id, loan_id, type, old_version, new_version, effective_date, applied_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.LoanID.String(), string(r.Type),
		r.OldVersion, r.NewVersion, r.EffectiveDate, r.AppliedBy, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating restructure record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRestructures(loanID uuid.UUID) ([]model.RestructureRecord, error) {
	rows, err := s.q.Query(
		`SELECT id, loan_id, type, old_version, new_version, effective_date, applied_by, created_at
		 FROM restructures WHERE loan_id = ? ORDER BY created_at`, loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing restructures: %w", err)
	}
	defer rows.Close()

	var records []model.RestructureRecord
	for rows.Next() {
		var (
			r                      model.RestructureRecord
			idStr, lidStr, typeStr string
		)
		err := rows.Scan(&idStr, &lidStr, &typeStr, &r.OldVersion, &r.NewVersion, &r.EffectiveDate, &r.AppliedBy, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if r.LoanID, err = uuid.Parse(lidStr); err != nil {
			return nil, err
		}
		r.Type = model.RestructureType(typeStr)
		records = append(records, r)
	}
	return records, rows.Err()
}

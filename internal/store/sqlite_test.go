package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harambee-dev/harambee/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testAccount(code int, name string, typ model.AccountType) *model.Account {
	return &model.Account{
		ID:        uuid.New(),
		Code:      code,
		Name:      name,
		Type:      typ,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func TestAccountRoundtrip(t *testing.T) {
	st := newTestStore(t)

	a := testAccount(1010, "Cash", model.AccountTypeAsset)
	require.NoError(t, st.CreateAccount(a))

	got, err := st.GetAccount(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Code, got.Code)
	assert.Equal(t, a.Name, got.Name)
	assert.Equal(t, a.Type, got.Type)
	assert.True(t, got.Active)
	assert.Equal(t, uuid.Nil, got.ParentID)

	byCode, err := st.GetAccountByCode(1010)
	require.NoError(t, err)
	assert.Equal(t, a.ID, byCode.ID)

	_, err = st.GetAccount(uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestJournalEntryRoundtrip(t *testing.T) {
	st := newTestStore(t)

	cash := testAccount(1010, "Cash", model.AccountTypeAsset)
	income := testAccount(4010, "Interest Income", model.AccountTypeIncome)
	require.NoError(t, st.CreateAccount(cash))
	require.NoError(t, st.CreateAccount(income))

	entry := &model.JournalEntry{
		ID:          uuid.New(),
		Reference:   "JE-2025-01-0001",
		Date:        time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "interest received",
		Status:      model.EntryStatusPosted,
		CreatedAt:   time.Now().UTC(),
	}
	entry.Lines = []model.JournalLine{
		{ID: uuid.New(), EntryID: entry.ID, AccountID: cash.ID, Debit: d("150.25"), Credit: decimal.Zero},
		{ID: uuid.New(), EntryID: entry.ID, AccountID: income.ID, Debit: decimal.Zero, Credit: d("150.25")},
	}
	require.NoError(t, st.CreateJournalEntry(entry))

	got, err := st.GetJournalEntry(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "JE-2025-01-0001", got.Reference)
	assert.Equal(t, model.EntryStatusPosted, got.Status)
	require.Len(t, got.Lines, 2)
	assert.True(t, got.Lines[0].Debit.Equal(d("150.25")))
	assert.True(t, got.Lines[1].Credit.Equal(d("150.25")))
}

func TestNextEntrySeq(t *testing.T) {
	st := newTestStore(t)

	seq, err := st.NextEntrySeq(2025, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	// The sequence follows the highest existing reference in the month.
	require.NoError(t, st.CreateJournalEntry(&model.JournalEntry{
		ID:        uuid.New(),
		Reference: "JE-2025-01-0001",
		Date:      time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		Status:    model.EntryStatusPosted,
		CreatedAt: time.Now().UTC(),
	}))

	seq, err = st.NextEntrySeq(2025, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, seq)

	// A different month starts its own sequence.
	seq, err = st.NextEntrySeq(2025, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
}

func TestNextEntrySeq_PastFourDigits(t *testing.T) {
	st := newTestStore(t)

	// A five-digit suffix sorts below "9999" as a string; the sequence must
	// still advance numerically.
	for _, ref := range []string{"JE-2025-01-9999", "JE-2025-01-10000"} {
		require.NoError(t, st.CreateJournalEntry(&model.JournalEntry{
			ID:        uuid.New(),
			Reference: ref,
			Date:      time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
			Status:    model.EntryStatusPosted,
			CreatedAt: time.Now().UTC(),
		}))
	}

	seq, err := st.NextEntrySeq(2025, 1)
	require.NoError(t, err)
	assert.Equal(t, 10001, seq)
}

func TestSumPostings(t *testing.T) {
	st := newTestStore(t)

	cash := testAccount(1010, "Cash", model.AccountTypeAsset)
	income := testAccount(4010, "Interest Income", model.AccountTypeIncome)
	require.NoError(t, st.CreateAccount(cash))
	require.NoError(t, st.CreateAccount(income))

	post := func(date time.Time, amount string) {
		entry := &model.JournalEntry{
			ID:        uuid.New(),
			Reference: "JE-" + uuid.NewString()[:8],
			Date:      date,
			Status:    model.EntryStatusPosted,
			CreatedAt: time.Now().UTC(),
		}
		entry.Lines = []model.JournalLine{
			{ID: uuid.New(), EntryID: entry.ID, AccountID: cash.ID, Debit: d(amount), Credit: decimal.Zero},
			{ID: uuid.New(), EntryID: entry.ID, AccountID: income.ID, Debit: decimal.Zero, Credit: d(amount)},
		}
		require.NoError(t, st.CreateJournalEntry(entry))
	}

	post(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), "100.10")
	post(time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), "200.20")
	post(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), "400.40")

	// Only postings up to the cutoff count.
	debits, credits, err := st.SumPostings(cash.ID, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, debits.Equal(d("300.30")), "debits %s", debits)
	assert.True(t, credits.IsZero())

	debits, _, err = st.SumPostings(cash.ID, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, debits.Equal(d("700.70")), "debits %s", debits)
}

func makeLoan(t *testing.T, st *SQLiteStore) *model.Loan {
	t.Helper()
	product := &model.LoanProduct{
		ID:            uuid.New(),
		Name:          "Emergency Loan",
		Method:        model.InterestFlat,
		AnnualRate:    d("0.12"),
		Frequency:     model.FrequencyMonthly,
		MinAmount:     d("1000"),
		MaxAmount:     d("100000"),
		MinTermMonths: 1,
		MaxTermMonths: 12,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, st.CreateProduct(product))

	loan := &model.Loan{
		ID:         uuid.New(),
		Reference:  "LN-000001",
		ProductID:  product.ID,
		MemberID:   uuid.New(),
		Principal:  d("50000"),
		TermMonths: 6,
		Status:     model.LoanStatusPending,
		AppliedAt:  time.Now().UTC(),
	}
	require.NoError(t, st.CreateLoan(loan, nil))
	return loan
}

func TestLoanRoundtrip(t *testing.T) {
	st := newTestStore(t)
	loan := makeLoan(t, st)

	got, err := st.GetLoan(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "LN-000001", got.Reference)
	assert.Equal(t, model.LoanStatusPending, got.Status)
	assert.True(t, got.Principal.Equal(d("50000")))
	assert.Nil(t, got.DisbursedAt)

	byRef, err := st.GetLoanByReference("LN-000001")
	require.NoError(t, err)
	assert.Equal(t, loan.ID, byRef.ID)

	now := time.Now().UTC().Truncate(time.Second)
	got.Status = model.LoanStatusDisbursed
	got.ScheduleVersion = 1
	got.DisbursedAt = &now
	require.NoError(t, st.UpdateLoan(got))

	updated, err := st.GetLoan(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanStatusDisbursed, updated.Status)
	assert.Equal(t, 1, updated.ScheduleVersion)
	require.NotNil(t, updated.DisbursedAt)
	assert.True(t, updated.DisbursedAt.Equal(now))
}

func TestScheduleVersions(t *testing.T) {
	st := newTestStore(t)
	loan := makeLoan(t, st)

	v1 := []model.Instalment{
		{ID: uuid.New(), LoanID: loan.ID, Version: 1, Number: 1, DueDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			Principal: d("25000"), Interest: d("500"), Status: model.InstalmentUpcoming},
		{ID: uuid.New(), LoanID: loan.ID, Version: 1, Number: 2, DueDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			Principal: d("25000"), Interest: d("500"), Status: model.InstalmentUpcoming},
	}
	require.NoError(t, st.SaveSchedule(v1))

	v2 := []model.Instalment{
		{ID: uuid.New(), LoanID: loan.ID, Version: 2, Number: 1, DueDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			Principal: d("50000"), Interest: d("1000"), Status: model.InstalmentUpcoming},
	}
	require.NoError(t, st.SaveSchedule(v2))

	// Both versions stay retrievable; the archived one is untouched.
	gotV1, err := st.GetSchedule(loan.ID, 1)
	require.NoError(t, err)
	require.Len(t, gotV1, 2)
	assert.True(t, gotV1[0].Principal.Equal(d("25000")))

	gotV2, err := st.GetSchedule(loan.ID, 2)
	require.NoError(t, err)
	require.Len(t, gotV2, 1)

	gotV1[0].AmountPaid = d("10000")
	gotV1[0].Status = model.InstalmentDue
	require.NoError(t, st.UpdateInstalment(&gotV1[0]))

	reread, err := st.GetSchedule(loan.ID, 1)
	require.NoError(t, err)
	assert.True(t, reread[0].AmountPaid.Equal(d("10000")))
	assert.Equal(t, model.InstalmentDue, reread[0].Status)
}

func TestDuplicatePaymentReference(t *testing.T) {
	st := newTestStore(t)
	loan := makeLoan(t, st)

	p := &model.Payment{
		ID:         uuid.New(),
		LoanID:     loan.ID,
		Reference:  "MPESA-XYZ123",
		Method:     "mpesa",
		Amount:     d("5000"),
		Applied:    d("5000"),
		Overpaid:   decimal.Zero,
		ReceivedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreatePayment(p))

	dup := *p
	dup.ID = uuid.New()
	assert.Error(t, st.CreatePayment(&dup), "same reference on the same loan must be rejected")

	got, err := st.GetPaymentByReference(loan.ID, "MPESA-XYZ123")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = st.GetPaymentByReference(loan.ID, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInTransactionRollsBack(t *testing.T) {
	st := newTestStore(t)

	boom := errors.New("boom")
	err := st.InTransaction(func(tx Storage) error {
		if err := tx.CreateAccount(testAccount(1010, "Cash", model.AccountTypeAsset)); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	_, err = st.GetAccountByCode(1010)
	assert.True(t, errors.Is(err, ErrNotFound), "rolled-back account must not exist")
}

func TestInTransactionNests(t *testing.T) {
	st := newTestStore(t)

	err := st.InTransaction(func(tx Storage) error {
		if err := tx.CreateAccount(testAccount(1010, "Cash", model.AccountTypeAsset)); err != nil {
			return err
		}
		// The inner call reuses the outer transaction rather than deadlocking.
		return tx.InTransaction(func(inner Storage) error {
			return inner.CreateAccount(testAccount(1020, "Bank", model.AccountTypeAsset))
		})
	})
	require.NoError(t, err)

	_, err = st.GetAccountByCode(1010)
	assert.NoError(t, err)
	_, err = st.GetAccountByCode(1020)
	assert.NoError(t, err)
}

func TestGuarantorExposure(t *testing.T) {
	st := newTestStore(t)
	loan := makeLoan(t, st)

	guarantorMember := uuid.New()

	loan2 := *loan
	loan2.ID = uuid.New()
	loan2.Reference = "LN-000002"
	require.NoError(t, st.CreateLoan(&loan2, []model.Guarantor{{
		ID:       uuid.New(),
		LoanID:   loan2.ID,
		MemberID: guarantorMember,
		Amount:   d("15000"),
		Consent:  model.ConsentRejected,
	}}))

	loan3 := *loan
	loan3.ID = uuid.New()
	loan3.Reference = "LN-000003"
	require.NoError(t, st.CreateLoan(&loan3, []model.Guarantor{{
		ID:       uuid.New(),
		LoanID:   loan3.ID,
		MemberID: guarantorMember,
		Amount:   d("20000"),
		Consent:  model.ConsentAccepted,
	}}))

	// Rejected consents do not count toward exposure.
	exposure, err := st.GuarantorExposure(guarantorMember)
	require.NoError(t, err)
	assert.True(t, exposure.Equal(d("20000")), "exposure %s", exposure)
}

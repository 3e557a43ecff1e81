package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harambee-dev/harambee/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines the persistence operations the engine needs. The SQLite
// implementation stores all decimals as TEXT so no precision is lost.
type Storage interface {
	// Accounts
	CreateAccount(a *model.Account) error
	GetAccount(id uuid.UUID) (*model.Account, error)
	GetAccountByCode(code int) (*model.Account, error)
	ListAccounts() ([]*model.Account, error)
	UpdateAccount(a *model.Account) error
	DeleteAccount(id uuid.UUID) error
	AccountHasPostings(id uuid.UUID) (bool, error)

	// Journal
	CreateJournalEntry(e *model.JournalEntry) error
	GetJournalEntry(id uuid.UUID) (*model.JournalEntry, error)
	MarkEntryReversed(originalID, reversalID uuid.UUID) error
	NextEntrySeq(year, month int) (int, error)
	ListPostings(accountID uuid.UUID, from, to time.Time) ([]model.Posting, error)
	SumPostings(accountID uuid.UUID, asOf time.Time) (debits, credits decimal.Decimal, err error)

	// Loan products
	CreateProduct(p *model.LoanProduct) error
	GetProduct(id uuid.UUID) (*model.LoanProduct, error)
	ListProducts() ([]*model.LoanProduct, error)

	// Loans
	CreateLoan(l *model.Loan, guarantors []model.Guarantor) error
	GetLoan(id uuid.UUID) (*model.Loan, error)
	GetLoanByReference(ref string) (*model.Loan, error)
	UpdateLoan(l *model.Loan) error
	NextLoanSeq() (int, error)
	ListActiveLoans() ([]*model.Loan, error)

	// Schedules
	SaveSchedule(instalments []model.Instalment) error
	GetSchedule(loanID uuid.UUID, version int) ([]model.Instalment, error)
	UpdateInstalment(inst *model.Instalment) error

	// Guarantors
	ListGuarantors(loanID uuid.UUID) ([]model.Guarantor, error)
	GetGuarantor(id uuid.UUID) (*model.Guarantor, error)
	UpdateGuarantor(g *model.Guarantor) error
	GuarantorExposure(memberID uuid.UUID) (decimal.Decimal, error)

	// Payments
	CreatePayment(p *model.Payment) error
	GetPaymentByReference(loanID uuid.UUID, reference string) (*model.Payment, error)

	// Restructures
	CreateRestructure(r *model.RestructureRecord) error
	ListRestructures(loanID uuid.UUID) ([]model.RestructureRecord, error)

	// InTransaction runs fn against a Storage bound to a single database
	// transaction. A nested call reuses the outer transaction.
	InTransaction(fn func(Storage) error) error

	Close() error
}

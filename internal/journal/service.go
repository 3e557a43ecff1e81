// Package journal is the single mutation point for the ledger: it posts
// balanced entries atomically and reverses posted entries by emitting a new
// linked entry with the sides swapped. Entries are never deleted.
package journal

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/harambee-dev/harambee/internal/fault"
	"github.com/harambee-dev/harambee/internal/id"
	"github.com/harambee-dev/harambee/internal/model"
	"github.com/harambee-dev/harambee/internal/store"
)

// Service provides posting, reversal and reporting over the journal.
type Service struct {
	store store.Storage
	log   *zap.Logger
}

// NewService creates a journal Service.
func NewService(st store.Storage, log *zap.Logger) *Service {
	return &Service{store: st, log: log}
}

// WithStore returns a copy of the Service bound to st. Callers that post as
// part of a larger transaction pass their transaction-bound store so the
// entry commits or rolls back with the rest of the operation.
func (s *Service) WithStore(st store.Storage) *Service {
	return &Service{store: st, log: s.log}
}

// Line is a caller-facing posting instruction.
type Line struct {
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
}

// PostParams holds everything needed to post one business event as a single
// balanced entry.
type PostParams struct {
	Date        time.Time
	Description string
	Lines       []Line
}

// Post validates and posts an entry inside one transaction. All lines for a
// business event go through a single call; a partially posted entry is never
// observable. Returns the posted entry.
func (s *Service) Post(p PostParams) (*model.JournalEntry, error) {
	var posted *model.JournalEntry
	err := s.store.InTransaction(func(tx store.Storage) error {
		e, err := buildEntry(tx, p)
		if err != nil {
			return err
		}
		if err := validateEntry(tx, e, false); err != nil {
			return err
		}
		e.Status = model.EntryStatusPosted
		if err := tx.CreateJournalEntry(e); err != nil {
			return err
		}
		posted = e
		return nil
	})
	if err != nil {
		if fault.IsInvariant(err) {
			s.log.Error("journal posting rejected",
				zap.String("fault", fault.CodeOf(err)),
				zap.Error(err))
		}
		return nil, err
	}

	s.log.Info("journal entry posted",
		zap.String("reference", posted.Reference),
		zap.String("total", posted.TotalDebits().StringFixed(2)))
	return posted, nil
}

// buildEntry assigns identity and a monthly-sequence reference to a draft.
func buildEntry(tx store.Storage, p PostParams) (*model.JournalEntry, error) {
	seq, err := tx.NextEntrySeq(p.Date.Year(), int(p.Date.Month()))
	if err != nil {
		return nil, err
	}

	e := &model.JournalEntry{
		ID:          uuid.New(),
		Reference:   id.FormatEntryRef(p.Date.Year(), int(p.Date.Month()), seq),
		Date:        p.Date,
		Description: p.Description,
		Status:      model.EntryStatusDraft,
		CreatedAt:   time.Now().UTC(),
	}
	for _, l := range p.Lines {
		e.Lines = append(e.Lines, model.JournalLine{
			ID:        uuid.New(),
			EntryID:   e.ID,
			AccountID: l.AccountID,
			Debit:     l.Debit,
			Credit:    l.Credit,
			Memo:      l.Memo,
		})
	}
	return e, nil
}

// Get returns an entry with its lines.
func (s *Service) Get(entryID uuid.UUID) (*model.JournalEntry, error) {
	e, err := s.store.GetJournalEntry(entryID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.Validationf(fault.CodeEntryNotFound, "entry %s does not exist", entryID)
	}
	return e, err
}

// Reverse cancels a posted entry by posting a new entry with every line's
// debit and credit swapped, dated at reversal time and linked both ways.
// The original is marked reversed but never deleted.
func (s *Service) Reverse(entryID uuid.UUID, at time.Time) (*model.JournalEntry, error) {
	var reversal *model.JournalEntry
	err := s.store.InTransaction(func(tx store.Storage) error {
		original, err := tx.GetJournalEntry(entryID)
		if errors.Is(err, store.ErrNotFound) {
			return fault.Validationf(fault.CodeEntryNotFound, "entry %s does not exist", entryID)
		}
		if err != nil {
			return err
		}

		switch original.Status {
		case model.EntryStatusPosted:
			// reversible
		case model.EntryStatusReversed:
			return fault.Statef(fault.CodeAlreadyReversed, "entry %s is already reversed", original.Reference)
		default:
			return fault.Statef(fault.CodeEntryNotPosted, "entry %s is %s, only posted entries can be reversed",
				original.Reference, original.Status)
		}

		seq, err := tx.NextEntrySeq(at.Year(), int(at.Month()))
		if err != nil {
			return err
		}
		r := &model.JournalEntry{
			ID:          uuid.New(),
			Reference:   id.FormatEntryRef(at.Year(), int(at.Month()), seq),
			Date:        at,
			Description: "Reversal of " + original.Reference + ": " + original.Description,
			Status:      model.EntryStatusDraft,
			ReversesID:  original.ID,
			CreatedAt:   time.Now().UTC(),
		}
		for _, l := range original.Lines {
			r.Lines = append(r.Lines, model.JournalLine{
				ID:        uuid.New(),
				EntryID:   r.ID,
				AccountID: l.AccountID,
				Debit:     l.Credit,
				Credit:    l.Debit,
				Memo:      l.Memo,
			})
		}

		if err := validateEntry(tx, r, true); err != nil {
			return err
		}
		r.Status = model.EntryStatusPosted
		if err := tx.CreateJournalEntry(r); err != nil {
			return err
		}
		if err := tx.MarkEntryReversed(original.ID, r.ID); err != nil {
			return err
		}
		reversal = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("journal entry reversed",
		zap.String("original", entryID.String()),
		zap.String("reversal", reversal.Reference))
	return reversal, nil
}

// TrialBalanceRow is one account's posting totals.
type TrialBalanceRow struct {
	Account *model.Account  `json:"account"`
	Debits  decimal.Decimal `json:"debits"`
	Credits decimal.Decimal `json:"credits"`
}

// TrialBalance returns per-account totals as of a date plus the ledger-wide
// sums, which must always be equal.
func (s *Service) TrialBalance(asOf time.Time) ([]TrialBalanceRow, decimal.Decimal, decimal.Decimal, error) {
	accounts, err := s.store.ListAccounts()
	if err != nil {
		return nil, decimal.Zero, decimal.Zero, err
	}

	var rows []TrialBalanceRow
	totalDebits, totalCredits := decimal.Zero, decimal.Zero
	for _, a := range accounts {
		debits, credits, err := s.store.SumPostings(a.ID, asOf)
		if err != nil {
			return nil, decimal.Zero, decimal.Zero, err
		}
		if debits.IsZero() && credits.IsZero() {
			continue
		}
		rows = append(rows, TrialBalanceRow{Account: a, Debits: debits, Credits: credits})
		totalDebits = totalDebits.Add(debits)
		totalCredits = totalCredits.Add(credits)
	}

	if !totalDebits.Equal(totalCredits) {
		err := fault.Invariantf(fault.CodeUnbalancedEntry,
			"ledger out of balance: debits %s, credits %s",
			totalDebits.StringFixed(2), totalCredits.StringFixed(2))
		s.log.Error("trial balance failed", zap.Error(err))
		return nil, decimal.Zero, decimal.Zero, err
	}
	return rows, totalDebits, totalCredits, nil
}

// StatementLine is one posting with the running balance after it.
type StatementLine struct {
	Posting model.Posting   `json:"posting"`
	Balance decimal.Decimal `json:"balance"`
}

// AccountStatement returns an account's postings between from and to with a
// running signed balance, starting from the balance brought forward.
func (s *Service) AccountStatement(accountID uuid.UUID, from, to time.Time) ([]StatementLine, error) {
	a, err := s.store.GetAccount(accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.Validationf(fault.CodeAccountNotFound, "account %s does not exist", accountID)
	}
	if err != nil {
		return nil, err
	}

	debits, credits, err := s.store.SumPostings(accountID, from.Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}
	balance := debits.Sub(credits)
	if !a.Type.DebitNormal() {
		balance = credits.Sub(debits)
	}

	postings, err := s.store.ListPostings(accountID, from, to)
	if err != nil {
		return nil, err
	}

	lines := make([]StatementLine, 0, len(postings))
	for _, p := range postings {
		delta := p.Debit.Sub(p.Credit)
		if !a.Type.DebitNormal() {
			delta = p.Credit.Sub(p.Debit)
		}
		balance = balance.Add(delta)
		lines = append(lines, StatementLine{Posting: p, Balance: balance})
	}
	return lines, nil
}

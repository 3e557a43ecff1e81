package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryStatus represents the lifecycle state of a journal entry.
type EntryStatus string

const (
	EntryStatusDraft    EntryStatus = "draft"
	EntryStatusPosted   EntryStatus = "posted"
	EntryStatusReversed EntryStatus = "reversed"
)

// JournalLine is one side of a double-entry posting. Exactly one of Debit or
// Credit is nonzero.
type JournalLine struct {
	ID        uuid.UUID       `json:"id"`
	EntryID   uuid.UUID       `json:"entry_id"`
	AccountID uuid.UUID       `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`  // zero if credit side
	Credit    decimal.Decimal `json:"credit"` // zero if debit side
	Memo      string          `json:"memo,omitempty"`
}

// JournalEntry is a balanced set of lines recorded for one business event.
// Posted entries are immutable; they leave the ledger only by reversal,
// which creates a new linked entry with the sides swapped.
type JournalEntry struct {
	ID           uuid.UUID     `json:"id"`
	Reference    string        `json:"reference"` // "JE-YYYY-MM-NNNN"
	Date         time.Time     `json:"date"`
	Description  string        `json:"description"`
	Status       EntryStatus   `json:"status"`
	ReversesID   uuid.UUID     `json:"reverses_id,omitempty"`    // set on a reversal entry, points at the original
	ReversedByID uuid.UUID     `json:"reversed_by_id,omitempty"` // set on the original once reversed
	Lines        []JournalLine `json:"lines"`
	CreatedAt    time.Time     `json:"created_at"`
}

// TotalDebits sums the debit side of all lines.
func (e *JournalEntry) TotalDebits() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredits sums the credit side of all lines.
func (e *JournalEntry) TotalCredits() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// Posting is one line joined with its entry header, as read back for
// balances and statements.
type Posting struct {
	EntryID   uuid.UUID       `json:"entry_id"`
	Reference string          `json:"reference"`
	Date      time.Time       `json:"date"`
	AccountID uuid.UUID       `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo,omitempty"`
}

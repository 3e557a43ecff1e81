package model

import (
	"time"

	"github.com/google/uuid"
)

// AccountType classifies accounts in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether debits increase balances of this type.
// Assets and expenses are debit-normal; the rest are credit-normal.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Account is one node in the chart of accounts. Balance is never stored
// here; it is derived from postings.
type Account struct {
	ID        uuid.UUID   `json:"id"`
	Code      int         `json:"code"` // unique, e.g. 1210
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	ParentID  uuid.UUID   `json:"parent_id,omitempty"` // uuid.Nil = top-level
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
}

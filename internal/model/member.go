package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemberSnapshot is the point-in-time view of a member that eligibility
// checks run against. It is supplied by the member/shares lookup
// collaborator; the engine never mutates it.
type MemberSnapshot struct {
	MemberID             uuid.UUID
	Active               bool
	SharesBalance        decimal.Decimal
	SavingsBalance       decimal.Decimal
	CollateralValue      decimal.Decimal
	ActiveLoanProductIDs []uuid.UUID // products on which the member has a live loan
	HasOverdueInstalment bool        // any overdue instalment on any disbursed loan
}

// HasActiveLoanOn reports whether the member already has a live loan on the
// given product.
func (m *MemberSnapshot) HasActiveLoanOn(productID uuid.UUID) bool {
	for _, id := range m.ActiveLoanProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

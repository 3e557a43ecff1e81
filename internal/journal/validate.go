package journal

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/harambee-dev/harambee/internal/fault"
	"github.com/harambee-dev/harambee/internal/model"
	"github.com/harambee-dev/harambee/internal/store"
)

var hundred = decimal.NewFromInt(100)

// exact2dp reports whether d has no more than two decimal places.
func exact2dp(d decimal.Decimal) bool {
	scaled := d.Mul(hundred)
	return scaled.Equal(scaled.Floor())
}

// validateEntry enforces the posting invariants on a draft entry against the
// given store (the posting transaction's store, so account reads are
// consistent with the write):
//
//  1. the entry has at least one line
//  2. every line has exactly one nonzero side, positive, at most 2dp
//  3. every referenced account exists and is active
//  4. sum(debits) == sum(credits) exactly
//
// allowInactive relaxes the active half of invariant 3: a reversal must be
// able to back out an entry even when an account it touched has since been
// deactivated.
func validateEntry(st store.Storage, e *model.JournalEntry, allowInactive bool) error {
	if len(e.Lines) == 0 {
		return fault.Validationf(fault.CodeEmptyEntry, "entry has no lines")
	}

	for i := range e.Lines {
		l := &e.Lines[i]
		hasDebit := !l.Debit.IsZero()
		hasCredit := !l.Credit.IsZero()
		if hasDebit == hasCredit {
			return fault.Validationf(fault.CodeInvalidLine,
				"line %d must have exactly one of debit or credit", i+1)
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return fault.Validationf(fault.CodeInvalidLine,
				"line %d has a negative amount", i+1)
		}
		if !exact2dp(l.Debit) || !exact2dp(l.Credit) {
			return fault.Validationf(fault.CodeInvalidLine,
				"line %d amount has more than 2 decimal places", i+1)
		}

		a, err := st.GetAccount(l.AccountID)
		if errors.Is(err, store.ErrNotFound) {
			return fault.Validationf(fault.CodeAccountNotFound,
				"line %d references unknown account %s", i+1, l.AccountID)
		}
		if err != nil {
			return err
		}
		if !a.Active && !allowInactive {
			return fault.Validationf(fault.CodeInactiveAccount,
				"account %d (%s) is inactive", a.Code, a.Name)
		}
	}

	debits := e.TotalDebits()
	credits := e.TotalCredits()
	if !debits.Equal(credits) {
		return fault.Invariantf(fault.CodeUnbalancedEntry,
			"debits (%s) != credits (%s)", debits.StringFixed(2), credits.StringFixed(2))
	}
	return nil
}

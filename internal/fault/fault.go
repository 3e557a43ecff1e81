// Package fault defines the error taxonomy the engine reports to callers.
//
// Validation faults are recoverable input problems, state faults are illegal
// lifecycle transitions, eligibility faults are expected business-rule
// outcomes, and invariant faults indicate the ledger would be corrupted if
// the operation proceeded.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a fault.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindInvariant   Kind = "invariant"
	KindState       Kind = "state"
	KindEligibility Kind = "eligibility"
)

// Stable condition codes surfaced to callers.
const (
	CodeDuplicateAccountCode     = "DuplicateAccountCode"
	CodeInvalidParent            = "InvalidParent"
	CodeAccountInUse             = "AccountInUse"
	CodeAccountNotFound          = "AccountNotFound"
	CodeUnbalancedEntry          = "UnbalancedEntry"
	CodeInactiveAccount          = "InactiveAccount"
	CodeEmptyEntry               = "EmptyEntry"
	CodeInvalidLine              = "InvalidLine"
	CodeEntryNotPosted           = "EntryNotPosted"
	CodeAlreadyReversed          = "AlreadyReversed"
	CodeEntryNotFound            = "EntryNotFound"
	CodeLoanNotFound             = "LoanNotFound"
	CodeLoanNotDisbursed         = "LoanNotDisbursed"
	CodeInvalidTransition        = "InvalidTransition"
	CodeInvalidRestructureParams = "InvalidRestructureParams"
	CodeNotEligible              = "NotEligible"
	CodeInvalidAmount            = "InvalidAmount"
	CodeInvalidProduct           = "InvalidProduct"
	CodeDuplicatePayment         = "DuplicatePayment"
)

// Fault is a typed error with a stable code.
type Fault struct {
	Kind    Kind
	Code    string
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s [%s]: %s", f.Kind, f.Code, f.Message)
}

// New creates a fault with an explicit kind and code.
func New(kind Kind, code, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validationf creates a validation fault.
func Validationf(code, format string, args ...any) *Fault {
	return New(KindValidation, code, format, args...)
}

// Invariantf creates an invariant fault.
func Invariantf(code, format string, args ...any) *Fault {
	return New(KindInvariant, code, format, args...)
}

// Statef creates a state fault.
func Statef(code, format string, args ...any) *Fault {
	return New(KindState, code, format, args...)
}

// Eligibilityf creates an eligibility fault.
func Eligibilityf(code, format string, args ...any) *Fault {
	return New(KindEligibility, code, format, args...)
}

// KindOf returns the kind of err, or "" if err is not a Fault.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// CodeOf returns the code of err, or "" if err is not a Fault.
func CodeOf(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

// IsCode reports whether err is a Fault with the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// IsInvariant reports whether err is an invariant fault. Invariant faults
// imply data-corruption risk and are logged as hard faults by callers.
func IsInvariant(err error) bool {
	return KindOf(err) == KindInvariant
}

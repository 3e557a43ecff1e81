// Package eligibility runs the pure pre-lending checks against a member
// snapshot and product rules. The evaluator never mutates state; each check
// reports pass/fail with a human-readable reason.
package eligibility

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/harambee-dev/harambee/internal/model"
)

// Check is one rule's outcome.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// Report aggregates all checks for one request.
type Report struct {
	Eligible bool    `json:"eligible"`
	Checks   []Check `json:"checks"`
}

// GuarantorPledge is a proposed guarantee to evaluate alongside the request.
type GuarantorPledge struct {
	MemberID string
	Amount   decimal.Decimal
}

// Request is one evaluation's input.
type Request struct {
	Member     model.MemberSnapshot
	Product    model.LoanProduct
	Amount     decimal.Decimal
	TermMonths int
	Pledges    []GuarantorPledge
}

// Evaluate runs every check and reports the combined outcome. All checks run
// even after a failure so the caller can show the full picture.
func Evaluate(req Request) Report {
	checks := []Check{
		memberActive(req),
		amountWithinProduct(req),
		termWithinProduct(req),
		sharesCoverage(req),
		minimumShares(req),
		concurrentLoans(req),
		goodStanding(req),
		collateralCoverage(req),
		guarantorCount(req),
		guarantorCaps(req),
	}

	eligible := true
	for _, c := range checks {
		if !c.Passed {
			eligible = false
		}
	}
	return Report{Eligible: eligible, Checks: checks}
}

func pass(name, reason string) Check {
	return Check{Name: name, Passed: true, Reason: reason}
}

func failed(name, reason string) Check {
	return Check{Name: name, Passed: false, Reason: reason}
}

func memberActive(req Request) Check {
	const name = "member_active"
	if !req.Member.Active {
		return failed(name, "member account is not active")
	}
	return pass(name, "member account is active")
}

func amountWithinProduct(req Request) Check {
	const name = "amount_within_product"
	if req.Amount.LessThan(req.Product.MinAmount) {
		return failed(name, fmt.Sprintf("requested %s is below the product minimum %s",
			req.Amount.StringFixed(2), req.Product.MinAmount.StringFixed(2)))
	}
	if req.Amount.GreaterThan(req.Product.MaxAmount) {
		return failed(name, fmt.Sprintf("requested %s exceeds the product maximum %s",
			req.Amount.StringFixed(2), req.Product.MaxAmount.StringFixed(2)))
	}
	return pass(name, "requested amount is within product limits")
}

func termWithinProduct(req Request) Check {
	const name = "term_within_product"
	if req.TermMonths < req.Product.MinTermMonths {
		return failed(name, fmt.Sprintf("term of %d months is below the product minimum %d",
			req.TermMonths, req.Product.MinTermMonths))
	}
	if req.TermMonths > req.Product.MaxTermMonths {
		return failed(name, fmt.Sprintf("term of %d months exceeds the product maximum %d",
			req.TermMonths, req.Product.MaxTermMonths))
	}
	return pass(name, "term is within product limits")
}

func sharesCoverage(req Request) Check {
	const name = "shares_coverage"
	capacity := req.Member.SharesBalance.Mul(req.Product.SharesMultiplier)
	if capacity.LessThan(req.Amount) {
		return failed(name, fmt.Sprintf("shares of %s x%s cover only %s of the requested %s",
			req.Member.SharesBalance.StringFixed(2), req.Product.SharesMultiplier.String(),
			capacity.StringFixed(2), req.Amount.StringFixed(2)))
	}
	return pass(name, "shares balance covers the requested amount")
}

func minimumShares(req Request) Check {
	const name = "minimum_shares"
	if req.Member.SharesBalance.LessThan(req.Product.MinShares) {
		return failed(name, fmt.Sprintf("shares balance %s is below the product minimum %s",
			req.Member.SharesBalance.StringFixed(2), req.Product.MinShares.StringFixed(2)))
	}
	return pass(name, "shares balance meets the product minimum")
}

func concurrentLoans(req Request) Check {
	const name = "concurrent_loans"
	if req.Product.AllowMultiple {
		return pass(name, "product allows concurrent loans")
	}
	if req.Member.HasActiveLoanOn(req.Product.ID) {
		return failed(name, "member already has an active loan on this product")
	}
	return pass(name, "no concurrent loan on this product")
}

func goodStanding(req Request) Check {
	const name = "good_standing"
	if !req.Product.RequireStanding {
		return pass(name, "product does not require good standing")
	}
	if req.Member.HasOverdueInstalment {
		return failed(name, "member has an overdue instalment on an existing loan")
	}
	return pass(name, "no overdue instalments")
}

func collateralCoverage(req Request) Check {
	const name = "collateral_coverage"
	if req.Product.CollateralLTV.IsZero() {
		return pass(name, "product does not require collateral")
	}
	// LTV threshold: requested amount must not exceed collateral x LTV.
	capacity := req.Member.CollateralValue.Mul(req.Product.CollateralLTV)
	if capacity.LessThan(req.Amount) {
		return failed(name, fmt.Sprintf("collateral of %s supports at most %s at LTV %s",
			req.Member.CollateralValue.StringFixed(2), capacity.StringFixed(2),
			req.Product.CollateralLTV.String()))
	}
	return pass(name, "collateral covers the requested amount")
}

func guarantorCount(req Request) Check {
	const name = "guarantor_count"
	if len(req.Pledges) < req.Product.MinGuarantors {
		return failed(name, fmt.Sprintf("%d guarantors pledged, product requires %d",
			len(req.Pledges), req.Product.MinGuarantors))
	}
	return pass(name, "enough guarantors pledged")
}

func guarantorCaps(req Request) Check {
	const name = "guarantor_caps"
	if req.Product.MaxGuarantorAmount.IsZero() {
		return pass(name, "product does not cap per-guarantor amounts")
	}
	for _, pl := range req.Pledges {
		if pl.Amount.GreaterThan(req.Product.MaxGuarantorAmount) {
			return failed(name, fmt.Sprintf("guarantor %s pledges %s, above the product cap %s",
				pl.MemberID, pl.Amount.StringFixed(2), req.Product.MaxGuarantorAmount.StringFixed(2)))
		}
	}
	return pass(name, "all pledges are within the per-guarantor cap")
}

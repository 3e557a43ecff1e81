package schedule

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harambee-dev/harambee/internal/fault"
	"github.com/harambee-dev/harambee/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func jan1() time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestGenerate_FlatMonthly(t *testing.T) {
	instalments, err := Generate(Params{
		Principal:  d("120000"),
		AnnualRate: d("0.12"),
		TermMonths: 12,
		Frequency:  model.FrequencyMonthly,
		Method:     model.InterestFlat,
		Start:      jan1(),
	})
	require.NoError(t, err)
	require.Len(t, instalments, 12)

	// Total interest is 120000 x 0.12 x 12/12 = 14400, split evenly.
	for _, inst := range instalments {
		assert.Equal(t, "10000.00", inst.Principal.StringFixed(2))
		assert.Equal(t, "1200.00", inst.Interest.StringFixed(2))
		assert.Equal(t, model.InstalmentUpcoming, inst.Status)
	}

	assert.Equal(t, 1, instalments[0].Number)
	assert.Equal(t, 12, instalments[11].Number)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), instalments[0].DueDate)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), instalments[11].DueDate)
}

func TestGenerate_ReducingBalanceMonthly(t *testing.T) {
	instalments, err := Generate(Params{
		Principal:  d("100000"),
		AnnualRate: d("0.24"),
		TermMonths: 3,
		Frequency:  model.FrequencyMonthly,
		Method:     model.InterestReducingBalance,
		Start:      jan1(),
	})
	require.NoError(t, err)
	require.Len(t, instalments, 3)

	// First period interest is the full balance at 2%/month.
	assert.Equal(t, "2000.00", instalments[0].Interest.StringFixed(2))

	// Interest strictly declines as the balance reduces.
	assert.True(t, instalments[1].Interest.LessThan(instalments[0].Interest))
	assert.True(t, instalments[2].Interest.LessThan(instalments[1].Interest))

	// Principal portions sum back to the loan principal exactly.
	sum := decimal.Zero
	for _, inst := range instalments {
		sum = sum.Add(inst.Principal)
	}
	assert.True(t, sum.Equal(d("100000")), "principal sum %s", sum)
}

func TestGenerate_PrincipalSumsExactly(t *testing.T) {
	// An awkward principal that does not divide evenly.
	instalments, err := Generate(Params{
		Principal:  d("100000.01"),
		AnnualRate: d("0.13"),
		TermMonths: 7,
		Frequency:  model.FrequencyMonthly,
		Method:     model.InterestFlat,
		Start:      jan1(),
	})
	require.NoError(t, err)

	principal, interest := decimal.Zero, decimal.Zero
	for _, inst := range instalments {
		principal = principal.Add(inst.Principal)
		interest = interest.Add(inst.Interest)
	}
	assert.True(t, principal.Equal(d("100000.01")), "principal sum %s", principal)

	wantInterest := d("100000.01").Mul(d("0.13")).Mul(d("7")).Div(d("12")).Round(2)
	assert.True(t, interest.Equal(wantInterest), "interest sum %s want %s", interest, wantInterest)

	// The residue lands on the final instalment, never the first.
	assert.True(t, instalments[6].Principal.GreaterThanOrEqual(instalments[0].Principal))
}

func TestGenerate_Deterministic(t *testing.T) {
	p := Params{
		Principal:  d("75000"),
		AnnualRate: d("0.18"),
		TermMonths: 6,
		Frequency:  model.FrequencyMonthly,
		Method:     model.InterestReducingBalance,
		Start:      jan1(),
	}
	first, err := Generate(p)
	require.NoError(t, err)
	second, err := Generate(p)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Principal.Equal(second[i].Principal))
		assert.True(t, first[i].Interest.Equal(second[i].Interest))
		assert.Equal(t, first[i].DueDate, second[i].DueDate)
	}
}

func TestGenerate_ZeroRate(t *testing.T) {
	instalments, err := Generate(Params{
		Principal:  d("12000"),
		AnnualRate: decimal.Zero,
		TermMonths: 4,
		Frequency:  model.FrequencyMonthly,
		Method:     model.InterestReducingBalance,
		Start:      jan1(),
	})
	require.NoError(t, err)
	require.Len(t, instalments, 4)

	for _, inst := range instalments {
		assert.True(t, inst.Interest.IsZero())
		assert.Equal(t, "3000.00", inst.Principal.StringFixed(2))
	}
}

func TestGenerate_WeeklyCount(t *testing.T) {
	instalments, err := Generate(Params{
		Principal:  d("52000"),
		AnnualRate: d("0.10"),
		TermMonths: 12,
		Frequency:  model.FrequencyWeekly,
		Method:     model.InterestFlat,
		Start:      jan1(),
	})
	require.NoError(t, err)
	assert.Len(t, instalments, 52)
	assert.Equal(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), instalments[0].DueDate)
}

func TestGenerate_MonthEndClamping(t *testing.T) {
	instalments, err := Generate(Params{
		Principal:  d("10000"),
		AnnualRate: d("0.12"),
		TermMonths: 3,
		Frequency:  model.FrequencyMonthly,
		Method:     model.InterestFlat,
		Start:      time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, instalments, 3)

	// Jan 31 + 1 month clamps to Feb 28; later months keep their own length.
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), instalments[0].DueDate)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), instalments[1].DueDate)
	assert.Equal(t, time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC), instalments[2].DueDate)
}

func TestGenerate_FeeTimings(t *testing.T) {
	base := Params{
		Principal:     d("60000"),
		AnnualRate:    d("0.12"),
		TermMonths:    6,
		Frequency:     model.FrequencyMonthly,
		Method:        model.InterestFlat,
		Start:         jan1(),
		ProcessingFee: d("600"),
	}

	base.ProcessingTiming = model.FeeTimingUpfront
	upfront, err := Generate(base)
	require.NoError(t, err)
	assert.Equal(t, "600.00", upfront[0].Fee.StringFixed(2))
	assert.True(t, upfront[1].Fee.IsZero())

	base.ProcessingTiming = model.FeeTimingSpread
	spread, err := Generate(base)
	require.NoError(t, err)
	total := decimal.Zero
	for _, inst := range spread {
		total = total.Add(inst.Fee)
	}
	assert.True(t, total.Equal(d("600")), "spread fee sum %s", total)

	base.ProcessingTiming = model.FeeTimingDeducted
	deducted, err := Generate(base)
	require.NoError(t, err)
	for _, inst := range deducted {
		assert.True(t, inst.Fee.IsZero())
	}
}

func TestGenerate_RejectsBadInputs(t *testing.T) {
	_, err := Generate(Params{
		Principal:  decimal.Zero,
		AnnualRate: d("0.12"),
		TermMonths: 6,
		Frequency:  model.FrequencyMonthly,
		Method:     model.InterestFlat,
		Start:      jan1(),
	})
	assert.True(t, fault.IsCode(err, fault.CodeInvalidAmount))

	_, err = Generate(Params{
		Principal:  d("1000"),
		AnnualRate: d("-0.01"),
		TermMonths: 6,
		Frequency:  model.FrequencyMonthly,
		Method:     model.InterestFlat,
		Start:      jan1(),
	})
	assert.True(t, fault.IsCode(err, fault.CodeInvalidAmount))
}

func TestInstalmentCount(t *testing.T) {
	assert.Equal(t, 12, InstalmentCount(12, model.FrequencyMonthly))
	assert.Equal(t, 26, InstalmentCount(12, model.FrequencyBiweekly))
	assert.Equal(t, 52, InstalmentCount(12, model.FrequencyWeekly))
	assert.Equal(t, 365, InstalmentCount(12, model.FrequencyDaily))
	assert.Equal(t, 13, InstalmentCount(6, model.FrequencyBiweekly))
	assert.Equal(t, 1, InstalmentCount(1, model.FrequencyMonthly))
}

package allocation

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

func day(n int) time.Time {
	return time.Date(2025, 1, n, 0, 0, 0, 0, time.UTC)
}

func TestAllocate_WaterfallOrder(t *testing.T) {
	schedule := []model.Instalment{{
		Number:    1,
		DueDate:   day(1),
		Principal: d("8000"),
		Interest:  d("1200"),
		Insurance: d("300"),
		Penalty:   d("500"),
		Status:    model.InstalmentDue,
	}}

	res, err := Allocate(schedule, d("5000"), Options{AsOf: day(2)})
	require.NoError(t, err)
	require.Len(t, res.Applications, 1)

	// Penalty, interest and insurance are consumed in full before any
	// principal; the remaining 3000 lands on principal.
	app := res.Applications[0]
	assert.Equal(t, "500.00", app.Penalty.StringFixed(2))
	assert.Equal(t, "1200.00", app.Interest.StringFixed(2))
	assert.Equal(t, "300.00", app.Insurance.StringFixed(2))
	assert.Equal(t, "3000.00", app.Principal.StringFixed(2))

	assert.Equal(t, "5000.00", res.Applied.StringFixed(2))
	assert.True(t, res.Overpayment.IsZero())
	assert.False(t, res.FullyRepaid)

	// Instalment stays open with 5000 of principal left.
	assert.Equal(t, model.InstalmentDue, schedule[0].Status)
	assert.Equal(t, "5000.00", schedule[0].Balance().StringFixed(2))
}

func TestAllocate_DueDateOrder(t *testing.T) {
	schedule := []model.Instalment{
		{Number: 1, DueDate: day(1), Principal: d("1000"), Interest: d("100"), Status: model.InstalmentOverdue},
		{Number: 2, DueDate: day(8), Principal: d("1000"), Interest: d("100"), Status: model.InstalmentDue},
		{Number: 3, DueDate: day(15), Principal: d("1000"), Interest: d("100"), Status: model.InstalmentDue},
	}

	res, err := Allocate(schedule, d("1650"), Options{AsOf: day(20)})
	require.NoError(t, err)
	require.Len(t, res.Applications, 2)

	// Oldest instalment first and in full, the next partially.
	assert.Equal(t, 1, res.Applications[0].InstalmentNumber)
	assert.Equal(t, "1100.00", res.Applications[0].Total().StringFixed(2))
	assert.Equal(t, 2, res.Applications[1].InstalmentNumber)
	assert.Equal(t, "550.00", res.Applications[1].Total().StringFixed(2))

	assert.Equal(t, model.InstalmentPaid, schedule[0].Status)
	assert.Equal(t, model.InstalmentDue, schedule[1].Status)
}

func TestAllocate_OverpaymentReportedNotApplied(t *testing.T) {
	schedule := []model.Instalment{
		{Number: 1, DueDate: day(1), Principal: d("2000"), Interest: d("200"), Status: model.InstalmentDue},
		{Number: 2, DueDate: day(8), Principal: d("2000"), Interest: d("200"), Status: model.InstalmentDue},
	}

	// 1500 more than everything outstanding.
	res, err := Allocate(schedule, d("5900"), Options{AsOf: day(10)})
	require.NoError(t, err)

	assert.Equal(t, "4400.00", res.Applied.StringFixed(2))
	assert.Equal(t, "1500.00", res.Overpayment.StringFixed(2))
	assert.True(t, res.FullyRepaid)

	for _, inst := range schedule {
		assert.Equal(t, model.InstalmentPaid, inst.Status)
		assert.True(t, inst.Balance().IsZero())
	}
}

func TestAllocate_StopsAtFutureInstalments(t *testing.T) {
	schedule := []model.Instalment{
		{Number: 1, DueDate: day(1), Principal: d("1000"), Status: model.InstalmentDue},
		{Number: 2, DueDate: day(20), Principal: d("1000"), Status: model.InstalmentUpcoming},
	}

	res, err := Allocate(schedule, d("2000"), Options{AsOf: day(5)})
	require.NoError(t, err)

	// Only the due instalment is eligible; the rest is overpayment.
	assert.Equal(t, "1000.00", res.Applied.StringFixed(2))
	assert.Equal(t, "1000.00", res.Overpayment.StringFixed(2))
	assert.True(t, schedule[1].AmountPaid.IsZero())
}

func TestAllocate_ProactiveNextTakesOneFutureInstalment(t *testing.T) {
	schedule := []model.Instalment{
		{Number: 1, DueDate: day(1), Principal: d("1000"), Status: model.InstalmentDue},
		{Number: 2, DueDate: day(20), Principal: d("1000"), Status: model.InstalmentUpcoming},
		{Number: 3, DueDate: day(27), Principal: d("1000"), Status: model.InstalmentUpcoming},
	}

	res, err := Allocate(schedule, d("3000"), Options{AsOf: day(5), ProactiveNext: true})
	require.NoError(t, err)

	// One not-yet-due instalment may be collected ahead of time, not two.
	assert.Equal(t, "2000.00", res.Applied.StringFixed(2))
	assert.Equal(t, "1000.00", res.Overpayment.StringFixed(2))
	assert.True(t, schedule[1].Balance().IsZero())
	assert.True(t, schedule[2].AmountPaid.IsZero())
}

func TestAllocate_SkipsPaidInstalments(t *testing.T) {
	schedule := []model.Instalment{
		{Number: 1, DueDate: day(1), Principal: d("1000"), AmountPaid: d("1000"), Status: model.InstalmentPaid},
		{Number: 2, DueDate: day(8), Principal: d("1000"), Status: model.InstalmentDue},
	}

	res, err := Allocate(schedule, d("400"), Options{AsOf: day(10)})
	require.NoError(t, err)
	require.Len(t, res.Applications, 1)
	assert.Equal(t, 2, res.Applications[0].InstalmentNumber)
	assert.Equal(t, "1000.00", schedule[0].AmountPaid.StringFixed(2))
}

func TestAllocate_ResumesMidWaterfall(t *testing.T) {
	// 300 already paid covers penalty 200 and half the interest; the next
	// payment picks up at the remaining interest.
	schedule := []model.Instalment{{
		Number:     1,
		DueDate:    day(1),
		Principal:  d("1000"),
		Interest:   d("200"),
		Penalty:    d("200"),
		AmountPaid: d("300"),
		Status:     model.InstalmentDue,
	}}

	res, err := Allocate(schedule, d("500"), Options{AsOf: day(2)})
	require.NoError(t, err)
	require.Len(t, res.Applications, 1)

	app := res.Applications[0]
	assert.True(t, app.Penalty.IsZero())
	assert.Equal(t, "100.00", app.Interest.StringFixed(2))
	assert.Equal(t, "400.00", app.Principal.StringFixed(2))
}

func TestAllocate_RejectsNonPositivePayment(t *testing.T) {
	schedule := []model.Instalment{{Number: 1, DueDate: day(1), Principal: d("1000")}}

	_, err := Allocate(schedule, decimal.Zero, Options{AsOf: day(2)})
	assert.True(t, fault.IsCode(err, fault.CodeInvalidAmount))

	_, err = Allocate(schedule, d("-5"), Options{AsOf: day(2)})
	assert.True(t, fault.IsCode(err, fault.CodeInvalidAmount))
}

func TestRefreshStatuses(t *testing.T) {
	schedule := []model.Instalment{
		{Number: 1, DueDate: day(1), Principal: d("1000"), AmountPaid: d("1000"), Status: model.InstalmentPaid},
		{Number: 2, DueDate: day(8), Principal: d("1000"), Status: model.InstalmentUpcoming},
		{Number: 3, DueDate: day(15), Principal: d("1000"), Status: model.InstalmentUpcoming},
	}

	RefreshStatuses(schedule, day(8))

	assert.Equal(t, model.InstalmentPaid, schedule[0].Status)
	assert.Equal(t, model.InstalmentDue, schedule[1].Status)
	assert.Equal(t, model.InstalmentUpcoming, schedule[2].Status)
}

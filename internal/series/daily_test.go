package series

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"previsioni/internal/core"
)

func TestAggregateFillsGaps(t *testing.T) {
	points := []Point{
		{Date: core.NewDate(2024, 1, 5), Amount: 3},
		{Date: core.NewDate(2024, 1, 1), Amount: 10},
		{Date: core.NewDate(2024, 1, 1), Amount: 2.5},
		{Date: core.NewDate(2024, 1, 3), Amount: 0},
	}
	d, err := Aggregate(points)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", d.Start.String())
	assert.Equal(t, "2024-01-05", d.End().String())
	assert.Equal(t, []float64{12.5, 0, 0, 0, 3}, d.Values)

	dates := d.Dates()
	require.Len(t, dates, 5)
	for i := 1; i < len(dates); i++ {
		assert.Equal(t, 1, dates[i-1].DaysUntil(dates[i]), "dates must be contiguous")
	}
	date, v := d.At(4)
	assert.Equal(t, "2024-01-05", date.String())
	assert.Equal(t, 3.0, v)
}

func TestAggregateAcrossMonthAndLeapDay(t *testing.T) {
	d, err := Aggregate([]Point{
		{Date: core.NewDate(2024, 2, 28), Amount: 1},
		{Date: core.NewDate(2024, 3, 1), Amount: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 2}, d.Values)
}

func TestAggregateSingleDay(t *testing.T) {
	d, err := Aggregate([]Point{{Date: core.NewDate(2024, 6, 1), Amount: 7}})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
	assert.True(t, d.Start.Equal(d.End().Time))
}

func TestAggregateErrors(t *testing.T) {
	_, err := Aggregate(nil)
	assert.True(t, errors.Is(err, ErrEmptySeries))

	_, err = Aggregate([]Point{{Date: core.NewDate(2024, 1, 1), Amount: -1}})
	assert.True(t, errors.Is(err, core.ErrInvalidAmount))

	_, err = Aggregate([]Point{{Amount: 1}})
	assert.True(t, errors.Is(err, core.ErrInvalidDate))
}

func TestFromTransactions(t *testing.T) {
	txs := []core.Transaction{
		{OwnerID: "u", Date: core.NewDate(2024, 1, 2), Amount: core.NewMoneyFromFloat(5.5), Category: "food"},
		{OwnerID: "u", Date: core.NewDate(2024, 1, 4), Amount: core.NewMoneyFromFloat(50), Category: "fitness"},
		{OwnerID: "u", Date: core.NewDate(2024, 1, 2), Amount: core.NewMoneyFromFloat(4.5), Category: "food"},
	}
	d, err := FromTransactions(txs)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 0, 50}, d.Values)
	assert.Equal(t, []float64{0, 50}, d.Tail(2))
	assert.Equal(t, d.Values, d.Tail(10))

	for _, v := range d.Values {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

// Package series builds the gap-filled daily expense series the forecaster runs on.
package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"previsioni/internal/core"
)

// ErrEmptySeries is returned when there is nothing to aggregate.
var ErrEmptySeries = errors.New("empty series")

// Point is one dated amount.
type Point struct {
	Date   core.Date
	Amount float64
}

// Daily is a contiguous daily series starting at Start. Values[i] is the total
// for Start+i days. Missing days are zero.
type Daily struct {
	Start  core.Date
	Values []float64
}

// Len returns the number of days in the series.
func (d Daily) Len() int {
	return len(d.Values)
}

// End returns the last date of the series. It is the zero Date for an empty series.
func (d Daily) End() core.Date {
	if len(d.Values) == 0 {
		return core.Date{}
	}
	return d.Start.AddDays(len(d.Values) - 1)
}

// At returns the date and value at index i.
func (d Daily) At(i int) (core.Date, float64) {
	return d.Start.AddDays(i), d.Values[i]
}

// Dates returns every date covered by the series, ascending.
func (d Daily) Dates() []core.Date {
	out := make([]core.Date, len(d.Values))
	for i := range d.Values {
		out[i] = d.Start.AddDays(i)
	}
	return out
}

// Tail returns the last n values (all of them when n exceeds the length).
func (d Daily) Tail(n int) []float64 {
	if n >= len(d.Values) {
		return d.Values
	}
	return d.Values[len(d.Values)-n:]
}

// Aggregate sums points per calendar day over [min date, max date] and fills
// missing days with zero.
func Aggregate(points []Point) (Daily, error) {
	if len(points) == 0 {
		return Daily{}, ErrEmptySeries
	}
	// keyed by days since the Unix epoch
	byDay := make(map[int64]float64, len(points))
	for i, p := range points {
		if err := p.Date.Validate(); err != nil {
			return Daily{}, fmt.Errorf("point %d: %w", i, err)
		}
		if p.Amount < 0 || math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) {
			return Daily{}, fmt.Errorf("point %d: %w", i, core.ErrInvalidAmount)
		}
		byDay[dayNumber(p.Date)] += p.Amount
	}

	days := make([]int64, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	first, last := days[0], days[len(days)-1]
	values := make([]float64, last-first+1)
	for d, v := range byDay {
		values[d-first] = v
	}
	start := core.DateOf(time.Unix(first*secondsPerDay, 0).UTC())
	return Daily{Start: start, Values: values}, nil
}

const secondsPerDay = 24 * 60 * 60

func dayNumber(d core.Date) int64 {
	return core.DateOf(d.Time).Unix() / secondsPerDay
}

// FromTransactions aggregates ledger transactions by date.
func FromTransactions(txs []core.Transaction) (Daily, error) {
	points := make([]Point, len(txs))
	for i, tx := range txs {
		if tx.Amount.IsNegative() {
			return Daily{}, fmt.Errorf("transaction %d: %w", i, core.ErrInvalidAmount)
		}
		points[i] = Point{Date: tx.Date, Amount: tx.Amount.Float64()}
	}
	return Aggregate(points)
}

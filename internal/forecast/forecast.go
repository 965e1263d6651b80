// Package forecast extrapolates a daily expense series with exponential
// smoothing. Long series get Holt-Winters with additive trend and a weekly
// additive season; short ones get Holt's trend-only model. When fitting fails
// the forecast falls back to the recent daily mean. Values are clipped at zero.
package forecast

import (
	"context"
	"math"
	"time"

	"previsioni/internal/core"
	"previsioni/internal/series"
)

// Options configure Forecast.
type Options struct {
	Horizon         int
	SeasonalPeriod  int
	MinSeasonalDays int
	FallbackWindow  int
	// MinTransactions is checked by Run, not by Forecast.
	MinTransactions int
	MaxEvaluations  int
}

// DefaultOptions returns a 30 day horizon with a weekly season from 28 days of history.
func DefaultOptions() Options {
	return Options{
		Horizon:         30,
		SeasonalPeriod:  7,
		MinSeasonalDays: 28,
		FallbackWindow:  7,
		MinTransactions: 10,
		MaxEvaluations:  2000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Horizon <= 0 {
		o.Horizon = d.Horizon
	}
	if o.SeasonalPeriod <= 0 {
		o.SeasonalPeriod = d.SeasonalPeriod
	}
	if o.MinSeasonalDays <= 0 {
		o.MinSeasonalDays = d.MinSeasonalDays
	}
	if o.FallbackWindow <= 0 {
		o.FallbackWindow = d.FallbackWindow
	}
	if o.MinTransactions <= 0 {
		o.MinTransactions = d.MinTransactions
	}
	if o.MaxEvaluations <= 0 {
		o.MaxEvaluations = d.MaxEvaluations
	}
	return o
}

// DayForecast is the predicted spend for one future day.
type DayForecast struct {
	Date   core.Date
	Amount float64
}

// Result is a complete forecast.
type Result struct {
	PerDay            []DayForecast
	HorizonTotal      float64
	PerCategoryTotals map[string]core.Money
	Model             ModelKind
	// FitError is the recovered fit failure when Model is KindNaive.
	FitError string
	// SeriesDays is the length of the input series.
	SeriesDays int
}

// Values returns the per-day amounts in order.
func (r Result) Values() []float64 {
	out := make([]float64, len(r.PerDay))
	for i, d := range r.PerDay {
		out[i] = d.Amount
	}
	return out
}

// Forecast extrapolates d for opts.Horizon days starting the day after its last date.
// It never fails: fit failures fall back to the recent mean.
func Forecast(d series.Daily, opts Options) Result {
	opts = opts.withDefaults()
	res := Result{SeriesDays: d.Len()}

	var fr FitResult
	fs := FitSettings{MaxEvaluations: opts.MaxEvaluations}
	if d.Len() >= opts.MinSeasonalDays {
		fr = FitHoltWinters(d.Values, opts.SeasonalPeriod, fs)
	} else {
		fr = FitHolt(d.Values, fs)
	}

	var values []float64
	if fr.Err != nil {
		values = Naive(d, opts.FallbackWindow, opts.Horizon)
		res.Model = KindNaive
		res.FitError = fr.Err.Error()
	} else {
		values = fr.Model.Forecast(opts.Horizon)
		res.Model = fr.Model.Kind
	}

	start := d.End().AddDays(1)
	res.PerDay = make([]DayForecast, opts.Horizon)
	for i, v := range values {
		v = clip(v)
		res.PerDay[i] = DayForecast{Date: start.AddDays(i), Amount: v}
		res.HorizonTotal += v
	}
	return res
}

// Naive repeats the mean of the last window days, floored at zero.
func Naive(d series.Daily, window, horizon int) []float64 {
	tail := d.Tail(window)
	mean := 0.0
	if len(tail) > 0 {
		for _, v := range tail {
			mean += v
		}
		mean /= float64(len(tail))
	}
	mean = clip(mean)
	out := make([]float64, horizon)
	for i := range out {
		out[i] = mean
	}
	return out
}

func clip(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// CategoryTotals sums historical spend per category over the input window.
func CategoryTotals(txs []core.Transaction) map[string]core.Money {
	return core.SumByCategory(txs)
}

// Run forecasts from raw ledger transactions. Fewer than opts.MinTransactions
// transactions yields a *core.InsufficientDataError.
func Run(ctx context.Context, txs []core.Transaction, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if len(txs) < opts.MinTransactions {
		return Result{}, &core.InsufficientDataError{Required: opts.MinTransactions, Available: len(txs)}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	d, err := series.FromTransactions(txs)
	if err != nil {
		return Result{}, err
	}
	res := Forecast(d, opts)
	res.PerCategoryTotals = CategoryTotals(txs)
	return res, nil
}

// Snapshot converts the result into its persisted form.
func (r Result) Snapshot(ownerID string, at time.Time) core.ForecastSnapshot {
	perDay := make([]core.DailyAmount, len(r.PerDay))
	for i, d := range r.PerDay {
		perDay[i] = core.DailyAmount{Date: d.Date, Amount: d.Amount}
	}
	return core.ForecastSnapshot{
		OwnerID:           ownerID,
		CreatedAt:         at,
		Model:             string(r.Model),
		FitError:          r.FitError,
		HorizonTotal:      r.HorizonTotal,
		PerDay:            perDay,
		PerCategoryTotals: r.PerCategoryTotals,
	}
}

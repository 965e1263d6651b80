package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// ModelKind names the path that produced a forecast.
type ModelKind string

const (
	KindHoltWinters ModelKind = "holt_winters"
	KindHolt        ModelKind = "holt"
	KindNaive       ModelKind = "naive"
)

// penalty replaces non-finite objective values so the optimiser never sees NaN.
const penalty = 1e300

// Smoother is a fitted additive exponential smoothing model. Level, Trend and
// Seasonal hold the state after the last observation. Seasonal is indexed by
// absolute time modulo Period.
type Smoother struct {
	Kind     ModelKind
	Period   int
	Alpha    float64
	Beta     float64
	Gamma    float64
	Level    float64
	Trend    float64
	Seasonal []float64
	SSE      float64

	n int
}

// Forecast extrapolates h steps past the last observation.
func (s *Smoother) Forecast(h int) []float64 {
	out := make([]float64, h)
	for i := 1; i <= h; i++ {
		v := s.Level + float64(i)*s.Trend
		if s.Period > 0 {
			v += s.Seasonal[(s.n+i-1)%s.Period]
		}
		out[i-1] = v
	}
	return out
}

// FitFailure describes why a smoothing model could not be fitted.
type FitFailure struct {
	Model  ModelKind
	Reason string
	Cause  error
}

func (f *FitFailure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s fit failed: %s: %v", f.Model, f.Reason, f.Cause)
	}
	return fmt.Sprintf("%s fit failed: %s", f.Model, f.Reason)
}

func (f *FitFailure) Unwrap() error {
	return f.Cause
}

// FitResult is the outcome of a fit. Exactly one of Model and Err is set.
type FitResult struct {
	Model *Smoother
	Err   *FitFailure
}

// FitSettings bound the optimiser.
type FitSettings struct {
	MaxEvaluations int
}

// params is the unconstrained optimisation vector:
// [logit(alpha), logit(beta), level0, trend0] plus logit(gamma) when seasonal.
type params struct {
	alpha, beta, gamma float64
	level, trend       float64
}

func logistic(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

// FitHolt fits additive-trend exponential smoothing without seasonality.
func FitHolt(y []float64, fs FitSettings) FitResult {
	return fit(KindHolt, y, 0, fs)
}

// FitHoltWinters fits additive trend and additive seasonality with the given period.
// It needs at least two complete cycles.
func FitHoltWinters(y []float64, period int, fs FitSettings) FitResult {
	return fit(KindHoltWinters, y, period, fs)
}

func fit(kind ModelKind, y []float64, period int, fs FitSettings) (res FitResult) {
	fail := func(reason string, cause error) FitResult {
		return FitResult{Err: &FitFailure{Model: kind, Reason: reason, Cause: cause}}
	}
	defer func() {
		if r := recover(); r != nil {
			res = fail("panic", fmt.Errorf("%v", r))
		}
	}()

	switch {
	case len(y) < 2:
		return fail("too few observations", nil)
	case period > 0 && len(y) < 2*period:
		return fail("fewer than two seasonal cycles", nil)
	}
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail("non-finite observation", nil)
		}
	}

	init, season0 := initialState(y, period)
	x0 := []float64{logit(init.alpha), logit(init.beta), init.level, init.trend}
	if period > 0 {
		x0 = append(x0, logit(init.gamma))
	}

	objective := func(x []float64) float64 {
		sse, _ := run(y, period, decode(x, period), season0)
		if math.IsNaN(sse) || math.IsInf(sse, 0) || sse > penalty {
			return penalty
		}
		return sse
	}

	settings := &optimize.Settings{FuncEvaluations: fs.MaxEvaluations}
	if settings.FuncEvaluations <= 0 {
		settings.FuncEvaluations = 2000
	}
	result, err := optimize.Minimize(optimize.Problem{Func: objective}, x0, settings, &optimize.NelderMead{})
	// hitting the evaluation budget is a status, not an error, and leaves a usable best point
	if err != nil || result == nil {
		return fail("optimizer error", err)
	}
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) || result.F >= penalty {
		return fail("non-finite sse", nil)
	}

	p := decode(result.X, period)
	sse, final := run(y, period, p, season0)
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		return fail("non-finite sse", nil)
	}
	final.Kind = kind
	final.SSE = sse
	for _, v := range final.Forecast(2 * maxInt(period, 1)) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail("non-finite forecast", nil)
		}
	}
	return FitResult{Model: final}
}

func decode(x []float64, period int) params {
	p := params{
		alpha: logistic(x[0]),
		beta:  logistic(x[1]),
		level: x[2],
		trend: x[3],
	}
	if period > 0 && len(x) > 4 {
		p.gamma = logistic(x[4])
	}
	return p
}

// run performs the smoothing recursion and returns the one-step-ahead SSE and
// the state after the last observation. It never panics for well-formed inputs.
func run(y []float64, period int, p params, season0 []float64) (float64, *Smoother) {
	level, trend := p.level, p.trend
	var season []float64
	if period > 0 {
		season = make([]float64, period)
		copy(season, season0)
	}

	sse := 0.0
	for t, obs := range y {
		var s float64
		if period > 0 {
			s = season[t%period]
		}
		predicted := level + trend + s
		e := obs - predicted
		sse += e * e

		prevLevel, prevTrend := level, trend
		level = p.alpha*(obs-s) + (1-p.alpha)*(prevLevel+prevTrend)
		trend = p.beta*(level-prevLevel) + (1-p.beta)*prevTrend
		if period > 0 {
			season[t%period] = p.gamma*(obs-prevLevel-prevTrend) + (1-p.gamma)*s
		}
	}

	return sse, &Smoother{
		Period:   period,
		Alpha:    p.alpha,
		Beta:     p.beta,
		Gamma:    p.gamma,
		Level:    level,
		Trend:    trend,
		Seasonal: season,
		n:        len(y),
	}
}

// initialState derives heuristic starting values. Without seasonality the
// state before the first observation is chosen so that the first two points
// are fitted exactly. With seasonality the level is the first cycle mean, the
// trend is the per-step drift between first and last complete cycle means,
// and each seasonal index is its mean deviation from the cycle mean over all
// complete cycles.
func initialState(y []float64, period int) (params, []float64) {
	p := params{alpha: 0.5, beta: 0.1, gamma: 0.1}
	if period <= 0 {
		p.trend = y[1] - y[0]
		p.level = y[0] - p.trend
		return p, nil
	}

	cycles := len(y) / period
	means := make([]float64, cycles)
	for c := 0; c < cycles; c++ {
		sum := 0.0
		for i := 0; i < period; i++ {
			sum += y[c*period+i]
		}
		means[c] = sum / float64(period)
	}

	season := make([]float64, period)
	for i := 0; i < period; i++ {
		dev := 0.0
		for c := 0; c < cycles; c++ {
			dev += y[c*period+i] - means[c]
		}
		season[i] = dev / float64(cycles)
	}

	if cycles > 1 {
		p.trend = (means[cycles-1] - means[0]) / float64((cycles-1)*period)
	}
	p.level = means[0] - p.trend*float64(period+1)/2
	return p, season
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Package metrics turns matched (virtual, real) pairs into per-property
// accuracy figures: RMSE, MAE and the coefficient of determination with the
// real value as ground truth and the virtual one as prediction.
package metrics

import (
	"math"

	"github.com/KaramelBytes/twincheck-cli/internal/matching"
	"github.com/KaramelBytes/twincheck-cli/internal/record"
	"github.com/montanaflynn/stats"
)

// Property is a monitored output attribute.
type Property string

const (
	MaxForce   Property = "max_force"
	Strength   Property = "strength"
	Elongation Property = "elongation"
)

// Monitored is the fixed set of properties that get metrics, tests and a
// verdict. E modulus and fiber content only feed the match score.
var Monitored = []Property{MaxForce, Strength, Elongation}

// Unit returns the display unit of p.
func (p Property) Unit() string {
	switch p {
	case MaxForce:
		return "N"
	case Strength:
		return "MPa"
	case Elongation:
		return "%"
	}
	return ""
}

// Value extracts p from r.
func (p Property) Value(r record.Record) float64 {
	switch p {
	case MaxForce:
		return r.MaxForce
	case Strength:
		return r.Strength
	case Elongation:
		return r.Elongation
	}
	return math.NaN()
}

// Pair is a (real, virtual) observation of one property.
type Pair [2]float64

func (p Pair) Real() float64    { return p[0] }
func (p Pair) Virtual() float64 { return p[1] }

// PropertyMetrics holds the accuracy of one property. Nil fields mean the
// value is undefined for the available pairs.
type PropertyMetrics struct {
	Property Property `json:"property" yaml:"property"`
	N        int      `json:"n" yaml:"n"`
	RMSE     *float64 `json:"rmse" yaml:"rmse"`
	MAE      *float64 `json:"mae" yaml:"mae"`
	R2       *float64 `json:"r2" yaml:"r2"`
}

// MatchRow is one line of the reporting match table.
type MatchRow struct {
	VirtPolymer float64 `json:"virt_polymer%" yaml:"virt_polymer%"`
	RealPolymer float64 `json:"real_polymer%" yaml:"real_polymer%"`
	VirtFiber   float64 `json:"virt_fiber%" yaml:"virt_fiber%"`
	RealFiber   float64 `json:"real_fiber%" yaml:"real_fiber%"`
	VirtE       float64 `json:"virt_E_modulus" yaml:"virt_E_modulus"`
	RealE       float64 `json:"real_E_modulus" yaml:"real_E_modulus"`
	Score       float64 `json:"diff %" yaml:"diff %"`
}

// Result is the Aggregator output.
type Result struct {
	Metrics []PropertyMetrics
	Table   []MatchRow
	Pairs   map[Property][]Pair
}

// Get returns the metrics of p, if p was aggregated.
func (r *Result) Get(p Property) (PropertyMetrics, bool) {
	for _, m := range r.Metrics {
		if m.Property == p {
			return m, true
		}
	}
	return PropertyMetrics{}, false
}

// Aggregate builds paired samples for every property in props, in match
// order, and computes their metrics. Empty pair lists give nil metrics.
func Aggregate(ms matching.MatchSet, props []Property) *Result {
	res := &Result{Pairs: make(map[Property][]Pair, len(props))}
	for _, m := range ms.Matches {
		res.Table = append(res.Table, MatchRow{
			VirtPolymer: m.Virtual.PolymerPercent,
			RealPolymer: m.Real.PolymerPercent,
			VirtFiber:   m.Virtual.FiberPercent,
			RealFiber:   m.Real.FiberPercent,
			VirtE:       m.Virtual.EModulus,
			RealE:       m.Real.EModulus,
			Score:       m.Score,
		})
	}
	for _, p := range props {
		pairs := make([]Pair, 0, len(ms.Matches))
		for _, m := range ms.Matches {
			pairs = append(pairs, Pair{p.Value(m.Real), p.Value(m.Virtual)})
		}
		res.Pairs[p] = pairs
		res.Metrics = append(res.Metrics, Compute(p, pairs))
	}
	return res
}

// Compute returns RMSE, MAE and R² for pairs.
func Compute(p Property, pairs []Pair) PropertyMetrics {
	out := PropertyMetrics{Property: p, N: len(pairs)}
	if len(pairs) == 0 {
		return out
	}
	sq := make([]float64, len(pairs))
	abs := make([]float64, len(pairs))
	for i, pr := range pairs {
		d := pr.Real() - pr.Virtual()
		sq[i] = d * d
		abs[i] = math.Abs(d)
	}
	mse, err := stats.Mean(sq)
	if err == nil {
		out.RMSE = ptr(math.Sqrt(mse))
	}
	if mae, err := stats.Mean(abs); err == nil {
		out.MAE = ptr(mae)
	}
	if r2, ok := RSquared(pairs); ok {
		out.R2 = ptr(r2)
	}
	return out
}

// RSquared is 1 - SSres/SStot. It is undefined below two pairs. A constant
// real series scores 1 when predicted exactly and 0 otherwise.
func RSquared(pairs []Pair) (float64, bool) {
	if len(pairs) < 2 {
		return 0, false
	}
	ys := make([]float64, len(pairs))
	for i, pr := range pairs {
		ys[i] = pr.Real()
	}
	mean, err := stats.Mean(ys)
	if err != nil {
		return 0, false
	}
	var ssRes, ssTot float64
	for _, pr := range pairs {
		d := pr.Real() - pr.Virtual()
		ssRes += d * d
		t := pr.Real() - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1, true
		}
		return 0, true
	}
	return 1 - ssRes/ssTot, true
}

func ptr(v float64) *float64 { return &v }

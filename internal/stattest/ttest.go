// Package stattest runs the paired significance test between matched real
// and virtual values.
package stattest

import (
	"math"

	"github.com/KaramelBytes/twincheck-cli/internal/metrics"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultAlpha is the significance level used when none is configured.
const DefaultAlpha = 0.05

// Result is the outcome for one property. T and P are nil when the test is
// undefined; T alone is nil when the differences are a non-zero constant.
type Result struct {
	Property    metrics.Property `json:"property" yaml:"property"`
	N           int              `json:"n" yaml:"n"`
	T           *float64         `json:"t_stat" yaml:"t_stat"`
	P           *float64         `json:"p_value" yaml:"p_value"`
	Significant *bool            `json:"significant" yaml:"significant"`
}

// Defined reports whether the test could be run at all.
func (r Result) Defined() bool { return r.P != nil }

// PairedT runs a two-sided paired t-test of real against virtual values.
// Fewer than two pairs is not an error; the result is simply undefined.
func PairedT(p metrics.Property, pairs []metrics.Pair, alpha float64) Result {
	out := Result{Property: p, N: len(pairs)}
	if len(pairs) < 2 {
		return out
	}
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	d := make([]float64, len(pairs))
	for i, pr := range pairs {
		d[i] = pr.Real() - pr.Virtual()
	}
	mean, err := stats.Mean(d)
	if err != nil {
		return out
	}
	sd, err := stats.StandardDeviationSample(d)
	if err != nil || math.IsNaN(sd) {
		return out
	}
	n := float64(len(d))
	var t, pval float64
	switch {
	case sd == 0 && mean == 0:
		// identical series: no evidence of a difference
		t, pval = 0, 1
	case sd == 0:
		// a constant non-zero shift; t diverges
		pval = 0
		out.P = &pval
		sig := pval < alpha
		out.Significant = &sig
		return out
	default:
		t = mean / (sd / math.Sqrt(n))
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 1}
		// Survival keeps precision in the far tail where 1-CDF rounds to 0.
		pval = 2 * dist.Survival(math.Abs(t))
	}
	out.T = &t
	out.P = &pval
	sig := pval < alpha
	out.Significant = &sig
	return out
}

// Run tests every property in order.
func Run(props []metrics.Property, pairs map[metrics.Property][]metrics.Pair, alpha float64) []Result {
	out := make([]Result, 0, len(props))
	for _, p := range props {
		out = append(out, PairedT(p, pairs[p], alpha))
	}
	return out
}

package quality

import (
	"math"
	"testing"

	"github.com/KaramelBytes/twincheck-cli/internal/metrics"
	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestClassify_Boundaries(t *testing.T) {
	cases := []struct {
		r2   *float64
		want Verdict
	}{
		{f(1), Excellent},
		{f(0.8), Excellent},
		{f(0.7999999), Good},
		{f(0.6), Good},
		{f(0.4), Moderate},
		{f(0.399999), Poor},
		{f(-3), Poor},
		{nil, NoData},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.r2))
	}
	// NaN never clears a lower bound
	assert.Equal(t, Poor, Classify(f(math.NaN())))
}

func TestClassifyAll(t *testing.T) {
	got := ClassifyAll([]metrics.PropertyMetrics{
		{Property: metrics.MaxForce, R2: f(0.9)},
		{Property: metrics.Strength},
	})
	assert.Equal(t, map[metrics.Property]Verdict{metrics.MaxForce: Excellent, metrics.Strength: NoData}, got)
}

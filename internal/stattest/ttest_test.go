package stattest

import (
	"testing"

	"github.com/KaramelBytes/twincheck-cli/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairedT_KnownValue(t *testing.T) {
	// differences: 1, 2, 3, 4, 5 -> mean 3, sd sqrt(2.5), t = 3/(sqrt(2.5)/sqrt(5)) = 4.2426
	pairs := []metrics.Pair{{11, 10}, {22, 20}, {33, 30}, {44, 40}, {55, 50}}
	r := PairedT(metrics.MaxForce, pairs, 0.05)
	require.True(t, r.Defined())
	assert.InDelta(t, 4.242640687, *r.T, 1e-6)
	// scipy.stats.ttest_rel gives p = 0.013236
	assert.InDelta(t, 0.013236, *r.P, 1e-5)
	assert.True(t, *r.Significant)
}

func TestPairedT_NotSignificant(t *testing.T) {
	pairs := []metrics.Pair{{10, 11}, {12, 11}, {9, 10}, {11, 10}}
	r := PairedT(metrics.Strength, pairs, 0.05)
	require.True(t, r.Defined())
	assert.InDelta(t, 0, *r.T, 1e-12)
	assert.InDelta(t, 1, *r.P, 1e-12)
	assert.False(t, *r.Significant)
}

func TestPairedT_FarTailStaysPositive(t *testing.T) {
	// t is about 1.4e4 with 4 degrees of freedom, p about 1.5e-16
	pairs := []metrics.Pair{{200, 100}, {200.01, 100}, {199.99, 100}, {200.02, 100}, {199.98, 100}}
	r := PairedT(metrics.MaxForce, pairs, 0.05)
	require.True(t, r.Defined())
	assert.Greater(t, *r.T, 1e4)
	assert.Greater(t, *r.P, 0.0)
	assert.Less(t, *r.P, 1e-12)
	assert.True(t, *r.Significant)
}

func TestPairedT_Degenerate(t *testing.T) {
	for _, pairs := range [][]metrics.Pair{nil, {{1, 2}}} {
		r := PairedT(metrics.Elongation, pairs, 0.05)
		assert.False(t, r.Defined())
		assert.Nil(t, r.T)
		assert.Nil(t, r.Significant)
		assert.Equal(t, len(pairs), r.N)
	}
}

func TestPairedT_ScenarioD_IdenticalSeries(t *testing.T) {
	r := PairedT(metrics.MaxForce, []metrics.Pair{{1, 1}, {2, 2}, {3, 3}}, 0.05)
	require.True(t, r.Defined())
	assert.Equal(t, 0.0, *r.T)
	assert.False(t, *r.Significant)
}

func TestPairedT_ConstantShift(t *testing.T) {
	r := PairedT(metrics.MaxForce, []metrics.Pair{{2, 1}, {3, 2}, {4, 3}}, 0.05)
	require.True(t, r.Defined())
	assert.Nil(t, r.T)
	assert.Equal(t, 0.0, *r.P)
	assert.True(t, *r.Significant)
}

func TestRun_PreservesOrder(t *testing.T) {
	pairs := map[metrics.Property][]metrics.Pair{
		metrics.Strength: {{1, 2}, {2, 2}, {3, 5}},
	}
	res := Run(metrics.Monitored, pairs, 0)
	require.Len(t, res, 3)
	assert.Equal(t, metrics.MaxForce, res[0].Property)
	assert.False(t, res[0].Defined())
	assert.True(t, res[1].Defined())
}

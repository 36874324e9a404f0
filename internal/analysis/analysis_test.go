package analysis

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/KaramelBytes/twincheck-cli/internal/ingest"
	"github.com/KaramelBytes/twincheck-cli/internal/metrics"
	"github.com/KaramelBytes/twincheck-cli/internal/quality"
	"github.com/KaramelBytes/twincheck-cli/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func rec(o record.Origin, poly, fiber, e, f, s, el float64) record.Record {
	return record.Record{Origin: o, PolymerPercent: poly, FiberPercent: fiber, EModulus: e, MaxForce: f, Strength: s, Elongation: el}
}

func fixture() (record.RecordSet, record.RecordSet) {
	virt := record.RecordSet{
		rec(record.Virtual, 20, 70, 240, 100, 500, 5),
		rec(record.Virtual, 20, 72, 250, 120, 540, 6),
		rec(record.Virtual, 25, 60, 200, 80, 400, 4),
		rec(record.Virtual, 30, 50, 180, 70, 300, 3),
	}
	reals := record.RecordSet{
		rec(record.Real, 20, 70, 240, 100, 500, 5),
		rec(record.Real, 20, 72, 250, 120, 540, 6),
		rec(record.Real, 25, 60, 200, 80, 400, 4),
	}
	return virt, reals
}

func TestRun_IdenticalSeries(t *testing.T) {
	virt, reals := fixture()
	opt := DefaultOptions()
	opt.PairOnly = true
	rep, err := Run(virt, reals, opt)
	require.NoError(t, err)

	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, 4, rep.TotalVirtual)
	assert.Equal(t, 3, rep.Matched)
	assert.Equal(t, 1, rep.Lost)
	require.Len(t, rep.Properties, len(metrics.Monitored))
	for _, p := range rep.Properties {
		assert.Equal(t, 3, p.N)
		assert.InDelta(t, 0, *p.RMSE, 1e-12)
		assert.InDelta(t, 0, *p.MAE, 1e-12)
		assert.InDelta(t, 1, *p.R2, 1e-12)
		assert.Equal(t, quality.Excellent, p.Verdict)
		assert.False(t, *p.Significant)
	}
	assert.Equal(t, quality.Excellent, rep.Evaluation[metrics.Strength])
	assert.Len(t, rep.MatchTable, 3)
	assert.Len(t, rep.MetricsRaw[metrics.MaxForce], 3)
	assert.Equal(t, metrics.Pair{120, 120}, rep.MetricsRaw[metrics.MaxForce][1])
}

func TestRun_NoMatches(t *testing.T) {
	virt := record.RecordSet{rec(record.Virtual, 20, 70, 240, 100, 500, 5)}
	reals := record.RecordSet{rec(record.Real, 21, 70, 240, 100, 500, 5)}
	rep, err := Run(virt, reals, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMatches))
	require.NotNil(t, rep)
	assert.Equal(t, 1, rep.Lost)
	assert.Empty(t, rep.Properties)
}

func TestRun_SinglePairLeavesR2Undefined(t *testing.T) {
	virt := record.RecordSet{rec(record.Virtual, 20, 70, 240, 100, 500, 5)}
	reals := record.RecordSet{rec(record.Real, 20, 71, 240, 101, 505, 5)}
	rep, err := Run(virt, reals, DefaultOptions())
	require.NoError(t, err)
	p, ok := rep.Property(metrics.MaxForce)
	require.True(t, ok)
	assert.Nil(t, p.R2)
	assert.Equal(t, quality.NoData, p.Verdict)
	assert.Nil(t, p.P)
	assert.InDelta(t, 1, *p.RMSE, 1e-12)

	md := rep.Markdown()
	assert.Contains(t, md, "R² n/a, verdict NoData")
	assert.Contains(t, md, "not enough pairs")
	assert.NotContains(t, md, "\u2014")
}

func TestReport_Renderers(t *testing.T) {
	virt, reals := fixture()
	rep, err := Run(virt, reals, DefaultOptions())
	require.NoError(t, err)

	md := rep.Markdown()
	for _, section := range []string{"[ANALYSIS SUMMARY]", "[METRICS]", "[SIGNIFICANCE]", "[MATCHES]"} {
		assert.Contains(t, md, section)
	}
	assert.Equal(t, 3+2, strings.Count(md[strings.Index(md, "[MATCHES]"):], "\n|"))

	js, err := rep.Render("json")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js, &decoded))
	assert.EqualValues(t, 3, decoded["matched_count"])
	assert.Contains(t, decoded, "metrics_evaluation")
	assert.Contains(t, decoded, "metrics_raw")
	row := decoded["match_table"].([]any)[0].(map[string]any)
	assert.Contains(t, row, "diff %")

	ys, err := rep.Render("yaml")
	require.NoError(t, err)
	var y map[string]any
	require.NoError(t, yaml.Unmarshal(ys, &y))
	assert.Equal(t, 1, y["lost_matches"])

	_, err = rep.Render("pdf")
	assert.Error(t, err)
}

func TestRun_IncompleteRowCountsAsLost(t *testing.T) {
	const header = "polymer_percent;fiber_percent;E_modulus;max_force;strength;elongation\n"
	virt, vres := ingest.Load([]ingest.Unit{{Name: "v.csv", Data: []byte(header +
		"20;70;240;100;500;5\n" +
		"20;70;;100;500;5\n" +
		";;;;;\n")}}, record.Virtual, ingest.Options{})
	reals, _ := ingest.Load([]ingest.Unit{{Name: "r.csv", Data: []byte(header + "20;70;240;100;500;5\n")}},
		record.Real, ingest.Options{})
	require.Len(t, vres, 1)
	assert.Equal(t, 2, vres[0].Records)
	assert.Equal(t, 1, vres[0].Incomplete)

	rep, err := Run(virt, reals, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.TotalVirtual)
	assert.Equal(t, 1, rep.Matched)
	assert.Equal(t, 1, rep.Lost)
	assert.Equal(t, 1, rep.Undefined)

	rep.Inputs = vres
	assert.Contains(t, rep.Markdown(), "2 records, 1 with missing values")
}

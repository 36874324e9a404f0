// Package analysis runs the full virtual-versus-real comparison: matching,
// metric aggregation, significance testing and quality classification.
package analysis

import (
	"errors"
	"time"

	"github.com/KaramelBytes/twincheck-cli/internal/ingest"
	"github.com/KaramelBytes/twincheck-cli/internal/matching"
	"github.com/KaramelBytes/twincheck-cli/internal/metrics"
	"github.com/KaramelBytes/twincheck-cli/internal/quality"
	"github.com/KaramelBytes/twincheck-cli/internal/record"
	"github.com/KaramelBytes/twincheck-cli/internal/stattest"
	"github.com/google/uuid"
)

// ErrNoMatches is returned when the Matcher accepts no pair at all.
var ErrNoMatches = errors.New("no matches")

// Options controls one comparison run.
type Options struct {
	Tolerance    float64
	PairOnly     bool
	GroupEpsilon float64
	Alpha        float64
}

// DefaultOptions returns the usual lab settings.
func DefaultOptions() Options {
	return Options{
		Tolerance: matching.DefaultTolerance,
		Alpha:     stattest.DefaultAlpha,
	}
}

// PropertyReport merges the metrics, test and verdict of one property.
type PropertyReport struct {
	Name        metrics.Property `json:"name" yaml:"name"`
	Unit        string           `json:"unit" yaml:"unit"`
	N           int              `json:"n" yaml:"n"`
	RMSE        *float64         `json:"rmse" yaml:"rmse"`
	MAE         *float64         `json:"mae" yaml:"mae"`
	R2          *float64         `json:"r2" yaml:"r2"`
	Verdict     quality.Verdict  `json:"verdict" yaml:"verdict"`
	T           *float64         `json:"t_stat" yaml:"t_stat"`
	P           *float64         `json:"p_value" yaml:"p_value"`
	Significant *bool            `json:"significant" yaml:"significant"`
}

// Report is the outcome of a comparison run.
type Report struct {
	ID           string    `json:"id" yaml:"id"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	Tolerance    float64   `json:"tolerance_percent" yaml:"tolerance_percent"`
	PairOnly     bool      `json:"pair_only" yaml:"pair_only"`
	GroupEpsilon float64   `json:"group_epsilon,omitempty" yaml:"group_epsilon,omitempty"`
	Alpha        float64   `json:"alpha" yaml:"alpha"`

	TotalVirtual int `json:"total_virtual" yaml:"total_virtual"`
	Lost         int `json:"lost_matches" yaml:"lost_matches"`
	Undefined    int `json:"undefined_scores,omitempty" yaml:"undefined_scores,omitempty"`
	Matched      int `json:"matched_count" yaml:"matched_count"`

	Properties []PropertyReport                     `json:"properties" yaml:"properties"`
	Evaluation map[metrics.Property]quality.Verdict `json:"metrics_evaluation" yaml:"metrics_evaluation"`
	MatchTable []metrics.MatchRow                   `json:"match_table" yaml:"match_table"`
	MetricsRaw map[metrics.Property][]metrics.Pair  `json:"metrics_raw" yaml:"metrics_raw"`
	Inputs     []ingest.UnitResult                  `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Matches keeps the full matched records for workbook output.
	Matches []matching.Match `json:"-" yaml:"-"`
}

// Property returns the report entry for p.
func (r *Report) Property(p metrics.Property) (PropertyReport, bool) {
	for _, pr := range r.Properties {
		if pr.Name == p {
			return pr, true
		}
	}
	return PropertyReport{}, false
}

// Run compares virtual against real records. It returns ErrNoMatches, with
// the partial report still filled in with counts, when nothing matched.
func Run(virtual, reals record.RecordSet, opt Options) (*Report, error) {
	if opt.Alpha <= 0 {
		opt.Alpha = stattest.DefaultAlpha
	}
	ms := matching.New(matching.Options{
		Tolerance:    opt.Tolerance,
		PairOnly:     opt.PairOnly,
		GroupEpsilon: opt.GroupEpsilon,
	}).Match(virtual, reals)

	rep := &Report{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		Tolerance:    opt.Tolerance,
		PairOnly:     opt.PairOnly,
		GroupEpsilon: opt.GroupEpsilon,
		Alpha:        opt.Alpha,
		TotalVirtual: ms.TotalVirtual,
		Lost:         ms.Lost,
		Undefined:    ms.Undefined,
		Matched:      len(ms.Matches),
		Matches:      ms.Matches,
	}
	if len(ms.Matches) == 0 {
		return rep, ErrNoMatches
	}

	agg := metrics.Aggregate(ms, metrics.Monitored)
	tests := stattest.Run(metrics.Monitored, agg.Pairs, opt.Alpha)
	verdicts := quality.ClassifyAll(agg.Metrics)

	rep.MatchTable = agg.Table
	rep.MetricsRaw = agg.Pairs
	rep.Evaluation = verdicts
	for i, m := range agg.Metrics {
		t := tests[i]
		rep.Properties = append(rep.Properties, PropertyReport{
			Name:        m.Property,
			Unit:        m.Property.Unit(),
			N:           m.N,
			RMSE:        m.RMSE,
			MAE:         m.MAE,
			R2:          m.R2,
			Verdict:     verdicts[m.Property],
			T:           t.T,
			P:           t.P,
			Significant: t.Significant,
		})
	}
	return rep, nil
}

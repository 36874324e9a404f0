// Package report writes analysis results and generated curves as XLSX
// workbooks.
package report

import (
	"fmt"
	"io"

	"github.com/KaramelBytes/twincheck-cli/internal/analysis"
	"github.com/KaramelBytes/twincheck-cli/internal/curve"
	"github.com/KaramelBytes/twincheck-cli/internal/metrics"
	"github.com/xuri/excelize/v2"
)

// Sheet and column names of the curves workbook.
const (
	CurveDeformHeader = "Deformation (%)"
	CurveStressHeader = "Predicted Stress (MPa)"
	CurvesFilename    = "multiple_predicted_samples.xlsx"
)

// ContentType is the MIME type of the written workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteCurves writes one sheet per curve.
func WriteCurves(w io.Writer, curves []curve.Curve) error {
	if len(curves) == 0 {
		return fmt.Errorf("no curves to write")
	}
	f := excelize.NewFile()
	defer f.Close()
	b := newBook(f)
	for _, c := range curves {
		rows := make([][]interface{}, len(c.Deform))
		for i := range c.Deform {
			rows[i] = []interface{}{c.Deform[i], c.Stress[i]}
		}
		if err := b.sheet(c.Name, []string{CurveDeformHeader, CurveStressHeader}, rows); err != nil {
			return err
		}
	}
	return b.write(w)
}

// WriteAnalysis writes the summary, per-property metrics, matched records and
// input units of rep.
func WriteAnalysis(w io.Writer, rep *analysis.Report) error {
	f := excelize.NewFile()
	defer f.Close()
	b := newBook(f)

	summary := [][]interface{}{
		{"Run", rep.ID},
		{"Created", rep.CreatedAt.Format("2006-01-02 15:04:05")},
		{"Tolerance, %", rep.Tolerance},
		{"Pair only", rep.PairOnly},
		{"Alpha", rep.Alpha},
		{"Virtual records", rep.TotalVirtual},
		{"Matched", rep.Matched},
		{"Lost", rep.Lost},
	}
	if rep.GroupEpsilon > 0 {
		summary = append(summary, []interface{}{"Group epsilon", rep.GroupEpsilon})
	}
	if err := b.sheet("Summary", []string{"Field", "Value"}, summary); err != nil {
		return err
	}

	var metricRows [][]interface{}
	for _, p := range rep.Properties {
		metricRows = append(metricRows, []interface{}{
			string(p.Name), p.Unit, p.N, opt(p.RMSE), opt(p.MAE), opt(p.R2), string(p.Verdict),
			opt(p.T), opt(p.P), optBool(p.Significant),
		})
	}
	if err := b.sheet("Metrics", []string{"Property", "Unit", "N", "RMSE", "MAE", "R2", "Verdict", "t", "p", "Significant"}, metricRows); err != nil {
		return err
	}

	if err := b.sheet("Matches", []string{
		"virt_unit", "virt_row", "real_unit", "real_row",
		"virt_polymer%", "real_polymer%", "virt_fiber%", "real_fiber%",
		"virt_E_modulus", "real_E_modulus", "virt_max_force", "real_max_force",
		"virt_strength", "real_strength", "virt_elongation", "real_elongation", "diff %",
	}, matchRows(rep)); err != nil {
		return err
	}

	if len(rep.Inputs) > 0 {
		var inputs [][]interface{}
		for _, in := range rep.Inputs {
			inputs = append(inputs, []interface{}{in.Name, string(in.Origin), in.Sheet, in.Records, in.Incomplete, in.Error})
		}
		if err := b.sheet("Inputs", []string{"File", "Origin", "Sheet", "Records", "Incomplete rows", "Error"}, inputs); err != nil {
			return err
		}
	}
	return b.write(w)
}

// matchRows lists the matched records. A report decoded from JSON has no
// Matches, so its rows are rebuilt from the match table and the raw pairs,
// which share match order; source unit and row are then left blank.
func matchRows(rep *analysis.Report) [][]interface{} {
	var rows [][]interface{}
	if len(rep.Matches) > 0 {
		for _, m := range rep.Matches {
			v, r := m.Virtual, m.Real
			rows = append(rows, []interface{}{
				v.Unit, v.Row, r.Unit, r.Row,
				v.PolymerPercent, r.PolymerPercent, v.FiberPercent, r.FiberPercent,
				v.EModulus, r.EModulus, v.MaxForce, r.MaxForce,
				v.Strength, r.Strength, v.Elongation, r.Elongation, m.Score,
			})
		}
		return rows
	}
	raw := func(p metrics.Property, i int) (interface{}, interface{}) {
		pairs := rep.MetricsRaw[p]
		if i >= len(pairs) {
			return nil, nil
		}
		return pairs[i].Virtual(), pairs[i].Real()
	}
	for i, t := range rep.MatchTable {
		vf, rf := raw(metrics.MaxForce, i)
		vs, rs := raw(metrics.Strength, i)
		ve, re := raw(metrics.Elongation, i)
		rows = append(rows, []interface{}{
			nil, nil, nil, nil,
			t.VirtPolymer, t.RealPolymer, t.VirtFiber, t.RealFiber,
			t.VirtE, t.RealE, vf, rf,
			vs, rs, ve, re, t.Score,
		})
	}
	return rows
}

// book fills a workbook sheet by sheet, reusing the default first sheet.
type book struct {
	f     *excelize.File
	first bool
}

func newBook(f *excelize.File) *book { return &book{f: f, first: true} }

func (b *book) sheet(name string, headers []string, rows [][]interface{}) error {
	if b.first {
		if err := b.f.SetSheetName(b.f.GetSheetName(0), name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
		b.first = false
	} else if _, err := b.f.NewSheet(name); err != nil {
		return fmt.Errorf("add sheet %q: %w", name, err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := b.f.SetCellValue(name, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := b.f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", name, r+2, err)
		}
	}
	return nil
}

func (b *book) write(w io.Writer) error {
	b.f.SetActiveSheet(0)
	if _, err := b.f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func opt(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func optBool(v *bool) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

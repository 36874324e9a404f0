package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Markdown renders the report as sectioned plain text.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[ANALYSIS SUMMARY]\n")
	b.WriteString(fmt.Sprintf("Run: %s (%s)\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04:05 UTC")))
	mode := "all suitable pairs"
	if r.PairOnly {
		mode = "one-to-one"
	}
	b.WriteString(fmt.Sprintf("Tolerance: %.4g%%, mode: %s", r.Tolerance, mode))
	if r.GroupEpsilon > 0 {
		b.WriteString(fmt.Sprintf(", group epsilon: %.4g", r.GroupEpsilon))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Virtual records: %d\n", r.TotalVirtual))
	b.WriteString(fmt.Sprintf("Matched: %d\n", r.Matched))
	if r.Lost > 0 {
		b.WriteString(fmt.Sprintf("Lost: %d", r.Lost))
		if r.Undefined > 0 {
			b.WriteString(fmt.Sprintf(" (%d with undefined score)", r.Undefined))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Lost: 0\n")
	}

	if len(r.Inputs) > 0 {
		b.WriteString("\n[INPUTS]\n")
		for _, in := range r.Inputs {
			if in.Error != "" {
				b.WriteString(fmt.Sprintf("- %s (%s): rejected: %s\n", in.Name, in.Origin, oneLine(in.Error)))
				continue
			}
			b.WriteString(fmt.Sprintf("- %s (%s): %d records", in.Name, in.Origin, in.Records))
			if in.Incomplete > 0 {
				b.WriteString(fmt.Sprintf(", %d with missing values", in.Incomplete))
			}
			b.WriteString("\n")
		}
	}

	if len(r.Properties) > 0 {
		b.WriteString("\n[METRICS]\n")
		for _, p := range r.Properties {
			b.WriteString(fmt.Sprintf("- %s [%s] (n=%d): RMSE %s, MAE %s, R² %s, verdict %s\n",
				p.Name, p.Unit, p.N, num(p.RMSE), num(p.MAE), num(p.R2), p.Verdict))
		}

		b.WriteString(fmt.Sprintf("\n[SIGNIFICANCE] paired t-test, alpha %.3g\n", r.Alpha))
		for _, p := range r.Properties {
			if p.P == nil {
				b.WriteString(fmt.Sprintf("- %s: not enough pairs\n", p.Name))
				continue
			}
			t := "∞"
			if p.T != nil {
				t = fmt.Sprintf("%.4g", *p.T)
			}
			sig := "no"
			if p.Significant != nil && *p.Significant {
				sig = "yes"
			}
			b.WriteString(fmt.Sprintf("- %s: t=%s, p=%.4g, significant: %s\n", p.Name, t, *p.P, sig))
		}
	}

	if len(r.MatchTable) > 0 {
		b.WriteString("\n[MATCHES]\n")
		b.WriteString("| virt polymer % | real polymer % | virt fiber % | real fiber % | virt E | real E | diff % |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, m := range r.MatchTable {
			b.WriteString(fmt.Sprintf("| %.4g | %.4g | %.4g | %.4g | %.4g | %.4g | %.2f |\n",
				m.VirtPolymer, m.RealPolymer, m.VirtFiber, m.RealFiber, m.VirtE, m.RealE, m.Score))
		}
	}
	return b.String()
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// YAML renders the report as YAML.
func (r *Report) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// Render picks a renderer by format name: md, json or yaml.
func (r *Report) Render(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "md", "markdown":
		return []byte(r.Markdown()), nil
	case "json":
		return r.JSON()
	case "yaml", "yml":
		return r.YAML()
	}
	return nil, fmt.Errorf("unknown format %q (use md, json or yaml)", format)
}

// CheckFormat reports whether Render accepts format.
func CheckFormat(format string) error {
	switch strings.ToLower(format) {
	case "", "md", "markdown", "json", "yaml", "yml":
		return nil
	}
	return fmt.Errorf("unknown format %q (use md, json or yaml)", format)
}

func num(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4g", *v)
}

func oneLine(s string) string { return strings.ReplaceAll(s, "\n", "; ") }

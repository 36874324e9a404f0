// Package samplecheck screens raw tensile-test sheets for usable samples: a
// sample is good when the stress curve peaks before its last point and the
// deformation does not end below its value at the peak.
package samplecheck

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/twincheck-cli/internal/parser"
)

// DefaultSkipRows is the number of instrument header rows above the data.
const DefaultSkipRows = 3

// Result describes one sheet. Error is set instead of the flags when the
// sheet could not be checked.
type Result struct {
	Sheet     string `json:"sheet" yaml:"sheet"`
	NDrops    int    `json:"n_drops" yaml:"n_drops"`
	FinalDrop bool   `json:"final_drop" yaml:"final_drop"`
	HasPeak   bool   `json:"has_peak" yaml:"has_peak"`
	Good      bool   `json:"is_good_sample" yaml:"is_good_sample"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// File groups the sheet results of one input file.
type File struct {
	Name   string   `json:"file" yaml:"file"`
	Sheets []Result `json:"sheets" yaml:"sheets"`
	Error  string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// CheckFile checks every sheet of a workbook (or the single table of a CSV).
// A sheet that fails is reported in place; only an unreadable file fails.
func CheckFile(name string, data []byte, skip int) File {
	out := File{Name: name}
	tables, err := parser.Read(name, data, parser.Options{})
	if err != nil {
		out.Error = err.Error()
		return out
	}
	for _, t := range tables {
		sheet := t.Sheet
		if sheet == "" {
			sheet = t.Source
		}
		if t.Err != nil {
			out.Sheets = append(out.Sheets, Result{Sheet: sheet, Error: t.Err.Error()})
			continue
		}
		rows := t.Rows
		if skip > 0 {
			if skip >= len(rows) {
				rows = nil
			} else {
				rows = rows[skip:]
			}
		}
		out.Sheets = append(out.Sheets, Check(sheet, rows))
	}
	return out
}

// Check evaluates the first two columns of rows as deformation and stress.
func Check(sheet string, rows [][]string) Result {
	res := Result{Sheet: sheet}
	width := 0
	var data [][]string
	for _, r := range rows {
		if blank(r) {
			continue
		}
		if len(r) > width {
			width = len(r)
		}
		data = append(data, r)
	}
	if width < 2 {
		res.Error = fmt.Sprintf("sheet %q: need at least 2 columns, found %d", sheet, width)
		return res
	}
	deform := make([]float64, len(data))
	stress := make([]float64, len(data))
	for i, r := range data {
		var ok1, ok2 bool
		if len(r) >= 2 {
			deform[i], ok1 = parser.ParseNumber(r[0], parser.NumberFormat{})
			stress[i], ok2 = parser.ParseNumber(r[1], parser.NumberFormat{})
		}
		if !ok1 || !ok2 {
			res.Error = fmt.Sprintf("sheet %q: non-numeric values", sheet)
			return res
		}
	}

	peak := 0
	for i, s := range stress {
		if s > stress[peak] {
			peak = i
		}
	}
	res.HasPeak = peak < len(stress)-1
	for i := peak + 2; i < len(deform); i++ {
		if deform[i]-deform[i-1] < 0 {
			res.NDrops++
		}
	}
	res.FinalDrop = deform[len(deform)-1] < deform[peak]
	res.Good = res.HasPeak && !res.FinalDrop
	return res
}

// Good counts good samples across files.
func Good(files []File) (good, total int) {
	for _, f := range files {
		for _, s := range f.Sheets {
			if s.Error != "" {
				continue
			}
			total++
			if s.Good {
				good++
			}
		}
	}
	return good, total
}

// Markdown renders files as sectioned text.
func Markdown(files []File) string {
	var b strings.Builder
	good, total := Good(files)
	b.WriteString("[SAMPLE CHECK]\n")
	b.WriteString(fmt.Sprintf("Good samples: %d of %d\n", good, total))
	for _, f := range files {
		b.WriteString(fmt.Sprintf("\n- %s\n", f.Name))
		if f.Error != "" {
			b.WriteString(fmt.Sprintf("  error: %s\n", f.Error))
			continue
		}
		for _, s := range f.Sheets {
			if s.Error != "" {
				b.WriteString(fmt.Sprintf("  • %s: %s\n", s.Sheet, s.Error))
				continue
			}
			mark := "good"
			if !s.Good {
				mark = "bad"
			}
			b.WriteString(fmt.Sprintf("  • %s: %s (peak: %t, final drop: %t, drops after peak: %d)\n",
				s.Sheet, mark, s.HasPeak, s.FinalDrop, s.NDrops))
		}
	}
	return b.String()
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Package ingest loads many input units (files on disk or uploads) into one
// record set. A unit that fails to parse or misses required columns is
// reported on its own and never stops its siblings.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/twincheck-cli/internal/parser"
	"github.com/KaramelBytes/twincheck-cli/internal/record"
	"go.uber.org/zap"
)

// DefaultSheet is the worksheet holding experiment results in lab exports.
const DefaultSheet = "Результаты"

// Unit is one input file.
type Unit struct {
	Name string
	Data []byte
	// Err is a failure that happened before parsing, e.g. reading the file.
	Err error
}

// Options controls how units are read.
type Options struct {
	Sheet     string
	Delimiter rune
	Number    parser.NumberFormat
	Logger    *zap.Logger
}

// UnitResult is the per-unit outcome attached to the analysis report.
type UnitResult struct {
	Name       string        `json:"name" yaml:"name"`
	Origin     record.Origin `json:"origin" yaml:"origin"`
	Sheet      string        `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	Records    int           `json:"records" yaml:"records"`
	Incomplete int           `json:"incomplete_rows,omitempty" yaml:"incomplete_rows,omitempty"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// Err returns the unit failure, if any.
func (u UnitResult) Err() error { return u.err }

// OK reports whether the unit contributed records.
func (u UnitResult) OK() bool { return u.err == nil }

// ErrNoUsableInput is returned when every unit of one origin failed.
var ErrNoUsableInput = errors.New("no usable input")

// FromFiles reads paths into units. Read failures stay attached to the unit.
func FromFiles(paths []string) []Unit {
	units := make([]Unit, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		u := Unit{Name: filepath.Base(p), Data: data}
		if err != nil {
			u.Err = fmt.Errorf("read file: %w", err)
		}
		units = append(units, u)
	}
	return units
}

// Load normalizes every unit with the mapping table of origin and
// concatenates the successful ones in input order.
func Load(units []Unit, origin record.Origin, opt Options) (record.RecordSet, []UnitResult) {
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sheet := opt.Sheet
	if sheet == "" {
		sheet = DefaultSheet
	}
	var all record.RecordSet
	results := make([]UnitResult, 0, len(units))
	for _, u := range units {
		res := loadUnit(u, origin, sheet, opt)
		if res.err != nil {
			log.Warn("input unit rejected",
				zap.String("unit", u.Name),
				zap.String("origin", string(origin)),
				zap.Error(res.err))
		} else {
			log.Debug("input unit loaded",
				zap.String("unit", u.Name),
				zap.String("origin", string(origin)),
				zap.Int("records", res.Records),
				zap.Int("incomplete", res.Incomplete))
		}
		all = append(all, res.records...)
		results = append(results, res.UnitResult)
	}
	return all, results
}

type unitLoad struct {
	UnitResult
	records record.RecordSet
}

func loadUnit(u Unit, origin record.Origin, sheet string, opt Options) unitLoad {
	out := unitLoad{UnitResult: UnitResult{Name: u.Name, Origin: origin}}
	fail := func(err error) unitLoad {
		out.err = err
		out.Error = err.Error()
		return out
	}
	if u.Err != nil {
		return fail(u.Err)
	}
	tables, err := parser.Read(u.Name, u.Data, parser.Options{Sheet: sheet, Delimiter: opt.Delimiter})
	if err != nil {
		return fail(err)
	}
	t := parser.Pick(tables, sheet)
	if t == nil {
		return fail(fmt.Errorf("%s: no tables", u.Name))
	}
	out.Sheet = t.Sheet
	n, err := record.Normalize(t, record.ColumnsFor(origin), origin, opt.Number)
	if err != nil {
		return fail(err)
	}
	out.records = n.Records
	out.Records = len(n.Records)
	out.Incomplete = n.Incomplete
	return out
}

// Check returns ErrNoUsableInput when no unit of results contributed records.
func Check(origin record.Origin, results []UnitResult) error {
	var msgs []string
	for _, r := range results {
		if r.OK() && r.Records > 0 {
			return nil
		}
		if r.Error != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s", r.Name, r.Error))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: no data rows", r.Name))
		}
	}
	if len(msgs) == 0 {
		return fmt.Errorf("%w: no %s files given", ErrNoUsableInput, origin)
	}
	return fmt.Errorf("%w for %s records:\n  %s", ErrNoUsableInput, origin, strings.Join(msgs, "\n  "))
}

package record

import (
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/twincheck-cli/internal/parser"
)

// Field names a canonical record column.
type Field string

const (
	FieldPolymer    Field = "polymer_percent"
	FieldFiber      Field = "fiber_percent"
	FieldEModulus   Field = "E_modulus"
	FieldMaxForce   Field = "max_force"
	FieldStrength   Field = "strength"
	FieldElongation Field = "elongation"
)

// RequiredFields lists every canonical column a normalized table must carry.
var RequiredFields = []Field{FieldFiber, FieldPolymer, FieldEModulus, FieldMaxForce, FieldStrength, FieldElongation}

// ColumnMap maps a source header to a canonical field.
type ColumnMap map[string]Field

// canonical headers are always accepted, whatever the origin.
var canonical = ColumnMap{
	"polymer_percent":    FieldPolymer,
	"fiber_percent":      FieldFiber,
	"e_modulus":          FieldEModulus,
	"e_modulus_gpa":      FieldEModulus,
	"max_force":          FieldMaxForce,
	"fmax_n":             FieldMaxForce,
	"strength":           FieldStrength,
	"strength_mpa":       FieldStrength,
	"elongation":         FieldElongation,
	"elongation_percent": FieldElongation,
}

// VirtualColumns holds the headers used by simulation exports.
var VirtualColumns = merge(canonical, ColumnMap{
	"Содержание волокна, %": FieldFiber,
	"Раствор полимера,%":    FieldPolymer,
	"Eмод":                  FieldEModulus,
	"Fmax":                  FieldMaxForce,
	"sM":                    FieldStrength,
	"dL при Fмакс":          FieldElongation,
})

// RealColumns holds the headers used by testing-machine exports, which carry
// units in the header text.
var RealColumns = merge(canonical, ColumnMap{
	"Содержание волокна, %": FieldFiber,
	"Раствор полимера,%":    FieldPolymer,
	"Eмод, Гпа":             FieldEModulus,
	"Eмод":                  FieldEModulus,
	"Fmax, Н":               FieldMaxForce,
	"Fmax":                  FieldMaxForce,
	"sM, МПа":               FieldStrength,
	"sM":                    FieldStrength,
	"dL при Fмакс %":        FieldElongation,
	"dL при Fмакс":          FieldElongation,
})

// ColumnsFor returns the mapping table for an origin.
func ColumnsFor(o Origin) ColumnMap {
	if o == Real {
		return RealColumns
	}
	return VirtualColumns
}

func merge(maps ...ColumnMap) ColumnMap {
	out := ColumnMap{}
	for _, m := range maps {
		for k, v := range m {
			out[headerKey(k)] = v
		}
	}
	return out
}

func headerKey(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// Lookup resolves a raw header to its canonical field.
func (m ColumnMap) Lookup(header string) (Field, bool) {
	f, ok := m[headerKey(header)]
	return f, ok
}

// SchemaError reports canonical columns missing from an input unit.
type SchemaError struct {
	Unit    string
	Missing []Field
}

func (e *SchemaError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	if e.Unit == "" {
		return fmt.Sprintf("missing columns: %s", strings.Join(names, ", "))
	}
	return fmt.Sprintf("%s: missing columns: %s", e.Unit, strings.Join(names, ", "))
}

// Normalized is the outcome of normalizing one table.
type Normalized struct {
	Records RecordSet
	// Incomplete counts records kept with NaN in a required field because
	// the cell was empty, missing or not a number.
	Incomplete int
}

// Normalize maps table rows onto canonical records. The first row is the
// header. Headers not in mapping are ignored; when two headers map to the
// same field the first one wins. Fully blank rows are dropped; any other row
// becomes a record, with NaN for cells that do not parse, so that it still
// counts toward the matching totals.
func Normalize(t *parser.Table, mapping ColumnMap, origin Origin, nf parser.NumberFormat) (*Normalized, error) {
	if t == nil {
		return nil, fmt.Errorf("normalize: nil table")
	}
	if t.Err != nil {
		return nil, t.Err
	}
	var header []string
	if len(t.Rows) > 0 {
		header = t.Rows[0]
	}
	idx := map[Field]int{}
	for i, h := range header {
		if f, ok := mapping.Lookup(h); ok {
			if _, dup := idx[f]; !dup {
				idx[f] = i
			}
		}
	}
	var missing []Field
	for _, f := range RequiredFields {
		if _, ok := idx[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Unit: t.Name(), Missing: missing}
	}

	out := &Normalized{}
	for i, row := range t.Rows[1:] {
		if blank(row) {
			continue
		}
		vals := map[Field]float64{}
		complete := true
		for _, f := range RequiredFields {
			v := math.NaN()
			if j := idx[f]; j < len(row) {
				if n, good := parser.ParseNumber(row[j], nf); good {
					v = n
				}
			}
			if math.IsNaN(v) {
				complete = false
			}
			vals[f] = v
		}
		if !complete {
			out.Incomplete++
		}
		out.Records = append(out.Records, Record{
			Origin:         origin,
			Unit:           t.Name(),
			Row:            i + 1,
			PolymerPercent: vals[FieldPolymer],
			FiberPercent:   vals[FieldFiber],
			EModulus:       vals[FieldEModulus],
			MaxForce:       vals[FieldMaxForce],
			Strength:       vals[FieldStrength],
			Elongation:     vals[FieldElongation],
		})
	}
	return out, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

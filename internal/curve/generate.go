package curve

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/KaramelBytes/twincheck-cli/internal/parser"
	"gonum.org/v1/gonum/stat/distuv"
)

// Default generation settings.
const (
	DefaultSamples      = 3
	DefaultPoints       = 300
	DefaultFiberRange   = 2.0
	DefaultPolymerRange = 1.0
)

// Sampler draws a uniform value in [lo, hi).
type Sampler interface {
	Uniform(lo, hi float64) float64
}

// UniformSampler draws from gonum's uniform distribution. A nil Src uses the
// global source.
type UniformSampler struct {
	Src rand.Source
}

// NewSeededSampler returns a sampler that repeats for a given seed.
func NewSeededSampler(seed uint64) UniformSampler {
	return UniformSampler{Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

func (s UniformSampler) Uniform(lo, hi float64) float64 {
	return distuv.Uniform{Min: lo, Max: hi, Src: s.Src}.Rand()
}

// Jitter returns n copies of base with fiber content perturbed by
// U(-fiberRange, fiberRange) and polymer solution by U(-polymerRange,
// polymerRange), drawn independently per sample.
func Jitter(base Params, n int, fiberRange, polymerRange float64, s Sampler) []Params {
	out := make([]Params, 0, n)
	for i := 0; i < n; i++ {
		p := base
		p.FiberContentPct += s.Uniform(-fiberRange, fiberRange)
		p.PolymerSolutionPct += s.Uniform(-polymerRange, polymerRange)
		out = append(out, p)
	}
	return out
}

// Curve is one generated sample.
type Curve struct {
	Name   string
	Params Params
	Deform []float64
	Stress []float64
}

// Options controls Generate.
type Options struct {
	Samples      int
	Points       int
	FiberRange   float64
	PolymerRange float64
	Sampler      Sampler
}

func (o *Options) defaults() {
	if o.Samples <= 0 {
		o.Samples = DefaultSamples
	}
	if o.Points <= 0 {
		o.Points = DefaultPoints
	}
	if o.FiberRange == 0 {
		o.FiberRange = DefaultFiberRange
	}
	if o.PolymerRange == 0 {
		o.PolymerRange = DefaultPolymerRange
	}
	if o.Sampler == nil {
		o.Sampler = UniformSampler{}
	}
}

// Generate fits m on the measured series, then predicts one curve per
// jittered parameter set over the observed deformation range.
func Generate(m Model, s Series, base Params, opt Options) ([]Curve, float64, error) {
	opt.defaults()
	if s.Len() == 0 {
		return nil, 0, ErrNoData
	}
	mse, err := m.Fit(s.Deform, s.Stress, base)
	if err != nil {
		return nil, 0, fmt.Errorf("fit: %w", err)
	}
	lo, hi := s.Range()
	curves := make([]Curve, 0, opt.Samples)
	for i, p := range Jitter(base, opt.Samples, opt.FiberRange, opt.PolymerRange, opt.Sampler) {
		d, st, err := m.PredictCurve(p, lo, hi, opt.Points)
		if err != nil {
			return nil, mse, fmt.Errorf("predict sample %d: %w", i+1, err)
		}
		curves = append(curves, Curve{Name: fmt.Sprintf("Sample_%d", i+1), Params: p, Deform: d, Stress: st})
	}
	return curves, mse, nil
}

// Series is a measured deformation (percent) / stress (MPa) sequence.
type Series struct {
	Deform []float64
	Stress []float64
}

func (s Series) Len() int { return len(s.Deform) }

// Range returns the minimum and maximum deformation.
func (s Series) Range() (float64, float64) {
	if len(s.Deform) == 0 {
		return 0, 0
	}
	lo, hi := s.Deform[0], s.Deform[0]
	for _, v := range s.Deform[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Append concatenates o onto s.
func (s Series) Append(o Series) Series {
	return Series{Deform: slices.Concat(s.Deform, o.Deform), Stress: slices.Concat(s.Stress, o.Stress)}
}

const (
	colDeform = "deformation"
	colStress = "standard_stress"
)

// LoadCSV reads a Deformation;Standard_Stress export. Decimal commas are
// accepted. Rows with non-numeric cells are an error.
func LoadCSV(name string, data []byte) (Series, error) {
	tables, err := parser.Read(name, data, parser.Options{Delimiter: ';'})
	if err != nil {
		return Series{}, err
	}
	t := parser.Pick(tables, "")
	if t == nil || len(t.Rows) == 0 {
		return Series{}, fmt.Errorf("%s: %w", name, ErrNoData)
	}
	di, si := -1, -1
	for i, h := range t.Rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case colDeform:
			di = i
		case colStress:
			si = i
		}
	}
	if di < 0 || si < 0 {
		return Series{}, fmt.Errorf("%s: need Deformation and Standard_Stress columns", name)
	}
	var nf parser.NumberFormat
	var s Series
	for r, row := range t.Rows[1:] {
		if di >= len(row) || si >= len(row) {
			continue
		}
		if strings.TrimSpace(row[di]) == "" && strings.TrimSpace(row[si]) == "" {
			continue
		}
		d, ok1 := parser.ParseNumber(row[di], nf)
		st, ok2 := parser.ParseNumber(row[si], nf)
		if !ok1 || !ok2 {
			return Series{}, fmt.Errorf("%s: row %d: non-numeric value", name, r+2)
		}
		s.Deform = append(s.Deform, d)
		s.Stress = append(s.Stress, st)
	}
	if s.Len() == 0 {
		return Series{}, fmt.Errorf("%s: %w", name, ErrNoData)
	}
	return s, nil
}

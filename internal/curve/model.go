// Package curve generates predicted stress-strain curves from measured ones.
// Predictions are a physics term (rule of mixtures) plus a learned residual.
package curve

import (
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
)

// Moduli of the constituents in MPa.
const (
	FiberModulus   = 240e3
	PolymerModulus = 2.7e3
)

// Params are the specimen parameters a curve is generated for.
type Params struct {
	PolymerSolutionPct float64 `json:"polymer_solution_pct" yaml:"polymer_solution_pct"`
	LengthMM           float64 `json:"length_mm" yaml:"length_mm"`
	MassMG             float64 `json:"mass_mg" yaml:"mass_mg"`
	FiberContentPct    float64 `json:"fiber_content_pct" yaml:"fiber_content_pct"`
}

// DefaultParams is the reference specimen.
func DefaultParams() Params {
	return Params{PolymerSolutionPct: 20, LengthMM: 236, MassMG: 261, FiberContentPct: 72.34}
}

func (p Params) features() []float64 {
	return []float64{p.PolymerSolutionPct, p.LengthMM, p.MassMG, p.FiberContentPct}
}

// EffectiveModulus is the rule-of-mixtures modulus for p, in MPa.
func EffectiveModulus(p Params) float64 {
	vf := p.FiberContentPct / 100
	return FiberModulus*vf + PolymerModulus*(1-vf)
}

// Physics is the linear-elastic stress in MPa at deformation eps, in percent.
func Physics(p Params, eps float64) float64 {
	return EffectiveModulus(p) * eps / 100
}

// Model predicts curves for specimen parameters after fitting measured data.
// Implementations must be deterministic for a given fit.
type Model interface {
	Fit(deform, stress []float64, base Params) (mse float64, err error)
	PredictCurve(p Params, lo, hi float64, n int) (deform, stress []float64, err error)
}

var (
	ErrNotFitted = errors.New("model is not fitted")
	ErrNoData    = errors.New("no curve data")
)

// ResidualModel fits the residual over the physics term with a ridge
// regression on a cubic basis of the standardized deformation plus linear
// terms of the standardized parameters.
type ResidualModel struct {
	// Lambda is the ridge penalty. Zero uses 1e-6.
	Lambda float64

	xMean, xScale []float64 // eps followed by the four params
	yMean, yScale float64
	coef          []float64
}

const polyDegree = 3

// NewResidualModel returns an unfitted model.
func NewResidualModel() *ResidualModel { return &ResidualModel{} }

// Fit trains on paired deformation/stress samples measured on a base specimen.
func (m *ResidualModel) Fit(deform, stress []float64, base Params) (float64, error) {
	if len(deform) == 0 {
		return 0, ErrNoData
	}
	if len(deform) != len(stress) {
		return 0, fmt.Errorf("deformation and stress lengths differ: %d vs %d", len(deform), len(stress))
	}
	n := len(deform)
	resid := make([]float64, n)
	for i, e := range deform {
		resid[i] = stress[i] - Physics(base, e)
	}

	cols := make([][]float64, 5)
	cols[0] = deform
	for j, v := range base.features() {
		c := make([]float64, n)
		for i := range c {
			c[i] = v
		}
		cols[j+1] = c
	}
	m.xMean = make([]float64, len(cols))
	m.xScale = make([]float64, len(cols))
	for j, c := range cols {
		m.xMean[j], m.xScale[j] = scaler(c)
	}
	m.yMean, m.yScale = scaler(resid)

	k := m.width()
	x := mat.NewDense(n, k, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x.SetRow(i, m.basis(deform[i], base))
		y.SetVec(i, (resid[i]-m.yMean)/m.yScale)
	}

	lambda := m.Lambda
	if lambda <= 0 {
		lambda = 1e-6
	}
	var a mat.Dense
	a.Mul(x.T(), x)
	for j := 0; j < k; j++ {
		a.Set(j, j, a.At(j, j)+lambda)
	}
	var b mat.VecDense
	b.MulVec(x.T(), y)
	var beta mat.VecDense
	if err := beta.SolveVec(&a, &b); err != nil {
		return 0, fmt.Errorf("solve ridge system: %w", err)
	}
	m.coef = make([]float64, k)
	for j := range m.coef {
		m.coef[j] = beta.AtVec(j)
	}

	var sse float64
	for i, e := range deform {
		d := stress[i] - m.predict(base, e)
		sse += d * d
	}
	return sse / float64(n), nil
}

// PredictCurve evaluates n evenly spaced deformations over [lo, hi].
func (m *ResidualModel) PredictCurve(p Params, lo, hi float64, n int) ([]float64, []float64, error) {
	if m.coef == nil {
		return nil, nil, ErrNotFitted
	}
	if n <= 0 {
		return nil, nil, fmt.Errorf("points must be positive, got %d", n)
	}
	deform := linspace(lo, hi, n)
	stress := make([]float64, n)
	for i, e := range deform {
		stress[i] = m.predict(p, e)
	}
	return deform, stress, nil
}

func (m *ResidualModel) width() int { return 1 + polyDegree + 4 }

func (m *ResidualModel) basis(eps float64, p Params) []float64 {
	z := (eps - m.xMean[0]) / m.xScale[0]
	row := make([]float64, 0, m.width())
	row = append(row, 1)
	for d := 1; d <= polyDegree; d++ {
		row = append(row, math.Pow(z, float64(d)))
	}
	for j, v := range p.features() {
		row = append(row, (v-m.xMean[j+1])/m.xScale[j+1])
	}
	return row
}

func (m *ResidualModel) predict(p Params, eps float64) float64 {
	var r float64
	for j, v := range m.basis(eps, p) {
		r += m.coef[j] * v
	}
	return Physics(p, eps) + r*m.yScale + m.yMean
}

// scaler returns the mean and population standard deviation of xs. A zero
// spread scales by 1 so constant features map to zero.
func scaler(xs []float64) (float64, float64) {
	mean, err := stats.Mean(xs)
	if err != nil {
		return 0, 1
	}
	sd, err := stats.StandardDeviationPopulation(xs)
	if err != nil || sd == 0 || math.IsNaN(sd) {
		return mean, 1
	}
	return mean, sd
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	out[n-1] = hi
	return out
}

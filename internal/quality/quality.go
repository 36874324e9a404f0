package quality

import "github.com/KaramelBytes/twincheck-cli/internal/metrics"

// Verdict is the qualitative accuracy band of a property.
type Verdict string

const (
	Excellent Verdict = "Excellent"
	Good      Verdict = "Good"
	Moderate  Verdict = "Moderate"
	Poor      Verdict = "Poor"
	NoData    Verdict = "NoData"
)

// Classify maps R² to a verdict. Each band includes its lower bound.
func Classify(r2 *float64) Verdict {
	switch {
	case r2 == nil:
		return NoData
	case *r2 >= 0.8:
		return Excellent
	case *r2 >= 0.6:
		return Good
	case *r2 >= 0.4:
		return Moderate
	default:
		return Poor
	}
}

// ClassifyAll returns a verdict for every aggregated property.
func ClassifyAll(ms []metrics.PropertyMetrics) map[metrics.Property]Verdict {
	out := make(map[metrics.Property]Verdict, len(ms))
	for _, m := range ms {
		out[m.Property] = Classify(m.R2)
	}
	return out
}

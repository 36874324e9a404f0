package record

import "math"

// Origin tags where a record came from.
type Origin string

const (
	Virtual Origin = "virtual"
	Real    Origin = "real"
)

// Record is one normalized experiment observation.
type Record struct {
	Origin Origin `json:"origin" yaml:"origin"`
	// Unit names the input file or upload the record was read from.
	Unit string `json:"unit,omitempty" yaml:"unit,omitempty"`
	// Row is the 1-based data row inside Unit.
	Row int `json:"row" yaml:"row"`

	PolymerPercent float64 `json:"polymer_percent" yaml:"polymer_percent"`
	FiberPercent   float64 `json:"fiber_percent" yaml:"fiber_percent"`
	EModulus       float64 `json:"E_modulus" yaml:"E_modulus"`
	MaxForce       float64 `json:"max_force" yaml:"max_force"`
	Strength       float64 `json:"strength" yaml:"strength"`
	Elongation     float64 `json:"elongation" yaml:"elongation"`
}

// GroupKey returns the categorical key records are partitioned by.
func (r Record) GroupKey() float64 { return r.PolymerPercent }

// RecordSet is an ordered sequence of records from one origin.
type RecordSet []Record

// Group is the subset of a RecordSet sharing one group key, in original order.
type Group struct {
	Key     float64
	Records RecordSet
}

// KeyEqual reports whether two group keys are the same group. An epsilon of
// zero means exact float equality.
func KeyEqual(a, b, epsilon float64) bool {
	if epsilon <= 0 {
		return a == b
	}
	return math.Abs(a-b) <= epsilon
}

// Keys lists distinct group keys in order of first appearance. NaN keys are
// dropped since they can never compare equal to anything.
func (s RecordSet) Keys(epsilon float64) []float64 {
	var keys []float64
	for _, r := range s {
		k := r.GroupKey()
		if math.IsNaN(k) {
			continue
		}
		seen := false
		for _, existing := range keys {
			if KeyEqual(existing, k, epsilon) {
				seen = true
				break
			}
		}
		if !seen {
			keys = append(keys, k)
		}
	}
	return keys
}

// Partition splits s across keys. Each record goes to the first key it
// matches; records matching none of the keys are left out. The result is
// parallel to keys and preserves the original record order per slot.
func (s RecordSet) Partition(keys []float64, epsilon float64) []RecordSet {
	out := make([]RecordSet, len(keys))
	for _, r := range s {
		for i, k := range keys {
			if KeyEqual(r.GroupKey(), k, epsilon) {
				out[i] = append(out[i], r)
				break
			}
		}
	}
	return out
}

// Groups partitions s by its own group keys in discovery order.
func (s RecordSet) Groups(epsilon float64) []Group {
	keys := s.Keys(epsilon)
	parts := s.Partition(keys, epsilon)
	out := make([]Group, len(keys))
	for i, k := range keys {
		out[i] = Group{Key: k, Records: parts[i]}
	}
	return out
}

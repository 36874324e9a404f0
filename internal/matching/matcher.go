// Package matching pairs virtual experiment records with real ones inside
// each polymer group under a combined tolerance on fiber content and the four
// mechanical properties.
package matching

import (
	"math"

	"github.com/KaramelBytes/twincheck-cli/internal/record"
)

// DefaultTolerance is the default score threshold, in percent.
const DefaultTolerance = 15.0

// Match is one accepted (virtual, real) pair. Matches are never mutated
// after the Matcher returns them.
type Match struct {
	Virtual record.Record `json:"virtual" yaml:"virtual"`
	Real    record.Record `json:"real" yaml:"real"`
	Score   float64       `json:"score" yaml:"score"`
}

// MatchSet is the ordered output of one matching run.
type MatchSet struct {
	Matches []Match `json:"matches" yaml:"matches"`
	// TotalVirtual counts every virtual record considered.
	TotalVirtual int `json:"total_virtual" yaml:"total_virtual"`
	// Lost counts virtual records with no real record under the tolerance,
	// including those whose group has no real records at all.
	Lost int `json:"lost_matches" yaml:"lost_matches"`
	// Undefined counts the lost records whose score could not be computed
	// because of a zero or missing denominator or a missing fiber content.
	// It is a subset of Lost.
	Undefined int `json:"undefined_scores" yaml:"undefined_scores"`
}

// Options configures a Matcher.
type Options struct {
	// Tolerance is the inclusive upper bound for a suitable score.
	Tolerance float64
	// PairOnly commits each virtual record to its single best real record
	// and removes that real record from the group pool.
	PairOnly bool
	// GroupEpsilon widens group-key equality. Zero keeps exact equality.
	GroupEpsilon float64
}

// Matcher finds virtual/real correspondences. The zero value uses a zero
// tolerance; use New for the defaults.
type Matcher struct {
	opt Options
}

// New returns a Matcher with the given options.
func New(opt Options) *Matcher {
	return &Matcher{opt: opt}
}

// Score is the dissimilarity between a virtual and a real record: absolute
// fiber difference plus the relative differences of E modulus, max force,
// strength and elongation, each in percent of the virtual value. It reports
// false when any virtual denominator is zero.
func Score(v, r record.Record) (float64, bool) {
	s := math.Abs(r.FiberPercent - v.FiberPercent)
	for _, p := range [][2]float64{
		{v.EModulus, r.EModulus},
		{v.MaxForce, r.MaxForce},
		{v.Strength, r.Strength},
		{v.Elongation, r.Elongation},
	} {
		if p[0] == 0 {
			return math.NaN(), false
		}
		s += math.Abs(p[1]-p[0]) / p[0] * 100
	}
	if math.IsNaN(s) {
		return s, false
	}
	return s, true
}

// Match runs the matching over both record sets. Groups come from the
// virtual set in order of first appearance; real records in groups the
// virtual set never mentions are ignored.
func (m *Matcher) Match(virtual, reals record.RecordSet) MatchSet {
	out := MatchSet{TotalVirtual: len(virtual)}
	keys := virtual.Keys(m.opt.GroupEpsilon)
	virtParts := virtual.Partition(keys, m.opt.GroupEpsilon)
	realParts := reals.Partition(keys, m.opt.GroupEpsilon)
	grouped := 0
	for i := range keys {
		grouped += len(virtParts[i])
		g := m.matchGroup(virtParts[i], realParts[i])
		out.Matches = append(out.Matches, g.Matches...)
		out.Lost += g.Lost
		out.Undefined += g.Undefined
	}
	// Virtual records without a usable group key never reach a group.
	out.Lost += len(virtual) - grouped
	return out
}

// matchGroup processes one group. The real pool is local to this call so
// consumption under PairOnly never leaks across groups.
func (m *Matcher) matchGroup(virt, reals record.RecordSet) MatchSet {
	var out MatchSet
	if len(reals) == 0 {
		out.Lost = len(virt)
		return out
	}
	pool := make([]bool, len(reals)) // true once consumed
	for _, v := range virt {
		if !Scorable(v) {
			out.Lost++
			out.Undefined++
			continue
		}
		best := -1
		bestScore := math.Inf(1)
		for j, r := range reals {
			if pool[j] {
				continue
			}
			s, ok := Score(v, r)
			// written as !(s <= tol) so a NaN tolerance accepts nothing
			if !ok || !(s <= m.opt.Tolerance) {
				continue
			}
			if !m.opt.PairOnly {
				out.Matches = append(out.Matches, Match{Virtual: v, Real: r, Score: s})
				best = j
				continue
			}
			// strict less-than keeps the earliest row on ties
			if s < bestScore {
				best, bestScore = j, s
			}
		}
		if best < 0 {
			out.Lost++
			continue
		}
		if m.opt.PairOnly {
			out.Matches = append(out.Matches, Match{Virtual: v, Real: reals[best], Score: bestScore})
			pool[best] = true
		}
	}
	return out
}

// Scorable reports whether v can be scored at all: none of its denominator
// fields is zero or NaN and its fiber content is known.
func Scorable(v record.Record) bool {
	if math.IsNaN(v.FiberPercent) {
		return false
	}
	for _, d := range []float64{v.EModulus, v.MaxForce, v.Strength, v.Elongation} {
		if d == 0 || math.IsNaN(d) {
			return false
		}
	}
	return true
}

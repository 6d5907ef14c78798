package merge

import (
	"math"
	"math/rand/v2"
)

// Multiplier supplies the per-record factor of the GDP estimate. The estimate
// is a synthetic placeholder, so this is the one seam to swap when the formula
// changes; tests use FixedMultiplier.
type Multiplier interface {
	Next() int
}

// RandomMultiplier draws uniformly from [Min, Max] inclusive on every call.
type RandomMultiplier struct {
	Min int
	Max int
}

func (m RandomMultiplier) Next() int {
	if m.Max <= m.Min {
		return m.Min
	}
	return m.Min + rand.IntN(m.Max-m.Min+1)
}

// FixedMultiplier always returns the same factor.
type FixedMultiplier int

func (f FixedMultiplier) Next() int { return int(f) }

// EstimateGDP returns population * multiplier / rate, or nil when there is no
// usable rate. A missing rate and a zero rate both yield nil, never Inf or NaN.
func EstimateGDP(population int64, rate float64, hasRate bool, m Multiplier) *float64 {
	if !hasRate || rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil
	}
	gdp := float64(population) * float64(m.Next()) / rate
	if math.IsNaN(gdp) || math.IsInf(gdp, 0) {
		return nil
	}
	return &gdp
}

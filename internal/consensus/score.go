package consensus

import (
	"math"

	"consensus-radar/internal/storage"
)

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// growthPct computes (cur - base) / |base| * 100. Nil when either
// value is missing or the base is zero.
func growthPct(base, cur *float64) *float64 {
	if base == nil || cur == nil || *base == 0 {
		return nil
	}
	v := (*cur - *base) / math.Abs(*base) * 100
	return &v
}

// fvbScore is the fair-value bias: positive when earnings growth is
// outpacing multiple expansion. Bounded to [-2, 2].
func fvbScore(epsGrowth, perGrowth *float64) *float64 {
	if epsGrowth == nil || perGrowth == nil {
		return nil
	}
	v := clamp(-2, 2, (*epsGrowth-*perGrowth)/20)
	return &v
}

// hgsScore is the healthy-growth score: EPS growth capped to [0, 100].
func hgsScore(epsGrowth *float64) *float64 {
	if epsGrowth == nil {
		return nil
	}
	v := clamp(0, 100, *epsGrowth)
	return &v
}

// rrsScore is the re-rating-risk score: PER growth capped to [0, 100].
func rrsScore(perGrowth *float64) *float64 {
	if perGrowth == nil {
		return nil
	}
	v := clamp(0, 100, *perGrowth)
	return &v
}

// classify maps the growth-sign pair onto a quadrant. The four
// predicates are mutually exclusive and cover every non-nil pair.
// ok is false when either input is missing.
func classify(epsGrowth, perGrowth *float64) (storage.Quadrant, bool) {
	if epsGrowth == nil || perGrowth == nil {
		return "", false
	}
	e, p := *epsGrowth, *perGrowth
	switch {
	case e > 0 && p < 0:
		return storage.QuadGrowthDerating, true
	case e > 0:
		return storage.QuadGrowthRerating, true
	case p > 0:
		return storage.QuadDeclineRerating, true
	default:
		return storage.QuadDeclineDerating, true
	}
}

func deltaOf(cur, prev *float64) *float64 {
	if cur == nil || prev == nil {
		return nil
	}
	v := *cur - *prev
	return &v
}

package catalog

import (
	"math"
	"sort"
)

const (
	MinScore = 0.0
	MaxScore = 5.0
)

// Score is the certification scoring policy: the arithmetic mean of the four
// sub-scores rounded half away from zero to two decimals. Inputs are summed
// in ascending order so any permutation yields the same result.
func Score(clinical, ux, security, integration float64) float64 {
	vals := []float64{clinical, ux, security, integration}
	sort.Float64s(vals)
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return round2(sum / float64(len(vals)))
}

// ScoreApp applies Score to the sub-scores of a.
func ScoreApp(a App) float64 {
	return Score(a.ClinicalScore, a.UXScore, a.SecurityScore, a.IntegrationScore)
}

// OverallDivergence compares a hand-entered overall score with the computed
// one and reports the gap when they disagree at two-decimal precision.
func OverallDivergence(claimed *float64, computed float64) (float64, bool) {
	if claimed == nil {
		return 0, false
	}
	gap := round2(*claimed - computed)
	return gap, gap != 0
}

// 1e-9 absorbs binary representation error so 4.825 rounds to 4.83.
func round2(v float64) float64 {
	if v < 0 {
		return -round2(-v)
	}
	return math.Round(v*100+1e-9) / 100
}

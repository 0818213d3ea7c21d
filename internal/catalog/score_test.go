package catalog

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreKnownApps(t *testing.T) {
	cases := []struct {
		name                    string
		c, ux, sec, integ, want float64
	}{
		{"MindfulPath", 4.8, 4.7, 4.9, 4.6, 4.75},
		{"DiabetesGuard", 4.9, 4.8, 4.9, 4.7, 4.83},
		{"SleepHarmony", 4.7, 4.9, 4.8, 4.5, 4.73},
		{"zeros", 0, 0, 0, 0, 0},
		{"max", 5, 5, 5, 5, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.c, tc.ux, tc.sec, tc.integ))
		})
	}
}

func TestScoreIsPermutationInvariant(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		v := [4]float64{rnd.Float64() * 5, rnd.Float64() * 5, rnd.Float64() * 5, rnd.Float64() * 5}
		base := Score(v[0], v[1], v[2], v[3])
		require.GreaterOrEqual(t, base, MinScore)
		require.LessOrEqual(t, base, MaxScore)
		for _, p := range [][4]int{{3, 2, 1, 0}, {1, 0, 3, 2}, {2, 3, 0, 1}, {0, 2, 1, 3}} {
			got := Score(v[p[0]], v[p[1]], v[p[2]], v[p[3]])
			require.Equal(t, base, got, "permutation %v of %v", p, v)
		}
		mean := (v[0] + v[1] + v[2] + v[3]) / 4
		require.InDelta(t, mean, base, 0.005+1e-9)
	}
}

func TestOverallDivergence(t *testing.T) {
	claimed := 4.9
	gap, ok := OverallDivergence(&claimed, 4.75)
	assert.True(t, ok)
	assert.Equal(t, 0.15, gap)

	same := 4.75
	_, ok = OverallDivergence(&same, 4.75)
	assert.False(t, ok)

	_, ok = OverallDivergence(nil, 4.75)
	assert.False(t, ok)
}

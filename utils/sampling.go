package utils

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// SampleCategorical draws one index from probs using src. probs need not be
// normalised; zero-weight entries are never chosen.
func SampleCategorical(probs []float64, src rand.Source) int {
	if len(probs) == 0 {
		panic("SampleCategorical: empty distribution")
	}
	c := distuv.NewCategorical(probs, src)
	return int(c.Rand())
}

// NewRand returns a PCG-backed generator; both halves of the state come
// from seed so one number reproduces a run.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

package utils

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/riffgpt/logger"
)

// Guard functions
func ChooseValidHeads(dModel, preferred int) int {
	if preferred <= 0 {
		return 1
	}
	if dModel%preferred == 0 {
		return preferred
	}
	limit := min(preferred, dModel)
	for h := limit; h >= 1; h-- {
		if dModel%h == 0 {
			logger.Warn("adjusted attention heads", logger.Fields{"preferred": preferred, "using": h})
			return h
		}
	}
	return 1
}

// RandomArray returns size samples from U(-1/sqrt(v), 1/sqrt(v)).
func RandomArray(rng *rand.Rand, size int, v float64) []float64 {
	bound := 1.0 / math.Sqrt(v+1e-12)
	out := make([]float64, size)
	for i := range out {
		out[i] = -bound + 2*bound*rng.Float64()
	}
	return out
}

func ToDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

func ZerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}

func OnesLike(a *mat.Dense) *mat.Dense {
	out := ZerosLike(a)
	r, c := out.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, 1)
		}
	}
	return out
}

// MatrixNorm is the Frobenius norm.
func MatrixNorm(m *mat.Dense) float64 {
	return mat.Norm(m, 2)
}

// GlobalNorm is the L2 norm over every element of every matrix.
func GlobalNorm(grads ...*mat.Dense) float64 {
	sum := 0.0
	for _, g := range grads {
		if g == nil {
			continue
		}
		n := MatrixNorm(g)
		sum += n * n
	}
	return math.Sqrt(sum)
}

// ClipGrads scales all grads so their combined norm <= maxNorm.
// Returns the scale actually applied (<=1.0) or 1.0 if no clip.
func ClipGrads(maxNorm float64, grads ...*mat.Dense) float64 {
	if maxNorm <= 0 {
		return 1.0
	}
	gn := GlobalNorm(grads...)
	if gn <= maxNorm || gn == 0 {
		return 1.0
	}
	s := maxNorm / (gn + 1e-6)
	for _, g := range grads {
		if g != nil {
			g.Scale(s, g)
		}
	}
	return s
}

// AccumulateInto adds src[i] into dst[i]; shapes must match.
func AccumulateInto(dst, src []*mat.Dense) {
	if len(dst) != len(src) {
		panic("AccumulateInto: length mismatch")
	}
	for i := range dst {
		floats.Add(dst[i].RawMatrix().Data, src[i].RawMatrix().Data)
	}
}

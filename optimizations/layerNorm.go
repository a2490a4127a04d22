package optimizations

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/riffgpt/utils"
)

type LayerNorm struct {
	D     int
	Eps   float64
	Gamma *mat.Dense // (d x 1)
	Beta  *mat.Dense // (d x 1)

	// cache
	Xhat   *mat.Dense // (d x T)
	InvStd []float64  // per column
}

func NewLayerNorm(d int, eps float64) *LayerNorm {
	return &LayerNorm{
		D:     d,
		Eps:   eps,
		Gamma: utils.OnesLike(mat.NewDense(d, 1, nil)),
		Beta:  mat.NewDense(d, 1, nil),
	}
}

func (ln *LayerNorm) Params() []*mat.Dense { return []*mat.Dense{ln.Gamma, ln.Beta} }

func (ln *LayerNorm) Forward(X *mat.Dense) *mat.Dense {
	out, xhat, inv := ln.normalize(X)
	ln.Xhat = xhat
	ln.InvStd = inv
	return out
}

func (ln *LayerNorm) normalize(X *mat.Dense) (*mat.Dense, *mat.Dense, []float64) {
	d, T := X.Dims()
	out := mat.NewDense(d, T, nil)
	xhat := mat.NewDense(d, T, nil)
	inv := make([]float64, T)
	for t := 0; t < T; t++ {
		mu := 0.0
		for i := 0; i < d; i++ {
			mu += X.At(i, t)
		}
		mu /= float64(d)
		var v float64
		for i := 0; i < d; i++ {
			diff := X.At(i, t) - mu
			v += diff * diff
		}
		v /= float64(d)
		istd := 1.0 / math.Sqrt(v+ln.Eps)
		inv[t] = istd
		for i := 0; i < d; i++ {
			n := (X.At(i, t) - mu) * istd
			xhat.Set(i, t, n)
			out.Set(i, t, ln.Gamma.At(i, 0)*n+ln.Beta.At(i, 0))
		}
	}
	return out, xhat, inv
}

func (ln *LayerNorm) BackwardGradsOnly(dY *mat.Dense) (dX, dGamma, dBeta *mat.Dense) {
	d, T := dY.Dims()
	dGamma = mat.NewDense(d, 1, nil)
	dBeta = mat.NewDense(d, 1, nil)
	for i := 0; i < d; i++ {
		sumDG := 0.0
		sumDB := 0.0
		for t := 0; t < T; t++ {
			sumDG += dY.At(i, t) * ln.Xhat.At(i, t)
			sumDB += dY.At(i, t)
		}
		dGamma.Set(i, 0, sumDG)
		dBeta.Set(i, 0, sumDB)
	}

	dX = mat.NewDense(d, T, nil)
	for t := 0; t < T; t++ {
		istd := ln.InvStd[t]
		sum1 := 0.0
		sum2 := 0.0
		for i := 0; i < d; i++ {
			gy := dY.At(i, t) * ln.Gamma.At(i, 0)
			sum1 += gy
			sum2 += gy * ln.Xhat.At(i, t)
		}
		for i := 0; i < d; i++ {
			gy := dY.At(i, t) * ln.Gamma.At(i, 0)
			dX.Set(i, t, (float64(d)*gy-sum1-ln.Xhat.At(i, t)*sum2)*(istd/float64(d)))
		}
	}
	return dX, dGamma, dBeta
}

// CloneForGrads shares Gamma/Beta; the cache is private.
func (ln *LayerNorm) CloneForGrads() *LayerNorm {
	return &LayerNorm{D: ln.D, Eps: ln.Eps, Gamma: ln.Gamma, Beta: ln.Beta}
}

package optimizations

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/riffgpt/params"
)

// p -= lr * (mhat/(sqrt(vhat)+eps) + wd * p) with bias correction (AdamW).
func AdamUpdateInPlace(
	p, g, m, v *mat.Dense,
	t int,
	lr, beta1, beta2, eps, weightDecay float64,
) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("adamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("adamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("adamUpdateInPlace: v shape mismatch")
	}
	c1 := 1.0 / (1.0 - math.Pow(beta1, float64(t)))
	c2 := 1.0 / (1.0 - math.Pow(beta2, float64(t)))

	pd, gd := p.RawMatrix().Data, g.RawMatrix().Data
	md, vd := m.RawMatrix().Data, v.RawMatrix().Data
	for i := range pd {
		gi := gd[i]
		md[i] = beta1*md[i] + (1.0-beta1)*gi
		vd[i] = beta2*vd[i] + (1.0-beta2)*gi*gi
		mhat := md[i] * c1
		vhat := vd[i] * c2
		pd[i] -= lr * (mhat/(math.Sqrt(vhat)+eps) + weightDecay*pd[i])
	}
}

// Adam owns the moment estimates for an ordered parameter list.
type Adam struct {
	LearningRate float64
	Beta1, Beta2 float64
	Eps          float64
	WeightDecay  float64

	T    int
	M, V []*mat.Dense
}

func NewAdam(cfg params.TrainingConfig, ps []*mat.Dense) *Adam {
	a := &Adam{
		LearningRate: cfg.LearningRate,
		Beta1:        cfg.AdamBeta1,
		Beta2:        cfg.AdamBeta2,
		Eps:          cfg.AdamEps,
		WeightDecay:  cfg.WeightDecay,
		M:            make([]*mat.Dense, len(ps)),
		V:            make([]*mat.Dense, len(ps)),
	}
	for i, p := range ps {
		r, c := p.Dims()
		a.M[i] = mat.NewDense(r, c, nil)
		a.V[i] = mat.NewDense(r, c, nil)
	}
	return a
}

// Step applies one update. grads[i] belongs to ps[i].
func (a *Adam) Step(ps, grads []*mat.Dense) {
	if len(ps) != len(a.M) || len(grads) != len(ps) {
		panic("Adam.Step: parameter count mismatch")
	}
	a.T++
	for i, p := range ps {
		AdamUpdateInPlace(p, grads[i], a.M[i], a.V[i], a.T,
			a.LearningRate, a.Beta1, a.Beta2, a.Eps, a.WeightDecay)
	}
}

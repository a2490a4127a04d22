package transformer

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/riffgpt/utils"
)

type Attention struct {
	H       int
	DModel  int
	DHead   int
	Wquery  []*mat.Dense // per head (dHead x dModel)
	Wkey    []*mat.Dense
	Wvalue  []*mat.Dense
	Woutput *mat.Dense // (dModel x dModel)

	// cache for backprop
	X       *mat.Dense
	Q, K, V []*mat.Dense
	A       []*mat.Dense
	O_cat   *mat.Dense

	maskCache map[int]*mat.Dense
}

func NewAttention(dModel, nHeads int, rng *rand.Rand) *Attention {
	attn := newAttentionShell(dModel, nHeads)
	dHead := attn.DHead
	for h := 0; h < nHeads; h++ {
		attn.Wquery[h] = mat.NewDense(dHead, dModel, utils.RandomArray(rng, dHead*dModel, float64(dModel)))
		attn.Wkey[h] = mat.NewDense(dHead, dModel, utils.RandomArray(rng, dHead*dModel, float64(dModel)))
		attn.Wvalue[h] = mat.NewDense(dHead, dModel, utils.RandomArray(rng, dHead*dModel, float64(dModel)))
	}
	attn.Woutput = mat.NewDense(dModel, dModel, utils.RandomArray(rng, dModel*dModel, float64(dModel)))
	return attn
}

func newAttentionShell(dModel, nHeads int) *Attention {
	if dModel%nHeads != 0 {
		panic("dModel must be divisible by nHeads")
	}
	return &Attention{
		H:         nHeads,
		DModel:    dModel,
		DHead:     dModel / nHeads,
		Wquery:    make([]*mat.Dense, nHeads),
		Wkey:      make([]*mat.Dense, nHeads),
		Wvalue:    make([]*mat.Dense, nHeads),
		Q:         make([]*mat.Dense, nHeads),
		K:         make([]*mat.Dense, nHeads),
		V:         make([]*mat.Dense, nHeads),
		A:         make([]*mat.Dense, nHeads),
		maskCache: make(map[int]*mat.Dense),
	}
}

// Params order: Wq, Wk, Wv per head, then Woutput.
func (attn *Attention) Params() []*mat.Dense {
	ps := make([]*mat.Dense, 0, 3*attn.H+1)
	for h := 0; h < attn.H; h++ {
		ps = append(ps, attn.Wquery[h], attn.Wkey[h], attn.Wvalue[h])
	}
	return append(ps, attn.Woutput)
}

// Forward runs causal multi-head self-attention over X (dModel x T).
func (attn *Attention) Forward(X *mat.Dense) *mat.Dense {
	attn.X = X
	_, T := X.Dims()
	headsCat := mat.NewDense(attn.DModel, T, nil)

	rescale := 1.0 / math.Sqrt(float64(attn.DHead))
	mask, ok := attn.maskCache[T]
	if !ok {
		mask = utils.CausalMask(T)
		attn.maskCache[T] = mask
	}

	for h := 0; h < attn.H; h++ {
		q := mat.NewDense(attn.DHead, T, nil)
		k := mat.NewDense(attn.DHead, T, nil)
		v := mat.NewDense(attn.DHead, T, nil)
		q.Mul(attn.Wquery[h], X)
		k.Mul(attn.Wkey[h], X)
		v.Mul(attn.Wvalue[h], X)

		// S = (Q^T K)/sqrt(dHead)
		scores := mat.NewDense(T, T, nil)
		scores.Mul(q.T(), k)
		scores.Scale(rescale, scores)
		a := utils.RowSoftmaxMaskedInPlace(mat.NewDense(T, T, nil), scores, mask)

		// O = V * A^T
		base := h * attn.DHead
		dst := headsCat.Slice(base, base+attn.DHead, 0, T).(*mat.Dense)
		dst.Mul(v, a.T())

		attn.Q[h], attn.K[h], attn.V[h], attn.A[h] = q, k, v, a
	}
	attn.O_cat = headsCat
	return utils.ToDense(utils.Dot(attn.Woutput, headsCat))
}

// BackwardGradsOnly computes grads aligned with Params and dX; weights are
// not touched.
func (attn *Attention) BackwardGradsOnly(dY *mat.Dense) (*mat.Dense, []*mat.Dense) {
	_, T := attn.X.Dims()
	grads := make([]*mat.Dense, 0, 3*attn.H+1)

	dWout := utils.ToDense(utils.Dot(dY, attn.O_cat.T()))
	dOcat := utils.ToDense(utils.Dot(attn.Woutput.T(), dY))

	dXtotal := mat.NewDense(attn.DModel, T, nil)
	rescale := 1.0 / math.Sqrt(float64(attn.DHead))

	for h := 0; h < attn.H; h++ {
		row := h * attn.DHead
		dO := dOcat.Slice(row, row+attn.DHead, 0, T)

		// O = V * A^T
		dV := utils.ToDense(utils.Dot(dO, attn.A[h]))         // (dHead x T)
		dA := utils.ToDense(utils.Dot(attn.V[h].T(), dO)).T() // (T x T)
		dS := utils.SoftmaxBackward(dA, attn.A[h])            // (T x T)
		dQ := utils.ToDense(utils.Scale(rescale, utils.Dot(attn.K[h], dS.T())))
		dK := utils.ToDense(utils.Scale(rescale, utils.Dot(attn.Q[h], dS)))

		grads = append(grads,
			utils.ToDense(utils.Dot(dQ, attn.X.T())),
			utils.ToDense(utils.Dot(dK, attn.X.T())),
			utils.ToDense(utils.Dot(dV, attn.X.T())),
		)

		dXtotal.Add(dXtotal, utils.Dot(attn.Wquery[h].T(), dQ))
		dXtotal.Add(dXtotal, utils.Dot(attn.Wkey[h].T(), dK))
		dXtotal.Add(dXtotal, utils.Dot(attn.Wvalue[h].T(), dV))
	}
	return dXtotal, append(grads, dWout)
}

func (attn *Attention) cloneForGrads() *Attention {
	c := newAttentionShell(attn.DModel, attn.H)
	copy(c.Wquery, attn.Wquery)
	copy(c.Wkey, attn.Wkey)
	copy(c.Wvalue, attn.Wvalue)
	c.Woutput = attn.Woutput
	return c
}

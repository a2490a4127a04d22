package transformer

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/riffgpt/optimizations"
	"github.com/manningwu07/riffgpt/params"
	"github.com/manningwu07/riffgpt/utils"
)

const lnEps = 1e-5

type TransformerBlock struct {
	Attn *Attention
	Mlp  *MLP
	Ln1  *optimizations.LayerNorm
	Ln2  *optimizations.LayerNorm
}

func NewBlock(dModel, nHeads, hidden int, rng *rand.Rand) TransformerBlock {
	return TransformerBlock{
		Attn: NewAttention(dModel, nHeads, rng),
		Mlp:  NewMLP(dModel, hidden, rng),
		Ln1:  optimizations.NewLayerNorm(dModel, lnEps),
		Ln2:  optimizations.NewLayerNorm(dModel, lnEps),
	}
}

// Params order: Ln1, Attn, Ln2, Mlp.
func (b *TransformerBlock) Params() []*mat.Dense {
	ps := b.Ln1.Params()
	ps = append(ps, b.Attn.Params()...)
	ps = append(ps, b.Ln2.Params()...)
	return append(ps, b.Mlp.Params()...)
}

// Forward: xRes = X + c*Attn(Ln1(X)); Y = xRes + c*MLP(Ln2(xRes)), c = 1/sqrt(2).
func (b *TransformerBlock) Forward(X *mat.Dense) *mat.Dense {
	c := 1 / math.Sqrt(2)
	attnOut := b.Attn.Forward(b.Ln1.Forward(X))
	xRes := utils.ToDense(utils.Add(X, utils.Scale(c, attnOut)))
	mlpOut := b.Mlp.Forward(b.Ln2.Forward(xRes))
	return utils.ToDense(utils.Add(xRes, utils.Scale(c, mlpOut)))
}

func (b *TransformerBlock) BackwardGradsOnly(grad *mat.Dense) (*mat.Dense, []*mat.Dense) {
	c := 1 / math.Sqrt(2)

	dX2, mlpGrads := b.Mlp.BackwardGradsOnly(utils.ToDense(utils.Scale(c, grad)))
	dXresFromLn2, dG2, dB2 := b.Ln2.BackwardGradsOnly(dX2)
	dXres := utils.ToDense(utils.Add(grad, dXresFromLn2))
	dX1, attnGrads := b.Attn.BackwardGradsOnly(utils.ToDense(utils.Scale(c, dXres)))
	dXFromLn1, dG1, dB1 := b.Ln1.BackwardGradsOnly(dX1)

	grads := make([]*mat.Dense, 0, 4+len(attnGrads)+len(mlpGrads))
	grads = append(grads, dG1, dB1)
	grads = append(grads, attnGrads...)
	grads = append(grads, dG2, dB2)
	grads = append(grads, mlpGrads...)
	return utils.ToDense(utils.Add(dXres, dXFromLn1)), grads
}

// Model maps token ids to next-token logits:
// embedding + positional bias -> blocks -> linear projection.
type Model struct {
	Config    params.ModelConfig
	VocabSize int

	Emb    *mat.Dense // (dModel x V), column per token
	PosEmb *mat.Dense // (dModel x SeqLen)
	Blocks []TransformerBlock
	OutW   *mat.Dense // (V x dModel)
	OutB   *mat.Dense // (V x 1)

	// cache for backprop
	ids   []int
	lastY *mat.Dense
}

// NewModel initialises a model. Config.NumHeads is rewritten to the head
// count actually used.
func NewModel(cfg params.ModelConfig, vocabSize int, rng *rand.Rand) *Model {
	if vocabSize <= 0 {
		panic("NewModel: vocabulary must not be empty")
	}
	cfg.NumHeads = utils.ChooseValidHeads(cfg.DModel, cfg.NumHeads)
	d := cfg.DModel
	m := &Model{
		Config:    cfg,
		VocabSize: vocabSize,
		Emb:       mat.NewDense(d, vocabSize, utils.RandomArray(rng, d*vocabSize, float64(d))),
		PosEmb:    mat.NewDense(d, cfg.SeqLen, nil),
		Blocks:    make([]TransformerBlock, cfg.Layers),
		OutW:      mat.NewDense(vocabSize, d, utils.RandomArray(rng, vocabSize*d, float64(d))),
		OutB:      mat.NewDense(vocabSize, 1, nil),
	}
	for i := range m.Blocks {
		m.Blocks[i] = NewBlock(d, cfg.NumHeads, cfg.HiddenSize, rng)
	}
	return m
}

// Params order: Emb, PosEmb, blocks in order, OutW, OutB.
func (m *Model) Params() []*mat.Dense {
	ps := []*mat.Dense{m.Emb, m.PosEmb}
	for i := range m.Blocks {
		ps = append(ps, m.Blocks[i].Params()...)
	}
	return append(ps, m.OutW, m.OutB)
}

// Forward returns logits (V x T) for ids, T <= SeqLen.
func (m *Model) Forward(ids []int) (*mat.Dense, error) {
	T := len(ids)
	if T == 0 || T > m.Config.SeqLen {
		return nil, fmt.Errorf("sequence length %d outside 1..%d", T, m.Config.SeqLen)
	}
	d := m.Config.DModel
	X := mat.NewDense(d, T, nil)
	for t, id := range ids {
		if id < 0 || id >= m.VocabSize {
			return nil, fmt.Errorf("token %d outside vocabulary of %d", id, m.VocabSize)
		}
		for i := 0; i < d; i++ {
			X.Set(i, t, m.Emb.At(i, id)+m.PosEmb.At(i, t))
		}
	}

	Y := X
	for i := range m.Blocks {
		Y = m.Blocks[i].Forward(Y)
	}
	m.ids = append(m.ids[:0], ids...)
	m.lastY = Y
	return utils.AddBias(utils.ToDense(utils.Dot(m.OutW, Y)), m.OutB), nil
}

// BackwardGradsOnly returns grads aligned with Params for the last Forward.
func (m *Model) BackwardGradsOnly(dLogits *mat.Dense) []*mat.Dense {
	dOutW := utils.ToDense(utils.Dot(dLogits, m.lastY.T()))
	dOutB := utils.SumCols(dLogits)
	dY := utils.ToDense(utils.Dot(m.OutW.T(), dLogits))

	blockGrads := make([][]*mat.Dense, len(m.Blocks))
	for i := len(m.Blocks) - 1; i >= 0; i-- {
		dY, blockGrads[i] = m.Blocks[i].BackwardGradsOnly(dY)
	}

	// X = Emb[:, id] + PosEmb[:, t]
	dEmb := utils.ZerosLike(m.Emb)
	dPos := utils.ZerosLike(m.PosEmb)
	d := m.Config.DModel
	for t, id := range m.ids {
		for i := 0; i < d; i++ {
			g := dY.At(i, t)
			dEmb.Set(i, id, dEmb.At(i, id)+g)
			dPos.Set(i, t, dPos.At(i, t)+g)
		}
	}

	grads := []*mat.Dense{dEmb, dPos}
	for _, bg := range blockGrads {
		grads = append(grads, bg...)
	}
	return append(grads, dOutW, dOutB)
}

// NextTokenProbs returns the softmax distribution at the final position.
func (m *Model) NextTokenProbs(ids []int) ([]float64, error) {
	logits, err := m.Forward(ids)
	if err != nil {
		return nil, err
	}
	return utils.ColSoftmax(logits, len(ids)-1), nil
}

package transformer

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/riffgpt/params"
	"github.com/manningwu07/riffgpt/utils"
)

func finiteDiffCheck(t *testing.T, name string, param *mat.Dense, grad *mat.Dense,
	forward func() float64, i, j int) {
	t.Helper()

	eps := 1e-5
	w0 := param.At(i, j)

	param.Set(i, j, w0+eps)
	lp := forward()
	param.Set(i, j, w0-eps)
	lm := forward()
	param.Set(i, j, w0)

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := grad.At(i, j)

	tol := 1e-5 + 1e-3*math.Max(math.Abs(numGrad), math.Abs(anaGrad))
	if math.Abs(numGrad-anaGrad) > tol {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g",
			name, i, j, numGrad, anaGrad)
	}
}

func weightedSum(Y, W *mat.Dense) float64 {
	r, c := Y.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(Y, W)
	return mat.Sum(o)
}

func randDense(seed uint64, r, c int) *mat.Dense {
	return mat.NewDense(r, c, utils.RandomArray(utils.NewRand(seed), r*c, 1))
}

func tinyConfig() params.ModelConfig {
	return params.ModelConfig{DModel: 4, HiddenSize: 6, NumHeads: 2, Layers: 2, SeqLen: 5}
}

// ---- Attention ----
func TestAttentionGradCheck(t *testing.T) {
	rng := utils.NewRand(123)
	attn := NewAttention(4, 2, rng)
	x := randDense(1, 4, 3)
	w := randDense(2, 4, 3)

	forward := func() float64 { return weightedSum(attn.Forward(x), w) }

	attn.Forward(x)
	dX, grads := attn.BackwardGradsOnly(w)
	ps := attn.Params()
	require.Len(t, grads, len(ps))

	finiteDiffCheck(t, "Wquery", attn.Wquery[0], grads[0], forward, 0, 1)
	finiteDiffCheck(t, "Wkey", attn.Wkey[1], grads[4], forward, 1, 0)
	finiteDiffCheck(t, "Wvalue", attn.Wvalue[0], grads[2], forward, 1, 2)
	finiteDiffCheck(t, "Woutput", attn.Woutput, grads[len(grads)-1], forward, 2, 3)
	finiteDiffCheck(t, "X", x, dX, forward, 3, 1)
}

func TestAttentionIsCausal(t *testing.T) {
	attn := NewAttention(4, 2, utils.NewRand(5))
	x := randDense(3, 4, 4)
	y1 := mat.DenseCopyOf(attn.Forward(x))

	x.Set(0, 3, x.At(0, 3)+1.0)
	y2 := attn.Forward(x)
	for t0 := 0; t0 < 3; t0++ {
		for i := 0; i < 4; i++ {
			assert.InDelta(t, y1.At(i, t0), y2.At(i, t0), 1e-12)
		}
	}
}

// ---- MLP ----
func TestMLPGradCheck(t *testing.T) {
	mlp := NewMLP(4, 5, utils.NewRand(123))
	x := randDense(4, 4, 2)
	w := randDense(5, 4, 2)

	forward := func() float64 { return weightedSum(mlp.Forward(x), w) }

	mlp.Forward(x)
	dX, grads := mlp.BackwardGradsOnly(w)

	finiteDiffCheck(t, "hiddenWeights", mlp.HiddenWeights, grads[0], forward, 0, 0)
	finiteDiffCheck(t, "hiddenBias", mlp.HiddenBias, grads[1], forward, 3, 0)
	finiteDiffCheck(t, "outputWeights", mlp.OutputWeights, grads[2], forward, 1, 4)
	finiteDiffCheck(t, "outputBias", mlp.OutputBias, grads[3], forward, 2, 0)
	finiteDiffCheck(t, "X", x, dX, forward, 1, 1)
}

// ---- Transformer Block ----
func TestBlockGradCheck(t *testing.T) {
	block := NewBlock(4, 2, 5, utils.NewRand(123))
	x := randDense(6, 4, 3)
	w := randDense(7, 4, 3)

	forward := func() float64 { return weightedSum(block.Forward(x), w) }

	block.Forward(x)
	dX, grads := block.BackwardGradsOnly(w)
	ps := block.Params()
	require.Len(t, grads, len(ps))

	for k, p := range ps {
		finiteDiffCheck(t, "Block.param", p, grads[k], forward, 0, 0)
	}
	finiteDiffCheck(t, "Block.X", x, dX, forward, 2, 2)
}

// ---- Full model ----
func TestModelGradCheck(t *testing.T) {
	m := NewModel(tinyConfig(), 3, utils.NewRand(123))
	// non-zero positional bias so its gradient path is exercised
	copy(m.PosEmb.RawMatrix().Data, utils.RandomArray(utils.NewRand(9), 4*5, 4))

	ids := []int{0, 2, 1, 2}
	targets := []int{2, 1, 2, 0}
	scale := 1.0 / float64(len(ids))

	forward := func() float64 {
		logits, err := m.Forward(ids)
		require.NoError(t, err)
		loss, _ := utils.CrossEntropyColumns(logits, targets, scale)
		return loss * scale
	}

	logits, err := m.Forward(ids)
	require.NoError(t, err)
	_, dLogits := utils.CrossEntropyColumns(logits, targets, scale)
	grads := m.BackwardGradsOnly(dLogits)
	ps := m.Params()
	require.Len(t, grads, len(ps))

	finiteDiffCheck(t, "Emb", m.Emb, grads[0], forward, 1, 2)
	finiteDiffCheck(t, "PosEmb", m.PosEmb, grads[1], forward, 3, 1)
	finiteDiffCheck(t, "Block0.Wquery", m.Blocks[0].Attn.Wquery[0], grads[4], forward, 0, 1)
	finiteDiffCheck(t, "OutW", m.OutW, grads[len(grads)-2], forward, 2, 3)
	finiteDiffCheck(t, "OutB", m.OutB, grads[len(grads)-1], forward, 1, 0)

	// unused position keeps a zero gradient
	assert.Equal(t, 0.0, mat.Norm(grads[1].ColView(4), 2))
}

func TestModelRejectsBadInput(t *testing.T) {
	m := NewModel(tinyConfig(), 3, utils.NewRand(1))
	_, err := m.Forward(nil)
	assert.Error(t, err)
	_, err = m.Forward([]int{0, 1, 2, 0, 1, 2})
	assert.Error(t, err)
	_, err = m.Forward([]int{3})
	assert.Error(t, err)
}

func TestCloneSharesWeights(t *testing.T) {
	m := NewModel(tinyConfig(), 3, utils.NewRand(2))
	c := m.CloneForGradsOnly()
	ids := []int{1, 0, 2}

	a, err := m.Forward(ids)
	require.NoError(t, err)
	b, err := c.Forward(ids)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))

	m.OutB.Set(0, 0, 3)
	assert.Equal(t, 3.0, c.OutB.At(0, 0))
	assert.Same(t, m.Blocks[1].Mlp.HiddenWeights, c.Blocks[1].Mlp.HiddenWeights)
}

func TestNextTokenProbs(t *testing.T) {
	m := NewModel(tinyConfig(), 3, utils.NewRand(4))
	p, err := m.NextTokenProbs([]int{0, 0, 0})
	require.NoError(t, err)
	require.Len(t, p, 3)
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

// ---- Checkpoint ----
func TestCheckpointRoundTrip(t *testing.T) {
	m := NewModel(tinyConfig(), 3, utils.NewRand(11))
	vocab := params.NewVocabulary([]string{"C4", "E4", "G4"})
	path := filepath.Join(t.TempDir(), "Models", "transformer.gob")

	require.NoError(t, SaveCheckpoint(path, NewCheckpoint(m, vocab)))
	ck, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.NotEmpty(t, ck.RunID)
	assert.Equal(t, 5, ck.SequenceLength)
	assert.Equal(t, vocab, ck.Vocabulary())

	restored, err := ck.Restore()
	require.NoError(t, err)
	ids := []int{2, 1, 0, 1}
	want, err := m.Forward(ids)
	require.NoError(t, err)
	got, err := restored.Forward(ids)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 0))
}

func TestCheckpointOverwriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transformer.gob")
	vocab := params.NewVocabulary([]string{"C4"})

	require.NoError(t, SaveCheckpoint(path, NewCheckpoint(NewModel(tinyConfig(), 1, utils.NewRand(1)), vocab)))
	first, err := LoadCheckpoint(path)
	require.NoError(t, err)
	require.NoError(t, SaveCheckpoint(path, NewCheckpoint(NewModel(tinyConfig(), 1, utils.NewRand(2)), vocab)))
	second, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadCheckpointMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadCheckpoint(filepath.Join(dir, "absent.gob"))
	assert.True(t, errors.Is(err, ErrCheckpointMissing))

	garbage := filepath.Join(dir, "garbage.gob")
	require.NoError(t, os.WriteFile(garbage, []byte("not a gob"), 0o644))
	_, err = LoadCheckpoint(garbage)
	assert.ErrorIs(t, err, ErrCheckpointMissing)
}

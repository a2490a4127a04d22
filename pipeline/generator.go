package pipeline

import (
	"fmt"
	"math/rand/v2"

	"github.com/manningwu07/riffgpt/params"
	"github.com/manningwu07/riffgpt/pattern"
	"github.com/manningwu07/riffgpt/transformer"
	"github.com/manningwu07/riffgpt/utils"
)

var styleSeeds = map[string]string{
	"da_funk":       "C2",
	"around_world":  "D2",
	"harder_better": "F2",
}

// SeedPitch is the starting pitch name for style.
func SeedPitch(style string) string {
	if s, ok := styleSeeds[style]; ok {
		return s
	}
	return "C2"
}

// Generator samples tokens autoregressively from a trained model.
type Generator struct {
	model  *transformer.Model
	vocab  params.Vocabulary
	seqLen int
	rng    *rand.Rand
}

func NewGenerator(model *transformer.Model, vocab params.Vocabulary, rng *rand.Rand) *Generator {
	return &Generator{model: model, vocab: vocab, seqLen: model.Config.SeqLen, rng: rng}
}

// LoadGenerator restores the checkpoint at path. A missing or unreadable
// file yields transformer.ErrCheckpointMissing.
func LoadGenerator(path string, rng *rand.Rand) (*Generator, error) {
	ck, err := transformer.LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	model, err := ck.Restore()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", transformer.ErrCheckpointMissing, err)
	}
	return NewGenerator(model, ck.Vocabulary(), rng), nil
}

func (g *Generator) Vocabulary() params.Vocabulary { return g.vocab }

// SeedToken resolves the style seed pitch, falling back to token 0.
func (g *Generator) SeedToken(style string) int {
	if id, ok := g.vocab.Lookup(SeedPitch(style)); ok {
		return id
	}
	return 0
}

// Generate returns exactly bars*16 tokens. The window starts as seqLen
// copies of the seed and slides by one token per step.
func (g *Generator) Generate(style string, bars int) ([]int, error) {
	n := max(bars, 0) * pattern.StepsPerBar
	window := make([]int, g.seqLen)
	seed := g.SeedToken(style)
	for i := range window {
		window[i] = seed
	}

	out := make([]int, 0, n)
	for len(out) < n {
		probs, err := g.model.NextTokenProbs(window)
		if err != nil {
			return nil, err
		}
		tok := utils.SampleCategorical(probs, g.rng)
		out = append(out, tok)
		copy(window, window[1:])
		window[len(window)-1] = tok
	}
	return out, nil
}

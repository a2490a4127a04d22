package pipeline

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manningwu07/riffgpt/IO"
	"github.com/manningwu07/riffgpt/music"
	"github.com/manningwu07/riffgpt/params"
	"github.com/manningwu07/riffgpt/transformer"
	"github.com/manningwu07/riffgpt/utils"
)

func testConfig(t *testing.T) params.Config {
	t.Helper()
	cfg := params.Default()
	cfg.BaseDir = t.TempDir()
	cfg.Offline = true
	cfg.Model = params.ModelConfig{DModel: 8, HiddenSize: 16, NumHeads: 2, Layers: 1, SeqLen: 64}
	cfg.Training.Epochs = 1
	cfg.Training.BatchSize = 16
	cfg.Training.Workers = 2
	cfg.Training.Seed = 3
	return cfg
}

// writeCorpus writes one file cycling C4 E4 G4 for n notes.
func writeCorpus(t *testing.T, cfg params.Config, name string, n int) {
	t.Helper()
	cycle := []int{60, 64, 67}
	tr := music.Track{Tempo: 120}
	for i := 0; i < n; i++ {
		tr.Events = append(tr.Events, music.Event{Pitch: cycle[i%3], Onset: float64(i) * 0.25, Duration: 0.25, Velocity: 100})
	}
	require.NoError(t, IO.NewRenderer().WriteFile(filepath.Join(cfg.CorpusDir(), name), tr))
}

func TestTrainThenGenerateEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg, "triad.mid", 120)

	var out bytes.Buffer
	p := New(cfg, &out)
	res, err := p.Run(context.Background(), Request{Mode: ModeTrain, Style: "da_funk", Tempo: 128, Bars: 1})
	require.NoError(t, err)
	path := res.Path
	assert.Equal(t, cfg.CheckpointPath(), path)
	assert.Len(t, res.EpochLosses, 1)
	assert.Contains(t, out.String(), "[TRAIN] Epoch 01/1 | Loss ")
	assert.Contains(t, out.String(), "[MODEL] Saved transformer to "+path)

	ck, err := transformer.LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"C4", "E4", "G4"}, ck.IDToToken)
	assert.Equal(t, 64, ck.SequenceLength)

	gen, err := LoadGenerator(path, utils.NewRand(1))
	require.NoError(t, err)
	tokens, err := gen.Generate("da_funk", 1)
	require.NoError(t, err)
	require.Len(t, tokens, 16)
	for _, tok := range tokens {
		assert.GreaterOrEqual(t, tok, 0)
		assert.Less(t, tok, 3)
	}

	gres, err := p.Run(context.Background(), Request{Mode: ModeGenerate, Style: "da_funk", Tempo: 128, Bars: 1})
	require.NoError(t, err)
	midiPath := gres.Path
	assert.Equal(t, filepath.Join(cfg.MIDIsDir(), "model_da_funk.mid"), midiPath)
	elems, err := IO.SMFParser{}.Parse(midiPath)
	require.NoError(t, err)
	assert.Len(t, elems, 16)
}

func TestCheckpointReloadReproducesSampling(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg, "triad.mid", 100)

	vocab, stream, err := New(cfg, nil).Ingest(context.Background())
	require.NoError(t, err)
	res, err := NewTrainer(cfg, nil).Train(context.Background(), vocab, stream)
	require.NoError(t, err)
	require.Len(t, res.EpochLosses, 1)
	require.NoError(t, transformer.SaveCheckpoint(cfg.CheckpointPath(), res.Checkpoint))

	want, err := NewGenerator(res.Model, vocab, utils.NewRand(42)).Generate("around_world", 2)
	require.NoError(t, err)
	loaded, err := LoadGenerator(cfg.CheckpointPath(), utils.NewRand(42))
	require.NoError(t, err)
	got, err := loaded.Generate("around_world", 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGenerateLengthForEveryStyle(t *testing.T) {
	cfg := testConfig(t)
	model := transformer.NewModel(cfg.Model, 3, utils.NewRand(1))
	vocab := params.NewVocabulary([]string{"C2", "D2", "G4"})
	gen := NewGenerator(model, vocab, utils.NewRand(2))

	for _, style := range append(params.Styles, "unknown") {
		for _, bars := range []int{1, 3} {
			tokens, err := gen.Generate(style, bars)
			require.NoError(t, err)
			assert.Len(t, tokens, bars*16, style)
		}
	}
	assert.Equal(t, 0, gen.SeedToken("da_funk"))
	assert.Equal(t, 1, gen.SeedToken("around_world"))
	// F2 missing: falls back to token 0
	assert.Equal(t, 0, gen.SeedToken("harder_better"))
}

func TestTrainerReductionIndependentOfWorkers(t *testing.T) {
	stream := make([]int, 100)
	for i := range stream {
		stream[i] = i % 3
	}
	vocab := params.NewVocabulary([]string{"C4", "E4", "G4"})

	losses := make([][]float64, 0, 2)
	for _, workers := range []int{1, 3} {
		cfg := testConfig(t)
		cfg.Training.Workers = workers
		res, err := NewTrainer(cfg, nil).Train(context.Background(), vocab, stream)
		require.NoError(t, err)
		losses = append(losses, res.EpochLosses)
	}
	require.Len(t, losses[0], 1)
	assert.InDeltaSlice(t, losses[0], losses[1], 1e-6)
}

func TestTrainWithoutMaterial(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg, "short.mid", 80) // 16 windows at L=64

	_, err := New(cfg, nil).Run(context.Background(), Request{Mode: ModeTrain, Style: "da_funk", Tempo: 120})
	assert.ErrorIs(t, err, ErrNoMaterial)
	assert.ErrorIs(t, err, IO.ErrInsufficientData)
}

func TestTrainEmptyCorpus(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, nil).Train(context.Background())
	assert.ErrorIs(t, err, IO.ErrEmptyCorpus)
}

func TestGenerateWithoutCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, nil).Run(context.Background(), Request{Mode: ModeGenerate, Style: "da_funk", Tempo: 120, Bars: 1})
	assert.ErrorIs(t, err, transformer.ErrCheckpointMissing)
}

func TestPatternMode(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	res, err := New(cfg, &out).Run(context.Background(), Request{Mode: ModePattern, Style: "da_funk", Tempo: 128, Bars: 2})
	require.NoError(t, err)
	path := res.Path
	assert.Equal(t, filepath.Join(cfg.MIDIsDir(), "pattern_da_funk.mid"), path)
	assert.True(t, strings.HasPrefix(out.String(), "[RIFF] Wrote "))

	elems, err := IO.SMFParser{}.Parse(path)
	require.NoError(t, err)
	assert.Len(t, elems, 20)
	assert.Equal(t, "C2", elems[0].Canonical())
}

func TestQuickMode(t *testing.T) {
	cfg := testConfig(t)
	res, err := New(cfg, nil).Run(context.Background(), Request{Mode: ModeQuick, Style: "harder_better", Tempo: 100, Bars: 1})
	require.NoError(t, err)
	path := res.Path
	assert.Equal(t, filepath.Join(cfg.MIDIsDir(), "quick_harder_better.mid"), path)

	elems, err := IO.SMFParser{}.Parse(path)
	require.NoError(t, err)
	assert.Len(t, elems, 16)
}

func TestRunRejectsBadRequests(t *testing.T) {
	p := New(testConfig(t), nil)
	_, err := p.Run(context.Background(), Request{Mode: "remix", Tempo: 120, Bars: 1})
	assert.ErrorIs(t, err, ErrUnknownMode)
	_, err = p.Run(context.Background(), Request{Mode: ModeQuick, Tempo: 0, Bars: 1})
	assert.Error(t, err)
	_, err = p.Run(context.Background(), Request{Mode: ModePattern, Tempo: 120, Bars: 0})
	assert.Error(t, err)

	m, err := ParseMode("generate")
	require.NoError(t, err)
	assert.Equal(t, ModeGenerate, m)
}

func TestTrainHonoursCancellation(t *testing.T) {
	cfg := testConfig(t)
	stream := make([]int, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTrainer(cfg, nil).Train(ctx, params.NewVocabulary([]string{"C4"}), stream)
	assert.ErrorIs(t, err, context.Canceled)
}

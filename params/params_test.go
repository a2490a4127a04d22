package params

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesPipelineSizes(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 256, cfg.Model.DModel)
	assert.Equal(t, 8, cfg.Model.NumHeads)
	assert.Equal(t, 6, cfg.Model.Layers)
	assert.Equal(t, 1024, cfg.Model.HiddenSize)
	assert.Equal(t, 64, cfg.Model.SeqLen)
	assert.Equal(t, 64, cfg.Training.BatchSize)
	assert.Equal(t, 50, cfg.Training.Epochs)
	assert.InDelta(t, 5e-4, cfg.Training.LearningRate, 1e-12)
	assert.InDelta(t, 1.0, cfg.Training.GradClip, 1e-12)
	assert.Equal(t, 32, cfg.Training.MinWindows)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RIFFGPT_HOME", dir)
	t.Setenv("RIFFGPT_EPOCHS", "3")
	t.Setenv("RIFFGPT_SEED", "42")
	t.Setenv("RIFFGPT_OFFLINE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.BaseDir)
	assert.Equal(t, 3, cfg.Training.Epochs)
	assert.Equal(t, uint64(42), cfg.Training.Seed)
	assert.True(t, cfg.Offline)
	assert.Equal(t, filepath.Join(dir, "Models", "transformer.gob"), cfg.CheckpointPath())
	assert.Equal(t, filepath.Join(dir, "MIDIs"), cfg.MIDIsDir())
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("RIFFGPT_EPOCHS", "many")
	_, err := Load()
	require.Error(t, err)
}

func TestVocabularyBijection(t *testing.T) {
	v := NewVocabulary([]string{"C4", "E4", "G4"})
	assert.Equal(t, 3, v.Size())
	for i, tok := range v.IDToToken {
		id, ok := v.Lookup(tok)
		require.True(t, ok)
		assert.Equal(t, i, id)
	}
	assert.Equal(t, []string{"G4", "C4"}, v.Decode([]int{2, 0}))
	assert.Equal(t, "", v.Token(7))
}

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	s.Style = "harder_better"
	s.Tempo = 110
	s.Bars = 4
	require.NoError(t, s.Save(path))

	got, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
	assert.True(t, IsStyle(got.Style))
	assert.False(t, IsStyle("polka"))
}

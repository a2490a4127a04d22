package transformer

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/riffgpt/params"
	"github.com/manningwu07/riffgpt/utils"
)

// ErrCheckpointMissing is returned when no usable checkpoint exists.
var ErrCheckpointMissing = errors.New("checkpoint missing")

type paramData struct {
	Rows, Cols int
	Data       []float64
}

// Checkpoint bundles trained weights with the vocabulary and sequence
// length needed to use them. It is written once per training run.
type Checkpoint struct {
	RunID     string
	CreatedAt time.Time

	Model          params.ModelConfig
	VocabSize      int
	SequenceLength int

	TokenToID map[string]int
	IDToToken []string

	Params []paramData
}

func NewCheckpoint(m *Model, vocab params.Vocabulary) Checkpoint {
	ps := m.Params()
	data := make([]paramData, len(ps))
	for i, p := range ps {
		r, c := p.Dims()
		data[i] = paramData{Rows: r, Cols: c, Data: append([]float64(nil), mat.DenseCopyOf(p).RawMatrix().Data...)}
	}
	return Checkpoint{
		RunID:          uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		Model:          m.Config,
		VocabSize:      m.VocabSize,
		SequenceLength: m.Config.SeqLen,
		TokenToID:      vocab.TokenToID,
		IDToToken:      vocab.IDToToken,
		Params:         data,
	}
}

func (c Checkpoint) Vocabulary() params.Vocabulary {
	return params.Vocabulary{TokenToID: c.TokenToID, IDToToken: c.IDToToken}
}

// Restore rebuilds the model the checkpoint was taken from.
func (c Checkpoint) Restore() (*Model, error) {
	cfg := c.Model
	cfg.SeqLen = c.SequenceLength
	m := NewModel(cfg, c.VocabSize, utils.NewRand(0))
	ps := m.Params()
	if len(ps) != len(c.Params) {
		return nil, fmt.Errorf("checkpoint has %d parameters, model expects %d", len(c.Params), len(ps))
	}
	for i, p := range ps {
		r, cols := p.Dims()
		pd := c.Params[i]
		if pd.Rows != r || pd.Cols != cols || len(pd.Data) != r*cols {
			return nil, fmt.Errorf("parameter %d: shape (%d x %d), want (%d x %d)", i, pd.Rows, pd.Cols, r, cols)
		}
		copy(p.RawMatrix().Data, pd.Data)
	}
	return m, nil
}

// SaveCheckpoint replaces path atomically: the gob is written to a
// temporary file in the same directory and renamed over the target.
func SaveCheckpoint(path string, c Checkpoint) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = gob.NewEncoder(tmp).Encode(c); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint; any failure wraps ErrCheckpointMissing.
func LoadCheckpoint(path string) (Checkpoint, error) {
	var c Checkpoint
	f, err := os.Open(path)
	if err != nil {
		return c, fmt.Errorf("%w: %w", ErrCheckpointMissing, err)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&c); err != nil {
		return c, fmt.Errorf("%w: decode %s: %w", ErrCheckpointMissing, path, err)
	}
	if len(c.IDToToken) == 0 || c.SequenceLength <= 0 {
		return c, fmt.Errorf("%w: %s has no vocabulary", ErrCheckpointMissing, path)
	}
	return c, nil
}

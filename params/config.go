package params

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// ModelConfig holds the transformer dimensions.
type ModelConfig struct {
	DModel     int // model width
	HiddenSize int // feed-forward width
	NumHeads   int // attention heads, dHead = DModel/NumHeads
	Layers     int // encoder blocks
	SeqLen     int // context length (window length L)
}

type TrainingConfig struct {
	Epochs       int
	BatchSize    int // windows per minibatch
	LearningRate float64
	AdamBeta1    float64
	AdamBeta2    float64
	AdamEps      float64
	WeightDecay  float64 // 0 disables
	GradClip     float64 // global grad-norm ceiling, <=0 disables
	MinWindows   int     // minimum-viable training set
	Workers      int     // goroutines computing minibatch grads
	Seed         uint64  // init + shuffle seed
}

// Config is passed explicitly to every component. Nothing in this module
// reads configuration from package state.
type Config struct {
	Model    ModelConfig
	Training TrainingConfig

	BaseDir          string // corpus, models and output live below this
	CheckpointName   string
	DownloadAttempts int
	Offline          bool // skip corpus downloads

	Environment string
	SentryDSN   string
}

// Default mirrors the sizes the pipeline was designed around.
func Default() Config {
	return Config{
		Model: ModelConfig{
			DModel:     256,
			HiddenSize: 1024,
			NumHeads:   8,
			Layers:     6,
			SeqLen:     64,
		},
		Training: TrainingConfig{
			Epochs:       50,
			BatchSize:    64,
			LearningRate: 5e-4,
			AdamBeta1:    0.9,
			AdamBeta2:    0.999,
			AdamEps:      1e-8,
			WeightDecay:  0,
			GradClip:     1.0,
			MinWindows:   32,
			Workers:      runtime.GOMAXPROCS(0),
			Seed:         1,
		},
		BaseDir:          defaultBaseDir(),
		CheckpointName:   "transformer.gob",
		DownloadAttempts: 5,
		Environment:      "development",
	}
}

// Load returns Default with environment overrides applied. Call
// godotenv.Load before this if a .env file should be honoured.
func Load() (Config, error) {
	cfg := Default()
	cfg.BaseDir = getEnv("RIFFGPT_HOME", cfg.BaseDir)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.SentryDSN = getEnv("SENTRY_DSN", "")
	cfg.Offline = getEnv("RIFFGPT_OFFLINE", "false") == "true"

	var err error
	if cfg.Training.Epochs, err = getEnvInt("RIFFGPT_EPOCHS", cfg.Training.Epochs); err != nil {
		return cfg, err
	}
	if cfg.Training.BatchSize, err = getEnvInt("RIFFGPT_BATCH_SIZE", cfg.Training.BatchSize); err != nil {
		return cfg, err
	}
	if cfg.Training.Workers, err = getEnvInt("RIFFGPT_WORKERS", cfg.Training.Workers); err != nil {
		return cfg, err
	}
	if cfg.Model.SeqLen, err = getEnvInt("RIFFGPT_SEQ_LEN", cfg.Model.SeqLen); err != nil {
		return cfg, err
	}
	if cfg.DownloadAttempts, err = getEnvInt("RIFFGPT_DOWNLOAD_ATTEMPTS", cfg.DownloadAttempts); err != nil {
		return cfg, err
	}
	if s := os.Getenv("RIFFGPT_SEED"); s != "" {
		seed, perr := strconv.ParseUint(s, 10, 64)
		if perr != nil {
			return cfg, fmt.Errorf("RIFFGPT_SEED: %w", perr)
		}
		cfg.Training.Seed = seed
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	m := c.Model
	if m.DModel <= 0 || m.HiddenSize <= 0 || m.Layers <= 0 || m.SeqLen <= 0 {
		return errors.New("model dimensions must be positive")
	}
	if c.Training.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	if c.Training.Epochs < 0 {
		return errors.New("epochs must not be negative")
	}
	if c.DownloadAttempts <= 0 {
		return errors.New("download attempts must be positive")
	}
	return nil
}

func (c Config) MIDIsDir() string       { return filepath.Join(c.BaseDir, "MIDIs") }
func (c Config) CorpusDir() string      { return filepath.Join(c.MIDIsDir(), "corpus") }
func (c Config) ModelsDir() string      { return filepath.Join(c.BaseDir, "Models") }
func (c Config) CheckpointPath() string { return filepath.Join(c.ModelsDir(), c.CheckpointName) }

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "RiffGPT"
	}
	return filepath.Join(home, "RiffGPT")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

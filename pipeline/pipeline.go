package pipeline

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"

	"github.com/manningwu07/riffgpt/IO"
	"github.com/manningwu07/riffgpt/logger"
	"github.com/manningwu07/riffgpt/music"
	"github.com/manningwu07/riffgpt/params"
	"github.com/manningwu07/riffgpt/pattern"
	"github.com/manningwu07/riffgpt/transformer"
	"github.com/manningwu07/riffgpt/utils"
)

type Mode string

const (
	ModeTrain    Mode = "train"
	ModeGenerate Mode = "generate"
	ModePattern  Mode = "pattern"
	ModeQuick    Mode = "quick"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeTrain, ModeGenerate, ModePattern, ModeQuick:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Request is one invocation from the control layer.
type Request struct {
	Mode  Mode
	Style string
	Tempo int // BPM
	Bars  int
}

func (r Request) validate() error {
	if r.Tempo <= 0 {
		return fmt.Errorf("tempo must be positive, got %d", r.Tempo)
	}
	if r.Bars <= 0 && r.Mode != ModeTrain {
		return fmt.Errorf("bars must be positive, got %d", r.Bars)
	}
	return nil
}

// Pipeline wires ingestion, training and the generators to the output
// directory. Progress lines go to Progress.
type Pipeline struct {
	Config   params.Config
	Parser   IO.MusicDocumentParser
	Fetcher  *IO.Fetcher
	Sources  []IO.Source
	Renderer IO.Renderer
	Progress io.Writer
	Rand     *rand.Rand
}

func New(cfg params.Config, progress io.Writer) *Pipeline {
	if progress == nil {
		progress = io.Discard
	}
	return &Pipeline{
		Config:   cfg,
		Parser:   IO.SMFParser{},
		Fetcher:  IO.NewFetcher(cfg.CorpusDir(), cfg.DownloadAttempts),
		Sources:  IO.DefaultSources,
		Renderer: IO.NewRenderer(),
		Progress: progress,
		Rand:     utils.NewRand(cfg.Training.Seed),
	}
}

// Result describes what one Run produced.
type Result struct {
	Path        string    // checkpoint or MIDI file written
	EpochLosses []float64 // train mode only
}

// Run executes req.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	res, err := p.run(ctx, req)
	if err != nil {
		logger.Error("pipeline run failed", err, logger.Fields{"mode": string(req.Mode), "style": req.Style})
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, req Request) (Result, error) {
	if _, err := ParseMode(string(req.Mode)); err != nil {
		return Result{}, err
	}
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	var path string
	var err error
	switch req.Mode {
	case ModeTrain:
		return p.Train(ctx)
	case ModeGenerate:
		path, err = p.Generate(req)
	case ModePattern:
		path, err = p.Pattern(req)
	default:
		path, err = p.Quick(req)
	}
	return Result{Path: path}, err
}

// Ingest makes sure the corpus is present, parses it and builds the
// vocabulary and token stream.
func (p *Pipeline) Ingest(ctx context.Context) (params.Vocabulary, []int, error) {
	if !p.Config.Offline {
		if err := p.Fetcher.Fetch(ctx, p.Sources); err != nil {
			return params.Vocabulary{}, nil, err
		}
	}
	files, err := IO.CorpusFiles(p.Config.CorpusDir())
	if err != nil {
		return params.Vocabulary{}, nil, err
	}
	results := IO.ParseAll(p.Parser, files)
	docs := IO.Documents(results)
	logger.Info("corpus parsed", logger.Fields{"documents": len(docs), "skipped": len(results) - len(docs)})

	return IO.BuildVocabulary(docs)
}

// Train ingests, trains and replaces the checkpoint.
func (p *Pipeline) Train(ctx context.Context) (Result, error) {
	vocab, stream, err := p.Ingest(ctx)
	if err != nil {
		return Result{}, err
	}
	res, err := NewTrainer(p.Config, p.Progress).Train(ctx, vocab, stream)
	if err != nil {
		return Result{}, err
	}
	path := p.Config.CheckpointPath()
	if err := transformer.SaveCheckpoint(path, res.Checkpoint); err != nil {
		return Result{}, err
	}
	fmt.Fprintf(p.Progress, "[MODEL] Saved transformer to %s\n", path)
	fmt.Fprintf(p.Progress, "[DONE] Model trained: %s\n", path)
	return Result{Path: path, EpochLosses: res.EpochLosses}, nil
}

func (p *Pipeline) Generate(req Request) (string, error) {
	gen, err := LoadGenerator(p.Config.CheckpointPath(), p.Rand)
	if err != nil {
		return "", err
	}
	tokens, err := gen.Generate(req.Style, req.Bars)
	if err != nil {
		return "", err
	}
	track, err := p.Renderer.Tokens(tokens, gen.Vocabulary(), req.Tempo)
	if err != nil {
		return "", err
	}
	return p.write(OutputName(ModeGenerate, req.Style), track)
}

func (p *Pipeline) Pattern(req Request) (string, error) {
	s := pattern.NewGenerator(p.Rand).Compose(req.Style, req.Bars)
	track, err := p.Renderer.Streams(s.Pitches, s.Velocities, s.Gate, req.Tempo)
	if err != nil {
		return "", err
	}
	return p.write(OutputName(ModePattern, req.Style), track)
}

func (p *Pipeline) Quick(req Request) (string, error) {
	track := pattern.NewGenerator(p.Rand).Quick(req.Style, req.Tempo, req.Bars)
	return p.write(OutputName(ModeQuick, req.Style), track)
}

// OutputName is the file name a mode writes for style.
func OutputName(mode Mode, style string) string {
	prefix := map[Mode]string{ModeGenerate: "model", ModePattern: "pattern", ModeQuick: "quick"}[mode]
	return fmt.Sprintf("%s_%s.mid", prefix, style)
}

func (p *Pipeline) write(name string, track music.Track) (string, error) {
	track.Name = name
	path := filepath.Join(p.Config.MIDIsDir(), name)
	if err := p.Renderer.WriteFile(path, track); err != nil {
		return "", err
	}
	logger.Info("riff rendered", logger.Fields{"file": name, "events": len(track.Events), "beats": track.Length()})
	fmt.Fprintf(p.Progress, "[RIFF] Wrote %s\n", path)
	return path, nil
}

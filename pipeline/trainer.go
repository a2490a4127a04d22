package pipeline

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/manningwu07/riffgpt/IO"
	"github.com/manningwu07/riffgpt/logger"
	"github.com/manningwu07/riffgpt/optimizations"
	"github.com/manningwu07/riffgpt/params"
	"github.com/manningwu07/riffgpt/transformer"
	"github.com/manningwu07/riffgpt/utils"
)

// Trainer fits a fresh model to the windows of one token stream.
type Trainer struct {
	cfg      params.Config
	rng      *rand.Rand
	progress io.Writer
}

func NewTrainer(cfg params.Config, progress io.Writer) *Trainer {
	if progress == nil {
		progress = io.Discard
	}
	return &Trainer{cfg: cfg, rng: utils.NewRand(cfg.Training.Seed), progress: progress}
}

// TrainResult is what a completed run produced.
type TrainResult struct {
	Model       *transformer.Model
	Checkpoint  transformer.Checkpoint
	EpochLosses []float64
}

// Train windows the stream, trains for the configured epochs and returns the
// model with its checkpoint. Persisting is left to the caller.
func (t *Trainer) Train(ctx context.Context, vocab params.Vocabulary, stream []int) (TrainResult, error) {
	windows, err := IO.NewWindower(t.cfg).Build(stream)
	if err != nil {
		return TrainResult{}, fmt.Errorf("%w: %w", ErrNoMaterial, err)
	}
	model := transformer.NewModel(t.cfg.Model, vocab.Size(), t.rng)
	logger.Info("training started", logger.Fields{
		"mode":    "train",
		"vocab":   vocab.Size(),
		"windows": len(windows),
		"epochs":  t.cfg.Training.Epochs,
		"workers": t.workers(),
	})

	losses, err := t.Fit(ctx, model, windows)
	if err != nil {
		return TrainResult{}, err
	}
	return TrainResult{Model: model, Checkpoint: transformer.NewCheckpoint(model, vocab), EpochLosses: losses}, nil
}

// Fit runs the epoch loop and returns the mean minibatch loss of each epoch.
func (t *Trainer) Fit(ctx context.Context, model *transformer.Model, windows []IO.Window) ([]float64, error) {
	tc := t.cfg.Training
	opt := optimizations.NewAdam(tc, model.Params())
	epochLosses := make([]float64, 0, tc.Epochs)

	for e := 1; e <= tc.Epochs; e++ {
		start := time.Now()
		order := t.rng.Perm(len(windows))
		batchLosses := make([]float64, 0, (len(order)+tc.BatchSize-1)/tc.BatchSize)

		for lo := 0; lo < len(order); lo += tc.BatchSize {
			if err := ctx.Err(); err != nil {
				return epochLosses, err
			}
			hi := min(lo+tc.BatchSize, len(order))
			batch := make([]IO.Window, 0, hi-lo)
			for _, idx := range order[lo:hi] {
				batch = append(batch, windows[idx])
			}

			loss, grads, err := t.batchGrads(ctx, model, batch)
			if err != nil {
				return epochLosses, err
			}
			utils.ClipGrads(tc.GradClip, grads...)
			opt.Step(model.Params(), grads)
			batchLosses = append(batchLosses, loss)
		}

		mean := stat.Mean(batchLosses, nil)
		epochLosses = append(epochLosses, mean)
		fmt.Fprintf(t.progress, "[TRAIN] Epoch %02d/%d | Loss %.4f\n", e, tc.Epochs, mean)
		logger.Debug("epoch finished", logger.Fields{"epoch": e, "loss": mean, "elapsed": time.Since(start).String()})
	}
	return epochLosses, nil
}

func (t *Trainer) workers() int {
	return max(t.cfg.Training.Workers, 1)
}

// batchGrads returns the mean cross-entropy over every position of the
// batch and its gradient. Windows are split into contiguous chunks, one per
// worker, and worker sums are reduced in chunk order so results do not
// depend on scheduling.
func (t *Trainer) batchGrads(ctx context.Context, model *transformer.Model, batch []IO.Window) (float64, []*mat.Dense, error) {
	nw := min(t.workers(), len(batch))
	positions := 0
	for _, w := range batch {
		positions += len(w.Target())
	}
	scale := 1.0 / float64(positions)

	sums := make([][]*mat.Dense, nw)
	losses := make([]float64, nw)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < nw; w++ {
		lo, hi := w*len(batch)/nw, (w+1)*len(batch)/nw
		g.Go(func() error {
			clone := model.CloneForGradsOnly()
			var acc []*mat.Dense
			for _, win := range batch[lo:hi] {
				if err := gctx.Err(); err != nil {
					return err
				}
				logits, err := clone.Forward(win.Input())
				if err != nil {
					return err
				}
				loss, dLogits := utils.CrossEntropyColumns(logits, win.Target(), scale)
				grads := clone.BackwardGradsOnly(dLogits)
				if acc == nil {
					acc = grads
				} else {
					utils.AccumulateInto(acc, grads)
				}
				losses[w] += loss
			}
			sums[w] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	total := sums[0]
	loss := losses[0]
	for w := 1; w < nw; w++ {
		utils.AccumulateInto(total, sums[w])
		loss += losses[w]
	}
	return loss * scale, total, nil
}

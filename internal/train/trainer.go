// Package train runs the training loop: epochs of shuffled mini-batches,
// Adam updates, per-epoch held-out evaluation, and loss/accuracy curve
// plotting. Persistence is behind a small recorder interface so the loop can
// run with or without a run store.
package train

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/pointnet/internal/dataset"
	"github.com/banshee-data/pointnet/internal/monitoring"
	"github.com/banshee-data/pointnet/internal/nn"
	"github.com/banshee-data/pointnet/internal/timeutil"
)

// EpochStats summarizes one epoch of training.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	TrainAcc  float64
	ValLoss   float64
	ValAcc    float64
	Duration  time.Duration
}

// RunRecorder persists per-epoch statistics. *runstore.DB implements it.
type RunRecorder interface {
	RecordEpoch(runID string, stats EpochStats) error
}

// Options configures a training run.
type Options struct {
	Epochs   int
	RunID    string      // run identifier passed to the recorder
	Recorder RunRecorder // optional; nil disables persistence

	// Snapshot, when set, is called after any epoch whose validation
	// accuracy beats every earlier epoch's, so the caller can keep the
	// best model seen rather than the last.
	Snapshot func(epoch int) error
}

// Trainer couples a model with its optimizer.
type Trainer struct {
	Model  *nn.PointNet
	Opt    *nn.Adam
	Clock  timeutil.Clock // wall clock for epoch timings; swap for a fake in tests
	params []*nn.Param
}

// New creates a trainer for model using opt.
func New(model *nn.PointNet, opt *nn.Adam) *Trainer {
	return &Trainer{Model: model, Opt: opt, Clock: timeutil.RealClock{}, params: model.Params()}
}

// Run trains for opts.Epochs epochs, evaluating on val (which may be nil)
// after each. It returns per-epoch statistics; ctx cancellation stops
// training between batches and returns the stats gathered so far along with
// the context error.
func (t *Trainer) Run(ctx context.Context, train, val *dataset.Batcher, opts Options) ([]EpochStats, error) {
	if opts.Epochs <= 0 {
		return nil, fmt.Errorf("epoch count must be positive, got %d", opts.Epochs)
	}

	stats := make([]EpochStats, 0, opts.Epochs)
	bestValAcc := math.Inf(-1)
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		start := t.Clock.Now()

		trainLoss, trainAcc, err := t.trainEpoch(ctx, train)
		if err != nil {
			return stats, err
		}

		es := EpochStats{
			Epoch:     epoch,
			TrainLoss: trainLoss,
			TrainAcc:  trainAcc,
			Duration:  t.Clock.Since(start),
		}

		if val != nil {
			valLoss, valAcc, _, err := Evaluate(t.Model, val)
			if err != nil {
				return stats, fmt.Errorf("epoch %d evaluation: %w", epoch, err)
			}
			es.ValLoss = valLoss
			es.ValAcc = valAcc
			monitoring.Logf("epoch %d/%d: loss=%.4f acc=%.3f val_loss=%.4f val_acc=%.3f (%s)",
				epoch, opts.Epochs, trainLoss, trainAcc, valLoss, valAcc, es.Duration.Round(time.Millisecond))
			if valAcc > bestValAcc {
				bestValAcc = valAcc
				if opts.Snapshot != nil {
					if err := opts.Snapshot(epoch); err != nil {
						return stats, fmt.Errorf("snapshot epoch %d: %w", epoch, err)
					}
				}
			}
		} else {
			monitoring.Logf("epoch %d/%d: loss=%.4f acc=%.3f (%s)",
				epoch, opts.Epochs, trainLoss, trainAcc, es.Duration.Round(time.Millisecond))
		}

		stats = append(stats, es)
		if opts.Recorder != nil {
			if err := opts.Recorder.RecordEpoch(opts.RunID, es); err != nil {
				return stats, fmt.Errorf("record epoch %d: %w", epoch, err)
			}
		}
	}
	return stats, nil
}

// trainEpoch runs one pass over the training batcher and returns the mean
// batch loss (including the orthogonality penalty) and accuracy.
func (t *Trainer) trainEpoch(ctx context.Context, train *dataset.Batcher) (loss, acc float64, err error) {
	train.Reset()

	var sce nn.SoftmaxCrossEntropy
	totalLoss := 0.0
	correct, seen, batches := 0, 0, 0

	for {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		batch, ok := train.Next()
		if !ok {
			break
		}

		logits, penalty := t.Model.Forward(batch.X, batch.Size, batch.NumPoints, true)
		batchLoss := sce.Forward(logits, batch.Labels) + penalty

		nn.ZeroGrads(t.params)
		t.Model.Backward(sce.Backward())
		t.Opt.Step(t.params)

		totalLoss += batchLoss
		for i, pred := range nn.Argmax(sce.Probs()) {
			if pred == batch.Labels[i] {
				correct++
			}
		}
		seen += batch.Size
		batches++
	}

	if batches == 0 {
		return 0, 0, fmt.Errorf("training batcher yielded no batches")
	}
	return totalLoss / float64(batches), float64(correct) / float64(seen), nil
}

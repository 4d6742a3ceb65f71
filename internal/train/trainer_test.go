package train

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/pointnet/internal/dataset"
	"github.com/banshee-data/pointnet/internal/monitoring"
	"github.com/banshee-data/pointnet/internal/nn"
	"github.com/banshee-data/pointnet/internal/pointcloud"
)

func init() {
	monitoring.SetLogger(nil) // keep test output quiet
}

// syntheticExamples builds two easily separable classes: compact blobs at
// the origin and blobs offset along x.
func syntheticExamples(n, points int, rng *rand.Rand) []dataset.LoadedExample {
	out := make([]dataset.LoadedExample, n)
	for i := range out {
		label := i % 2
		shift := float32(0)
		if label == 1 {
			shift = 1.5
		}
		cloud := make(pointcloud.Cloud, points)
		for j := range cloud {
			cloud[j] = pointcloud.Point{
				X: float32(rng.NormFloat64())*0.1 + shift,
				Y: float32(rng.NormFloat64()) * 0.1,
				Z: float32(rng.NormFloat64()) * 0.1,
			}
		}
		out[i] = dataset.LoadedExample{Cloud: cloud, Label: label}
	}
	return out
}

type recordingStore struct {
	runIDs []string
	epochs []EpochStats
}

func (r *recordingStore) RecordEpoch(runID string, stats EpochStats) error {
	r.runIDs = append(r.runIDs, runID)
	r.epochs = append(r.epochs, stats)
	return nil
}

func newTestTrainer(rng *rand.Rand) *Trainer {
	model := nn.NewPointNet(nn.Config{NumClasses: 2, Dropout: 0, OrthoCoef: 0.001}, rng)
	return New(model, nn.NewAdam(0.005))
}

func TestTrainer_Run(t *testing.T) {
	if testing.Short() {
		t.Skip("training loop test")
	}
	rng := rand.New(rand.NewSource(30))
	examples := syntheticExamples(16, 12, rng)

	trainB, err := dataset.NewBatcher(examples[:12], 4, true, 0.002, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}
	valB, err := dataset.NewBatcher(examples[12:], 4, false, 0, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	store := &recordingStore{}
	tr := newTestTrainer(rng)
	stats, err := tr.Run(context.Background(), trainB, valB, Options{
		Epochs:   3,
		RunID:    "run-1",
		Recorder: store,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(stats) != 3 {
		t.Fatalf("expected 3 epochs of stats, got %d", len(stats))
	}
	if len(store.epochs) != 3 {
		t.Errorf("recorder saw %d epochs, expected 3", len(store.epochs))
	}
	for _, id := range store.runIDs {
		if id != "run-1" {
			t.Errorf("recorder got run id %q", id)
		}
	}
	if stats[len(stats)-1].TrainLoss >= stats[0].TrainLoss {
		t.Errorf("loss did not decrease: %f -> %f", stats[0].TrainLoss, stats[len(stats)-1].TrainLoss)
	}
}

func TestTrainer_ContextCancellation(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	examples := syntheticExamples(8, 8, rng)
	trainB, err := dataset.NewBatcher(examples, 4, true, 0, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := newTestTrainer(rng)
	if _, err := tr.Run(ctx, trainB, nil, Options{Epochs: 2}); err == nil {
		t.Error("expected context error")
	}
}

func TestTrainer_InvalidEpochs(t *testing.T) {
	rng := rand.New(rand.NewSource(32))
	tr := newTestTrainer(rng)
	if _, err := tr.Run(context.Background(), nil, nil, Options{Epochs: 0}); err == nil {
		t.Error("expected error for zero epochs")
	}
}

func TestEvaluate_ConfusionMatrix(t *testing.T) {
	rng := rand.New(rand.NewSource(33))
	examples := syntheticExamples(8, 8, rng)
	b, err := dataset.NewBatcher(examples, 4, false, 0, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	model := nn.NewPointNet(nn.Config{NumClasses: 2, Dropout: 0, OrthoCoef: 0.001}, rng)
	loss, acc, cm, err := Evaluate(model, b)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if loss <= 0 {
		t.Errorf("loss %f, expected positive", loss)
	}
	if acc < 0 || acc > 1 {
		t.Errorf("accuracy %f out of range", acc)
	}
	if got := cm.Total(); got != 8 {
		t.Errorf("confusion matrix recorded %d predictions, expected 8", got)
	}
}

func TestWriteCurvePlots(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	stats := []EpochStats{
		{Epoch: 1, TrainLoss: 2.0, TrainAcc: 0.2, ValLoss: 2.1, ValAcc: 0.15},
		{Epoch: 2, TrainLoss: 1.2, TrainAcc: 0.5, ValLoss: 1.4, ValAcc: 0.45},
		{Epoch: 3, TrainLoss: 0.7, TrainAcc: 0.8, ValLoss: 1.0, ValAcc: 0.7},
	}
	if err := WriteCurvePlots(dir, stats); err != nil {
		t.Fatalf("WriteCurvePlots: %v", err)
	}

	for _, name := range []string{"loss.png", "accuracy.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("%s missing: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestWriteCurvePlots_NoStats(t *testing.T) {
	if err := WriteCurvePlots(t.TempDir(), nil); err == nil {
		t.Error("expected error for empty stats")
	}
}

// stepClock advances a fixed amount on every read, so each epoch appears to
// take exactly one step.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *stepClock) Since(t time.Time) time.Duration {
	c.now = c.now.Add(c.step)
	return c.now.Sub(t)
}

func TestTrainer_SnapshotTracksBestValAcc(t *testing.T) {
	if testing.Short() {
		t.Skip("training loop test")
	}
	rng := rand.New(rand.NewSource(34))
	examples := syntheticExamples(16, 12, rng)

	trainB, err := dataset.NewBatcher(examples[:12], 4, true, 0.002, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}
	valB, err := dataset.NewBatcher(examples[12:], 4, false, 0, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	var snapshots []int
	tr := newTestTrainer(rng)
	stats, err := tr.Run(context.Background(), trainB, valB, Options{
		Epochs: 4,
		Snapshot: func(epoch int) error {
			snapshots = append(snapshots, epoch)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(snapshots) == 0 || snapshots[0] != 1 {
		t.Fatalf("first epoch with validation must snapshot, got %v", snapshots)
	}

	// Each snapshot must mark a strict improvement over every earlier epoch.
	for _, epoch := range snapshots {
		for _, s := range stats[:epoch-1] {
			if s.ValAcc >= stats[epoch-1].ValAcc {
				t.Errorf("snapshot at epoch %d but epoch %d had val_acc %f >= %f",
					epoch, s.Epoch, s.ValAcc, stats[epoch-1].ValAcc)
			}
		}
	}

	// The last snapshot is the first epoch reaching the best accuracy.
	bestEpoch := 1
	for _, s := range stats {
		if s.ValAcc > stats[bestEpoch-1].ValAcc {
			bestEpoch = s.Epoch
		}
	}
	if got := snapshots[len(snapshots)-1]; got != bestEpoch {
		t.Errorf("last snapshot at epoch %d, best val_acc at epoch %d", got, bestEpoch)
	}
}

func TestTrainer_NoSnapshotWithoutValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(35))
	examples := syntheticExamples(8, 8, rng)
	trainB, err := dataset.NewBatcher(examples, 4, true, 0, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	called := 0
	tr := newTestTrainer(rng)
	if _, err := tr.Run(context.Background(), trainB, nil, Options{
		Epochs:   2,
		Snapshot: func(int) error { called++; return nil },
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if called != 0 {
		t.Errorf("snapshot called %d times without a validation set", called)
	}
}

func TestTrainer_EpochDurationUsesClock(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	examples := syntheticExamples(8, 12, rng)

	trainB, err := dataset.NewBatcher(examples, 4, true, 0.002, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	tr := newTestTrainer(rng)
	tr.Clock = &stepClock{now: time.Unix(0, 0), step: 7 * time.Second}

	stats, err := tr.Run(context.Background(), trainB, nil, Options{Epochs: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, s := range stats {
		if s.Duration != 7*time.Second {
			t.Errorf("epoch %d duration = %v, want 7s", s.Epoch, s.Duration)
		}
	}
}

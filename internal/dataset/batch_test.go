package dataset

import (
	"math/rand"
	"testing"

	"github.com/banshee-data/pointnet/internal/pointcloud"
)

// makeExamples builds n loaded examples of p points each with cycling labels.
func makeExamples(n, p, classes int, rng *rand.Rand) []LoadedExample {
	out := make([]LoadedExample, n)
	for i := range out {
		cloud := make(pointcloud.Cloud, p)
		for j := range cloud {
			cloud[j] = pointcloud.Point{
				X: float32(rng.NormFloat64()),
				Y: float32(rng.NormFloat64()),
				Z: float32(rng.NormFloat64()),
			}
		}
		out[i] = LoadedExample{Cloud: cloud, Label: i % classes}
	}
	return out
}

func TestBatcher_EvalKeepsPartialBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	examples := makeExamples(10, 8, 2, rng)
	b, err := NewBatcher(examples, 4, false, 0, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	if got := b.Batches(); got != 3 {
		t.Errorf("Batches() = %d, expected 3", got)
	}

	sizes := []int{}
	total := 0
	for {
		batch, ok := b.Next()
		if !ok {
			break
		}
		sizes = append(sizes, batch.Size)
		total += batch.Size

		rows, cols := batch.X.Dims()
		if rows != batch.Size*8 || cols != 3 {
			t.Fatalf("batch shape (%d,%d), expected (%d,3)", rows, cols, batch.Size*8)
		}
		if len(batch.Labels) != batch.Size {
			t.Fatalf("labels %d, expected %d", len(batch.Labels), batch.Size)
		}
	}
	if total != 10 {
		t.Errorf("eval iteration covered %d examples, expected 10", total)
	}
	if sizes[len(sizes)-1] != 2 {
		t.Errorf("trailing batch size %d, expected 2", sizes[len(sizes)-1])
	}
}

func TestBatcher_TrainDropsPartialBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	examples := makeExamples(10, 8, 2, rng)
	b, err := NewBatcher(examples, 4, true, 0.005, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	if got := b.Batches(); got != 2 {
		t.Errorf("Batches() = %d, expected 2", got)
	}
	count := 0
	for {
		batch, ok := b.Next()
		if !ok {
			break
		}
		if batch.Size != 4 {
			t.Errorf("training batch size %d, expected 4", batch.Size)
		}
		count++
	}
	if count != 2 {
		t.Errorf("training epoch yielded %d batches, expected 2", count)
	}
}

func TestBatcher_EvalOrderStable(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	examples := makeExamples(6, 4, 3, rng)
	b, err := NewBatcher(examples, 6, false, 0, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	first, _ := b.Next()
	b.Reset()
	second, _ := b.Next()
	for i := range first.Labels {
		if first.Labels[i] != second.Labels[i] {
			t.Fatalf("eval label order changed between epochs")
		}
	}
}

func TestBatcher_TrainReshuffles(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	examples := makeExamples(64, 4, 64, rng) // unique label per example
	b, err := NewBatcher(examples, 64, true, 0, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	first, _ := b.Next()
	b.Reset()
	second, _ := b.Next()

	same := true
	for i := range first.Labels {
		if first.Labels[i] != second.Labels[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("training order identical across epochs; expected a reshuffle")
	}
}

func TestBatcher_AugmentationDoesNotMutateOriginals(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	examples := makeExamples(4, 8, 2, rng)
	snapshot := make([]pointcloud.Cloud, len(examples))
	for i := range examples {
		snapshot[i] = examples[i].Cloud.Clone()
	}

	b, err := NewBatcher(examples, 4, true, 0.01, rng)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}
	if _, ok := b.Next(); !ok {
		t.Fatal("expected a batch")
	}

	for i := range examples {
		for j := range examples[i].Cloud {
			if examples[i].Cloud[j] != snapshot[i][j] {
				t.Fatalf("augmentation mutated source cloud %d", i)
			}
		}
	}
}

func TestNewBatcher_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	if _, err := NewBatcher(nil, 4, false, 0, rng); err == nil {
		t.Error("expected error for empty examples")
	}
	examples := makeExamples(2, 4, 2, rng)
	if _, err := NewBatcher(examples, 0, false, 0, rng); err == nil {
		t.Error("expected error for zero batch size")
	}
	// Mismatched point counts.
	examples[1].Cloud = examples[1].Cloud[:2]
	if _, err := NewBatcher(examples, 2, false, 0, rng); err == nil {
		t.Error("expected error for ragged point counts")
	}
}

package dataset

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Batch is one mini-batch ready for the network: Size clouds of NumPoints
// points each, stacked into a (Size*NumPoints, 3) matrix with row b*N+i
// holding point i of cloud b.
type Batch struct {
	X         *mat.Dense
	Labels    []int
	Size      int
	NumPoints int
}

// Batcher iterates a loaded split in mini-batches. In training mode (augment
// true) the example order is reshuffled every epoch, each cloud is jittered
// and its points shuffled, and undersized trailing batches are dropped
// (batch normalization needs more than one row). In evaluation mode the
// order is stable and the trailing partial batch is kept.
type Batcher struct {
	examples  []LoadedExample
	batchSize int
	numPoints int
	augment   bool
	jitterAmp float64
	rng       *rand.Rand

	perm []int
	pos  int
}

// NewBatcher creates a batcher over examples. All clouds must have the same
// point count.
func NewBatcher(examples []LoadedExample, batchSize int, augment bool, jitterAmp float64, rng *rand.Rand) (*Batcher, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("no examples to batch")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	numPoints := len(examples[0].Cloud)
	for i, ex := range examples {
		if len(ex.Cloud) != numPoints {
			return nil, fmt.Errorf("example %d has %d points, expected %d", i, len(ex.Cloud), numPoints)
		}
	}

	b := &Batcher{
		examples:  examples,
		batchSize: batchSize,
		numPoints: numPoints,
		augment:   augment,
		jitterAmp: jitterAmp,
		rng:       rng,
		perm:      make([]int, len(examples)),
	}
	for i := range b.perm {
		b.perm[i] = i
	}
	b.Reset()
	return b, nil
}

// Reset rewinds the iterator, reshuffling the order in training mode.
func (b *Batcher) Reset() {
	b.pos = 0
	if b.augment {
		b.rng.Shuffle(len(b.perm), func(i, j int) {
			b.perm[i], b.perm[j] = b.perm[j], b.perm[i]
		})
	}
}

// NumExamples returns the number of examples in the split.
func (b *Batcher) NumExamples() int {
	return len(b.examples)
}

// Batches returns the number of batches one epoch yields.
func (b *Batcher) Batches() int {
	full := len(b.examples) / b.batchSize
	if !b.augment && len(b.examples)%b.batchSize != 0 {
		return full + 1
	}
	return full
}

// Next yields the next batch, or ok=false when the epoch is exhausted.
func (b *Batcher) Next() (batch *Batch, ok bool) {
	remaining := len(b.examples) - b.pos
	if remaining <= 0 {
		return nil, false
	}
	size := b.batchSize
	if remaining < size {
		if b.augment || remaining < 1 {
			// Training drops the undersized tail.
			return nil, false
		}
		size = remaining
	}

	x := mat.NewDense(size*b.numPoints, 3, nil)
	labels := make([]int, size)

	for s := 0; s < size; s++ {
		ex := b.examples[b.perm[b.pos+s]]
		labels[s] = ex.Label

		cloud := ex.Cloud
		if b.augment {
			cloud = cloud.Clone()
			cloud.Jitter(b.rng, b.jitterAmp)
			cloud.Shuffle(b.rng)
		}
		base := s * b.numPoints
		for i, p := range cloud {
			x.Set(base+i, 0, float64(p.X))
			x.Set(base+i, 1, float64(p.Y))
			x.Set(base+i, 2, float64(p.Z))
		}
	}

	b.pos += size
	return &Batch{X: x, Labels: labels, Size: size, NumPoints: b.numPoints}, true
}

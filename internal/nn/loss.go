package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SoftmaxCrossEntropy computes softmax over logits and the mean negative
// log-likelihood of integer labels. Forward caches the probabilities so
// Backward can emit the combined softmax+NLL gradient directly.
type SoftmaxCrossEntropy struct {
	probs  *mat.Dense
	labels []int
}

// Forward returns the mean cross-entropy loss for a (B, C) logits matrix.
func (l *SoftmaxCrossEntropy) Forward(logits *mat.Dense, labels []int) float64 {
	b, c := logits.Dims()
	if len(labels) != b {
		panic("nn: label count does not match batch size")
	}

	l.probs = mat.NewDense(b, c, nil)
	l.labels = labels

	loss := 0.0
	for i := 0; i < b; i++ {
		// Shift by the row max for numerical stability.
		maxv := logits.At(i, 0)
		for j := 1; j < c; j++ {
			if v := logits.At(i, j); v > maxv {
				maxv = v
			}
		}
		sum := 0.0
		for j := 0; j < c; j++ {
			e := math.Exp(logits.At(i, j) - maxv)
			l.probs.Set(i, j, e)
			sum += e
		}
		for j := 0; j < c; j++ {
			l.probs.Set(i, j, l.probs.At(i, j)/sum)
		}
		loss -= math.Log(math.Max(l.probs.At(i, labels[i]), 1e-12))
	}
	return loss / float64(b)
}

// Probs returns the class probabilities from the last Forward.
func (l *SoftmaxCrossEntropy) Probs() *mat.Dense {
	return l.probs
}

// Backward returns dLoss/dLogits = (probs - onehot(labels)) / B.
func (l *SoftmaxCrossEntropy) Backward() *mat.Dense {
	b, c := l.probs.Dims()
	d := mat.NewDense(b, c, nil)
	inv := 1.0 / float64(b)
	for i := 0; i < b; i++ {
		for j := 0; j < c; j++ {
			g := l.probs.At(i, j)
			if j == l.labels[i] {
				g -= 1
			}
			d.Set(i, j, g*inv)
		}
	}
	return d
}

// Argmax returns the index of the largest value in each row of m.
func Argmax(m *mat.Dense) []int {
	rows, cols := m.Dims()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		best := m.At(i, 0)
		for j := 1; j < cols; j++ {
			if v := m.At(i, j); v > best {
				best = v
				out[i] = j
			}
		}
	}
	return out
}

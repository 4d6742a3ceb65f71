// Package nn implements the PointNet classifier: shared-MLP layers applied
// across points, batch normalization, global max pooling, learned alignment
// transforms (T-Nets) with an orthogonality penalty, and the Adam optimizer.
// The network graph is hand-wired: each layer implements a paired
// Forward/Backward, and PointNet composes them explicitly. All math rides on
// gonum matrices; batched per-point data is laid out as (B*N, C) matrices
// with the row index b*N+i addressing point i of sample b.
package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is a trainable weight matrix with its accumulated gradient. The
// optimizer walks a flat []*Param list; names are stable identifiers used by
// checkpoints.
type Param struct {
	Name string
	W    *mat.Dense
	Grad *mat.Dense
}

// NewParam allocates a zero-initialized parameter of shape r×c.
func NewParam(name string, r, c int) *Param {
	return &Param{
		Name: name,
		W:    mat.NewDense(r, c, nil),
		Grad: mat.NewDense(r, c, nil),
	}
}

// NewParamHe allocates a parameter with He-normal initialization, the usual
// choice ahead of ReLU activations: stddev = sqrt(2 / fanIn).
func NewParamHe(name string, fanIn, fanOut int, rng *rand.Rand) *Param {
	p := NewParam(name, fanIn, fanOut)
	std := math.Sqrt(2.0 / float64(fanIn))
	for i := 0; i < fanIn; i++ {
		for j := 0; j < fanOut; j++ {
			p.W.Set(i, j, rng.NormFloat64()*std)
		}
	}
	return p
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

// AddGrad accumulates g into the parameter gradient.
func (p *Param) AddGrad(g mat.Matrix) {
	p.Grad.Add(p.Grad, g)
}

// checkShape panics with a descriptive message when a matrix does not have
// the expected dimensions. Shape bugs in a hand-wired graph are programmer
// errors, not runtime conditions.
func checkShape(m mat.Matrix, r, c int, what string) {
	gr, gc := m.Dims()
	if gr != r || gc != c {
		panic(fmt.Sprintf("nn: %s has shape (%d,%d), expected (%d,%d)", what, gr, gc, r, c))
	}
}

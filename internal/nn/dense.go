package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected layer y = xW + b operating on (rows, In)
// matrices. Applied to a (B*N, C) matrix it acts as a shared MLP across
// points, the PointNet equivalent of a 1x1 convolution.
type Dense struct {
	In, Out int
	Weight  *Param
	Bias    *Param

	x *mat.Dense // input cached by Forward for the backward pass
}

// NewDense creates a Dense layer with He-initialized weights and zero bias.
func NewDense(name string, in, out int, rng *rand.Rand) *Dense {
	return &Dense{
		In:     in,
		Out:    out,
		Weight: NewParamHe(name+"/W", in, out, rng),
		Bias:   NewParam(name+"/b", 1, out),
	}
}

// NewDenseIdentity creates the final T-Net projection: zero weights and a
// bias holding the flattened identity, so an untrained T-Net emits identity
// transforms regardless of input.
func NewDenseIdentity(name string, in, k int) *Dense {
	d := &Dense{
		In:     in,
		Out:    k * k,
		Weight: NewParam(name+"/W", in, k*k),
		Bias:   NewParam(name+"/b", 1, k*k),
	}
	for i := 0; i < k; i++ {
		d.Bias.W.Set(0, i*k+i, 1)
	}
	return d
}

// Forward computes xW + b. The input is retained until Backward runs.
func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	checkShape(x, rows, d.In, "dense input")
	d.x = x

	y := mat.NewDense(rows, d.Out, nil)
	y.Mul(x, d.Weight.W)
	for i := 0; i < rows; i++ {
		for j := 0; j < d.Out; j++ {
			y.Set(i, j, y.At(i, j)+d.Bias.W.At(0, j))
		}
	}
	return y
}

// Backward accumulates parameter gradients from dy and returns dx.
func (d *Dense) Backward(dy *mat.Dense) *mat.Dense {
	rows, _ := dy.Dims()
	checkShape(dy, rows, d.Out, "dense output gradient")

	var dW mat.Dense
	dW.Mul(d.x.T(), dy)
	d.Weight.AddGrad(&dW)

	db := mat.NewDense(1, d.Out, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < d.Out; j++ {
			db.Set(0, j, db.At(0, j)+dy.At(i, j))
		}
	}
	d.Bias.AddGrad(db)

	dx := mat.NewDense(rows, d.In, nil)
	dx.Mul(dy, d.Weight.W.T())
	return dx
}

// Params returns the layer's trainable parameters.
func (d *Dense) Params() []*Param {
	return []*Param{d.Weight, d.Bias}
}

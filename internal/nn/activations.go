package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ReLU is the rectified linear activation, applied elementwise.
type ReLU struct {
	mask []bool // true where the input was positive
	cols int
}

// Forward zeroes negative entries and records which entries passed through.
func (r *ReLU) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	r.cols = cols
	r.mask = make([]bool, rows*cols)

	y := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := x.At(i, j)
			if v > 0 {
				y.Set(i, j, v)
				r.mask[i*cols+j] = true
			}
		}
	}
	return y
}

// Backward zeroes gradient entries where the forward input was non-positive.
func (r *ReLU) Backward(dy *mat.Dense) *mat.Dense {
	rows, cols := dy.Dims()
	dx := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if r.mask[i*cols+j] {
				dx.Set(i, j, dy.At(i, j))
			}
		}
	}
	return dx
}

// Dropout randomly zeroes activations during training, scaling the survivors
// by 1/(1-rate) so inference needs no correction (inverted dropout).
type Dropout struct {
	Rate float64
	rng  *rand.Rand
	keep []float64 // 0 or the survivor scale, per element
	used bool      // whether the last forward applied the mask
}

// NewDropout creates a dropout layer with the given drop rate.
func NewDropout(rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{Rate: rate, rng: rng}
}

// Forward applies the dropout mask in training mode and is the identity in
// inference mode.
func (d *Dropout) Forward(x *mat.Dense, train bool) *mat.Dense {
	if !train || d.Rate == 0 {
		d.used = false
		return x
	}
	rows, cols := x.Dims()
	d.used = true
	d.keep = make([]float64, rows*cols)
	scale := 1.0 / (1.0 - d.Rate)

	y := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if d.rng.Float64() >= d.Rate {
				d.keep[i*cols+j] = scale
				y.Set(i, j, x.At(i, j)*scale)
			}
		}
	}
	return y
}

// Backward routes gradients through the same mask the forward pass used.
func (d *Dropout) Backward(dy *mat.Dense) *mat.Dense {
	if !d.used {
		return dy
	}
	rows, cols := dy.Dims()
	dx := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dx.Set(i, j, dy.At(i, j)*d.keep[i*cols+j])
		}
	}
	return dx
}

package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// BatchNorm normalizes each channel (column) to zero mean and unit variance
// over the rows of the mini-batch, then applies a learned scale and shift.
// Running statistics accumulated during training are used at inference time.
type BatchNorm struct {
	C        int
	Gamma    *Param
	Beta     *Param
	Momentum float64 // fraction of the old running statistic retained
	Eps      float64

	// Running statistics for inference, updated during training.
	RunMean []float64
	RunVar  []float64

	// Forward cache for the backward pass.
	xhat   *mat.Dense
	invStd []float64
}

// Defaults shared by every BatchNorm in the network.
const (
	bnMomentum = 0.9
	bnEps      = 1e-5
)

// NewBatchNorm creates a BatchNorm over c channels with gamma=1, beta=0.
func NewBatchNorm(name string, c int) *BatchNorm {
	bn := &BatchNorm{
		C:        c,
		Gamma:    NewParam(name+"/gamma", 1, c),
		Beta:     NewParam(name+"/beta", 1, c),
		Momentum: bnMomentum,
		Eps:      bnEps,
		RunMean:  make([]float64, c),
		RunVar:   make([]float64, c),
	}
	for j := 0; j < c; j++ {
		bn.Gamma.W.Set(0, j, 1)
		bn.RunVar[j] = 1
	}
	return bn
}

// Forward normalizes x. In training mode batch statistics are used and the
// running statistics updated; in inference mode the running statistics are
// used directly, so single-example batches are fine.
func (bn *BatchNorm) Forward(x *mat.Dense, train bool) *mat.Dense {
	rows, _ := x.Dims()
	checkShape(x, rows, bn.C, "batchnorm input")

	y := mat.NewDense(rows, bn.C, nil)

	if !train {
		for j := 0; j < bn.C; j++ {
			invStd := 1.0 / math.Sqrt(bn.RunVar[j]+bn.Eps)
			gamma := bn.Gamma.W.At(0, j)
			beta := bn.Beta.W.At(0, j)
			mean := bn.RunMean[j]
			for i := 0; i < rows; i++ {
				y.Set(i, j, gamma*(x.At(i, j)-mean)*invStd+beta)
			}
		}
		return y
	}

	bn.xhat = mat.NewDense(rows, bn.C, nil)
	bn.invStd = make([]float64, bn.C)

	m := float64(rows)
	for j := 0; j < bn.C; j++ {
		mean := 0.0
		for i := 0; i < rows; i++ {
			mean += x.At(i, j)
		}
		mean /= m

		variance := 0.0
		for i := 0; i < rows; i++ {
			d := x.At(i, j) - mean
			variance += d * d
		}
		variance /= m

		invStd := 1.0 / math.Sqrt(variance+bn.Eps)
		bn.invStd[j] = invStd

		gamma := bn.Gamma.W.At(0, j)
		beta := bn.Beta.W.At(0, j)
		for i := 0; i < rows; i++ {
			xh := (x.At(i, j) - mean) * invStd
			bn.xhat.Set(i, j, xh)
			y.Set(i, j, gamma*xh+beta)
		}

		bn.RunMean[j] = bn.Momentum*bn.RunMean[j] + (1-bn.Momentum)*mean
		bn.RunVar[j] = bn.Momentum*bn.RunVar[j] + (1-bn.Momentum)*variance
	}
	return y
}

// Backward propagates dy through the training-mode normalization and
// accumulates gamma/beta gradients. Must follow a Forward with train=true.
func (bn *BatchNorm) Backward(dy *mat.Dense) *mat.Dense {
	rows, _ := dy.Dims()
	checkShape(dy, rows, bn.C, "batchnorm output gradient")

	dx := mat.NewDense(rows, bn.C, nil)
	dGamma := mat.NewDense(1, bn.C, nil)
	dBeta := mat.NewDense(1, bn.C, nil)

	m := float64(rows)
	for j := 0; j < bn.C; j++ {
		gamma := bn.Gamma.W.At(0, j)

		// Column sums used by the standard batchnorm gradient.
		var sumDy, sumDyXhat float64
		for i := 0; i < rows; i++ {
			sumDy += dy.At(i, j)
			sumDyXhat += dy.At(i, j) * bn.xhat.At(i, j)
		}
		dGamma.Set(0, j, sumDyXhat)
		dBeta.Set(0, j, sumDy)

		k := gamma * bn.invStd[j] / m
		for i := 0; i < rows; i++ {
			dx.Set(i, j, k*(m*dy.At(i, j)-sumDy-bn.xhat.At(i, j)*sumDyXhat))
		}
	}

	bn.Gamma.AddGrad(dGamma)
	bn.Beta.AddGrad(dBeta)
	return dx
}

// Params returns the layer's trainable parameters.
func (bn *BatchNorm) Params() []*Param {
	return []*Param{bn.Gamma, bn.Beta}
}

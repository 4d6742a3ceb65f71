package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MLPBlock is the Dense → BatchNorm → ReLU unit the network is built from.
// Applied to (B*N, C) matrices it is a shared per-point MLP (the 1x1
// convolution of the reference architecture); applied to (B, C) matrices it
// is an ordinary fully connected block.
type MLPBlock struct {
	dense *Dense
	bn    *BatchNorm
	relu  ReLU
}

// NewMLPBlock creates a block mapping in channels to out channels.
func NewMLPBlock(name string, in, out int, rng *rand.Rand) *MLPBlock {
	return &MLPBlock{
		dense: NewDense(name+"/dense", in, out, rng),
		bn:    NewBatchNorm(name+"/bn", out),
	}
}

// Forward runs dense, batchnorm, relu in order.
func (b *MLPBlock) Forward(x *mat.Dense, train bool) *mat.Dense {
	return b.relu.Forward(b.bn.Forward(b.dense.Forward(x), train))
}

// Backward runs the reverse pass through relu, batchnorm, dense.
func (b *MLPBlock) Backward(dy *mat.Dense) *mat.Dense {
	return b.dense.Backward(b.bn.Backward(b.relu.Backward(dy)))
}

// Params returns the block's trainable parameters.
func (b *MLPBlock) Params() []*Param {
	return append(b.dense.Params(), b.bn.Params()...)
}

// BatchNorms returns the block's batchnorm layers (for checkpointing the
// running statistics).
func (b *MLPBlock) BatchNorms() []*BatchNorm {
	return []*BatchNorm{b.bn}
}

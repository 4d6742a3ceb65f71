package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// TNet is the alignment sub-network: a small PointNet that predicts one KxK
// transform per sample, applied to that sample's points/features before the
// main stack. The final projection starts as zero weights with an identity
// bias, so an untrained TNet is a no-op. Training adds an orthogonality
// penalty coef·Σ‖A·Aᵀ − I‖² discouraging the predicted transform from
// collapsing or shearing the input.
type TNet struct {
	K    int
	Coef float64

	b1, b2, b3 *MLPBlock
	pool       MaxPool
	d1, d2     *MLPBlock
	out        *Dense

	transforms *mat.Dense // (B, K*K) cache from Forward
}

// TNet hidden widths, shared by the input and feature alignment networks.
const (
	tnetConv1 = 32
	tnetConv2 = 64
	tnetConv3 = 256
	tnetFC1   = 128
	tnetFC2   = 64
)

// NewTNet creates an alignment network for K-dimensional inputs.
func NewTNet(name string, k int, coef float64, rng *rand.Rand) *TNet {
	return &TNet{
		K:    k,
		Coef: coef,
		b1:   NewMLPBlock(name+"/conv1", k, tnetConv1, rng),
		b2:   NewMLPBlock(name+"/conv2", tnetConv1, tnetConv2, rng),
		b3:   NewMLPBlock(name+"/conv3", tnetConv2, tnetConv3, rng),
		d1:   NewMLPBlock(name+"/fc1", tnetConv3, tnetFC1, rng),
		d2:   NewMLPBlock(name+"/fc2", tnetFC1, tnetFC2, rng),
		out:  NewDenseIdentity(name+"/proj", tnetFC2, k),
	}
}

// Forward predicts a (B, K*K) matrix of per-sample transforms from a
// (B*N, K) input.
func (t *TNet) Forward(x *mat.Dense, b, n int, train bool) *mat.Dense {
	h := t.b1.Forward(x, train)
	h = t.b2.Forward(h, train)
	h = t.b3.Forward(h, train)
	g := t.pool.Forward(h, b, n)
	g = t.d1.Forward(g, train)
	g = t.d2.Forward(g, train)
	t.transforms = t.out.Forward(g)
	return t.transforms
}

// Penalty returns the orthogonality penalty for the transforms predicted by
// the last Forward: Coef · Σ_b Σ_ij (A_b·A_bᵀ − I)²_ij.
func (t *TNet) Penalty() float64 {
	if t.transforms == nil || t.Coef == 0 {
		return 0
	}
	b, _ := t.transforms.Dims()
	k := t.K
	total := 0.0
	for s := 0; s < b; s++ {
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				// (A·Aᵀ)_ij = Σ_r A_ir · A_jr
				v := 0.0
				for r := 0; r < k; r++ {
					v += t.transforms.At(s, i*k+r) * t.transforms.At(s, j*k+r)
				}
				if i == j {
					v -= 1
				}
				total += v * v
			}
		}
	}
	return t.Coef * total
}

// penaltyGrad returns d(Penalty)/dA for each sample: 4·Coef·(A·Aᵀ − I)·A,
// laid out like the transforms matrix.
func (t *TNet) penaltyGrad() *mat.Dense {
	b, _ := t.transforms.Dims()
	k := t.K
	grad := mat.NewDense(b, k*k, nil)
	if t.Coef == 0 {
		return grad
	}

	m := mat.NewDense(k, k, nil) // A·Aᵀ − I per sample
	for s := 0; s < b; s++ {
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				v := 0.0
				for r := 0; r < k; r++ {
					v += t.transforms.At(s, i*k+r) * t.transforms.At(s, j*k+r)
				}
				if i == j {
					v -= 1
				}
				m.Set(i, j, v)
			}
		}
		// dA = 4·coef·M·A
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				v := 0.0
				for r := 0; r < k; r++ {
					v += m.At(i, r) * t.transforms.At(s, r*k+j)
				}
				grad.Set(s, i*k+j, 4*t.Coef*v)
			}
		}
	}
	return grad
}

// Backward propagates the transform gradient (from ApplyTransform) plus the
// orthogonality-penalty gradient back through the network, returning the
// gradient with respect to the TNet's input points.
func (t *TNet) Backward(dT *mat.Dense) *mat.Dense {
	var total mat.Dense
	total.Add(dT, t.penaltyGrad())

	dg := t.out.Backward(&total)
	dg = t.d2.Backward(dg)
	dg = t.d1.Backward(dg)
	dh := t.pool.Backward(dg)
	dh = t.b3.Backward(dh)
	dh = t.b2.Backward(dh)
	return t.b1.Backward(dh)
}

// Params returns all trainable parameters of the TNet.
func (t *TNet) Params() []*Param {
	var ps []*Param
	for _, b := range []*MLPBlock{t.b1, t.b2, t.b3, t.d1, t.d2} {
		ps = append(ps, b.Params()...)
	}
	return append(ps, t.out.Params()...)
}

// BatchNorms returns the TNet's batchnorm layers.
func (t *TNet) BatchNorms() []*BatchNorm {
	var bns []*BatchNorm
	for _, b := range []*MLPBlock{t.b1, t.b2, t.b3, t.d1, t.d2} {
		bns = append(bns, b.BatchNorms()...)
	}
	return bns
}

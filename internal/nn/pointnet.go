package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Config holds the architecture hyperparameters of a PointNet classifier.
type Config struct {
	NumClasses int
	Dropout    float64
	OrthoCoef  float64
}

// Main-stack channel widths. The per-point stack lifts 3D coordinates to a
// 256-channel point feature; max pooling collapses that to one global
// feature per cloud.
const (
	conv1Width  = 32
	conv2Width  = 32
	conv3Width  = 32
	conv4Width  = 64
	globalWidth = 256
	fc1Width    = 128
	fc2Width    = 64
)

// PointNet is the point-cloud classifier: an input alignment TNet on raw
// coordinates, shared per-point MLPs, a feature alignment TNet, further
// per-point MLPs, global max pooling, and a fully connected head.
//
// The graph is hand-wired: Forward caches every intermediate needed by
// Backward, so a Forward(train=true) must be paired with exactly one
// Backward before the next Forward.
type PointNet struct {
	Cfg Config

	tnetIn   *TNet
	at1      ApplyTransform
	conv1    *MLPBlock
	conv2    *MLPBlock
	tnetFeat *TNet
	at2      ApplyTransform
	conv3    *MLPBlock
	conv4    *MLPBlock
	conv5    *MLPBlock
	pool     MaxPool
	fc1      *MLPBlock
	drop1    *Dropout
	fc2      *MLPBlock
	drop2    *Dropout
	out      *Dense
}

// NewPointNet builds a classifier with freshly initialized weights.
func NewPointNet(cfg Config, rng *rand.Rand) *PointNet {
	return &PointNet{
		Cfg:      cfg,
		tnetIn:   NewTNet("tnet_input", 3, cfg.OrthoCoef, rng),
		conv1:    NewMLPBlock("conv1", 3, conv1Width, rng),
		conv2:    NewMLPBlock("conv2", conv1Width, conv2Width, rng),
		tnetFeat: NewTNet("tnet_feature", conv2Width, cfg.OrthoCoef, rng),
		conv3:    NewMLPBlock("conv3", conv2Width, conv3Width, rng),
		conv4:    NewMLPBlock("conv4", conv3Width, conv4Width, rng),
		conv5:    NewMLPBlock("conv5", conv4Width, globalWidth, rng),
		fc1:      NewMLPBlock("fc1", globalWidth, fc1Width, rng),
		drop1:    NewDropout(cfg.Dropout, rng),
		fc2:      NewMLPBlock("fc2", fc1Width, fc2Width, rng),
		drop2:    NewDropout(cfg.Dropout, rng),
		out:      NewDense("head", fc2Width, cfg.NumClasses, rng),
	}
}

// Forward classifies a batch of b clouds of n points each, laid out as a
// (b*n, 3) matrix. It returns per-sample logits (b, NumClasses) and the
// total orthogonality penalty of both alignment networks.
func (p *PointNet) Forward(x *mat.Dense, b, n int, train bool) (logits *mat.Dense, penalty float64) {
	checkShape(x, b*n, 3, "pointnet input")

	t1 := p.tnetIn.Forward(x, b, n, train)
	aligned := p.at1.Forward(x, t1, b, n)

	h := p.conv1.Forward(aligned, train)
	h = p.conv2.Forward(h, train)

	t2 := p.tnetFeat.Forward(h, b, n, train)
	h = p.at2.Forward(h, t2, b, n)

	h = p.conv3.Forward(h, train)
	h = p.conv4.Forward(h, train)
	h = p.conv5.Forward(h, train)

	g := p.pool.Forward(h, b, n)
	g = p.fc1.Forward(g, train)
	g = p.drop1.Forward(g, train)
	g = p.fc2.Forward(g, train)
	g = p.drop2.Forward(g, train)

	return p.out.Forward(g), p.tnetIn.Penalty() + p.tnetFeat.Penalty()
}

// Backward accumulates gradients for all parameters from the logits
// gradient. The orthogonality-penalty gradients are added inside the TNet
// backward passes.
func (p *PointNet) Backward(dlogits *mat.Dense) {
	dg := p.out.Backward(dlogits)
	dg = p.drop2.Backward(dg)
	dg = p.fc2.Backward(dg)
	dg = p.drop1.Backward(dg)
	dg = p.fc1.Backward(dg)

	dh := p.pool.Backward(dg)
	dh = p.conv5.Backward(dh)
	dh = p.conv4.Backward(dh)
	dh = p.conv3.Backward(dh)

	// The feature stream splits at the second alignment: gradients flow
	// both through the applied transform and into the TNet that predicted
	// it, and the two contributions sum at the split point.
	dAligned, dT2 := p.at2.Backward(dh)
	dTNet := p.tnetFeat.Backward(dT2)
	var dFeat mat.Dense
	dFeat.Add(dAligned, dTNet)

	dx := p.conv2.Backward(&dFeat)
	dx = p.conv1.Backward(dx)

	dInput, dT1 := p.at1.Backward(dx)
	_ = dInput // raw coordinates have no upstream parameters
	p.tnetIn.Backward(dT1)
}

// Predict runs inference on a single cloud laid out as an (n, 3) matrix and
// returns the class probabilities.
func (p *PointNet) Predict(x *mat.Dense) []float64 {
	n, _ := x.Dims()
	logits, _ := p.Forward(x, 1, n, false)

	var sce SoftmaxCrossEntropy
	sce.Forward(logits, []int{0}) // label unused; we only want the softmax
	probs := sce.Probs()
	out := make([]float64, p.Cfg.NumClasses)
	for j := range out {
		out[j] = probs.At(0, j)
	}
	return out
}

// Params returns every trainable parameter in the network.
func (p *PointNet) Params() []*Param {
	var ps []*Param
	ps = append(ps, p.tnetIn.Params()...)
	for _, b := range []*MLPBlock{p.conv1, p.conv2} {
		ps = append(ps, b.Params()...)
	}
	ps = append(ps, p.tnetFeat.Params()...)
	for _, b := range []*MLPBlock{p.conv3, p.conv4, p.conv5, p.fc1, p.fc2} {
		ps = append(ps, b.Params()...)
	}
	return append(ps, p.out.Params()...)
}

// BatchNorms returns every batchnorm layer, in a stable order matching the
// construction order. Used by checkpoints to persist running statistics.
func (p *PointNet) BatchNorms() []*BatchNorm {
	var bns []*BatchNorm
	bns = append(bns, p.tnetIn.BatchNorms()...)
	for _, b := range []*MLPBlock{p.conv1, p.conv2} {
		bns = append(bns, b.BatchNorms()...)
	}
	bns = append(bns, p.tnetFeat.BatchNorms()...)
	for _, b := range []*MLPBlock{p.conv3, p.conv4, p.conv5, p.fc1, p.fc2} {
		bns = append(bns, b.BatchNorms()...)
	}
	return bns
}

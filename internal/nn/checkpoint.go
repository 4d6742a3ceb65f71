package nn

import (
	"encoding/gob"
	"fmt"
	"io"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// checkpoint is the gob-encoded on-disk form of a trained classifier:
// architecture config, the class map, all weights by name, and batchnorm
// running statistics by layer name.
type checkpoint struct {
	NumClasses int
	Dropout    float64
	OrthoCoef  float64
	Classes    []string

	Shapes  map[string][2]int
	Weights map[string][]float64

	RunMean map[string][]float64
	RunVar  map[string][]float64
}

// SaveCheckpoint serializes the network weights, batchnorm running
// statistics, and the class map to w.
func (p *PointNet) SaveCheckpoint(w io.Writer, classes []string) error {
	ck := checkpoint{
		NumClasses: p.Cfg.NumClasses,
		Dropout:    p.Cfg.Dropout,
		OrthoCoef:  p.Cfg.OrthoCoef,
		Classes:    classes,
		Shapes:     make(map[string][2]int),
		Weights:    make(map[string][]float64),
		RunMean:    make(map[string][]float64),
		RunVar:     make(map[string][]float64),
	}

	for _, param := range p.Params() {
		r, c := param.W.Dims()
		ck.Shapes[param.Name] = [2]int{r, c}
		data := make([]float64, r*c)
		copy(data, param.W.RawMatrix().Data)
		ck.Weights[param.Name] = data
	}
	for _, bn := range p.BatchNorms() {
		name := bn.Gamma.Name // "<layer>/gamma" is unique per batchnorm
		mean := make([]float64, len(bn.RunMean))
		copy(mean, bn.RunMean)
		variance := make([]float64, len(bn.RunVar))
		copy(variance, bn.RunVar)
		ck.RunMean[name] = mean
		ck.RunVar[name] = variance
	}

	return gob.NewEncoder(w).Encode(&ck)
}

// LoadCheckpoint reconstructs a classifier from a checkpoint written by
// SaveCheckpoint, returning the network and its class map. The rng only
// matters for subsequent training (dropout masks); inference is unaffected.
func LoadCheckpoint(r io.Reader, rng *rand.Rand) (*PointNet, []string, error) {
	var ck checkpoint
	if err := gob.NewDecoder(r).Decode(&ck); err != nil {
		return nil, nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if ck.NumClasses <= 0 {
		return nil, nil, fmt.Errorf("checkpoint has invalid class count %d", ck.NumClasses)
	}

	p := NewPointNet(Config{
		NumClasses: ck.NumClasses,
		Dropout:    ck.Dropout,
		OrthoCoef:  ck.OrthoCoef,
	}, rng)

	for _, param := range p.Params() {
		data, ok := ck.Weights[param.Name]
		if !ok {
			return nil, nil, fmt.Errorf("checkpoint missing parameter %q", param.Name)
		}
		shape := ck.Shapes[param.Name]
		r0, c0 := param.W.Dims()
		if shape[0] != r0 || shape[1] != c0 {
			return nil, nil, fmt.Errorf("parameter %q has shape (%d,%d), expected (%d,%d)",
				param.Name, shape[0], shape[1], r0, c0)
		}
		param.W.Copy(mat.NewDense(shape[0], shape[1], data))
	}
	for _, bn := range p.BatchNorms() {
		name := bn.Gamma.Name
		mean, ok := ck.RunMean[name]
		if !ok || len(mean) != bn.C {
			return nil, nil, fmt.Errorf("checkpoint missing running mean for %q", name)
		}
		variance, ok := ck.RunVar[name]
		if !ok || len(variance) != bn.C {
			return nil, nil, fmt.Errorf("checkpoint missing running variance for %q", name)
		}
		copy(bn.RunMean, mean)
		copy(bn.RunVar, variance)
	}

	return p, ck.Classes, nil
}

// ClassLabel returns the name for a class id from a checkpoint's class map,
// falling back to a numeric label when the id is out of range.
func ClassLabel(classes []string, id int) string {
	if id >= 0 && id < len(classes) {
		return classes[id]
	}
	return fmt.Sprintf("class_%d", id)
}

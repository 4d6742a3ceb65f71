// Package pointcloud provides the fixed-size 3D point sets the classifier
// consumes, plus the normalization and augmentation operations applied to
// them and a compact binary codec for persisting clouds as BLOBs.
package pointcloud

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Point is a single sampled 3D coordinate. float32 keeps bulk storage small;
// training code widens to float64 when building batches.
type Point struct {
	X, Y, Z float32
}

// Cloud is an ordered, fixed-size collection of points sampled from one mesh
// surface. Order carries no meaning for the classifier but is preserved so
// augmentation (point shuffling) is observable and testable.
type Cloud []Point

// Clone returns a deep copy of the cloud.
func (c Cloud) Clone() Cloud {
	out := make(Cloud, len(c))
	copy(out, c)
	return out
}

// Centroid returns the arithmetic mean of the points.
func (c Cloud) Centroid() (x, y, z float64) {
	if len(c) == 0 {
		return 0, 0, 0
	}
	for _, p := range c {
		x += float64(p.X)
		y += float64(p.Y)
		z += float64(p.Z)
	}
	n := float64(len(c))
	return x / n, y / n, z / n
}

// NormalizeUnitSphere centers the cloud on its centroid and scales it so the
// farthest point sits on the unit sphere. A degenerate cloud (all points
// coincident) is centered but left unscaled.
func (c Cloud) NormalizeUnitSphere() {
	cx, cy, cz := c.Centroid()
	maxRadius := 0.0
	for i := range c {
		c[i].X -= float32(cx)
		c[i].Y -= float32(cy)
		c[i].Z -= float32(cz)
		r := math.Sqrt(float64(c[i].X)*float64(c[i].X) +
			float64(c[i].Y)*float64(c[i].Y) +
			float64(c[i].Z)*float64(c[i].Z))
		if r > maxRadius {
			maxRadius = r
		}
	}
	if maxRadius == 0 {
		return
	}
	inv := float32(1.0 / maxRadius)
	for i := range c {
		c[i].X *= inv
		c[i].Y *= inv
		c[i].Z *= inv
	}
}

// Jitter perturbs every coordinate by uniform noise in [-amplitude,
// +amplitude]. This is the train-time augmentation; amplitude is small
// relative to the unit sphere (typically 0.005).
func (c Cloud) Jitter(rng *rand.Rand, amplitude float64) {
	for i := range c {
		c[i].X += float32((rng.Float64()*2 - 1) * amplitude)
		c[i].Y += float32((rng.Float64()*2 - 1) * amplitude)
		c[i].Z += float32((rng.Float64()*2 - 1) * amplitude)
	}
}

// Matrix lays the cloud out as an (n, 3) float64 matrix, one point per row.
// This is the shape the network consumes.
func (c Cloud) Matrix() *mat.Dense {
	m := mat.NewDense(len(c), 3, nil)
	for i, p := range c {
		m.Set(i, 0, float64(p.X))
		m.Set(i, 1, float64(p.Y))
		m.Set(i, 2, float64(p.Z))
	}
	return m
}

// Shuffle permutes the point order in place.
func (c Cloud) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(c), func(i, j int) {
		c[i], c[j] = c[j], c[i]
	})
}

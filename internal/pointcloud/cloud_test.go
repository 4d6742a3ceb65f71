package pointcloud

import (
	"math"
	"math/rand"
	"testing"
)

func testCloud() Cloud {
	return Cloud{
		{1, 2, 3},
		{4, 5, 6},
		{-2, 0, 1},
		{0.5, -3, 2},
	}
}

func TestNormalizeUnitSphere(t *testing.T) {
	c := testCloud()
	c.NormalizeUnitSphere()

	cx, cy, cz := c.Centroid()
	if math.Abs(cx) > 1e-6 || math.Abs(cy) > 1e-6 || math.Abs(cz) > 1e-6 {
		t.Errorf("centroid not at origin: (%f, %f, %f)", cx, cy, cz)
	}

	maxR := 0.0
	for _, p := range c {
		r := math.Sqrt(float64(p.X*p.X + p.Y*p.Y + p.Z*p.Z))
		if r > maxR {
			maxR = r
		}
	}
	if math.Abs(maxR-1.0) > 1e-5 {
		t.Errorf("max radius %f, expected 1.0", maxR)
	}
}

func TestNormalizeUnitSphere_Degenerate(t *testing.T) {
	c := Cloud{{5, 5, 5}, {5, 5, 5}}
	c.NormalizeUnitSphere()
	for _, p := range c {
		if p.X != 0 || p.Y != 0 || p.Z != 0 {
			t.Errorf("degenerate cloud should collapse to origin, got %+v", p)
		}
	}
}

func TestJitter_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	orig := testCloud()
	c := orig.Clone()
	const amp = 0.005
	c.Jitter(rng, amp)

	moved := false
	for i := range c {
		dx := float64(c[i].X - orig[i].X)
		dy := float64(c[i].Y - orig[i].Y)
		dz := float64(c[i].Z - orig[i].Z)
		for _, d := range []float64{dx, dy, dz} {
			if math.Abs(d) > amp+1e-6 {
				t.Fatalf("point %d jittered beyond amplitude: %f", i, d)
			}
			if d != 0 {
				moved = true
			}
		}
	}
	if !moved {
		t.Error("jitter left all points unchanged")
	}
}

func TestShuffle_IsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	orig := make(Cloud, 100)
	for i := range orig {
		orig[i] = Point{X: float32(i)}
	}
	c := orig.Clone()
	c.Shuffle(rng)

	seen := make(map[float32]bool, len(c))
	for _, p := range c {
		seen[p.X] = true
	}
	if len(seen) != len(orig) {
		t.Errorf("shuffle lost points: %d unique of %d", len(seen), len(orig))
	}
}

func TestClone_Independent(t *testing.T) {
	c := testCloud()
	d := c.Clone()
	d[0].X = 99
	if c[0].X == 99 {
		t.Error("clone shares backing storage with original")
	}
}

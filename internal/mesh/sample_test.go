package mesh

import (
	"math/rand"
	"testing"
)

// twoTriangleMesh builds a mesh with two coplanar triangles whose areas are
// in the ratio big:small.
func twoTriangleMesh() *Mesh {
	return &Mesh{
		Vertices: []Vec3{
			// Large triangle, area 4.5.
			{0, 0, 0}, {3, 0, 0}, {0, 3, 0},
			// Small triangle, area 0.5, offset in x.
			{10, 0, 0}, {11, 0, 0}, {10, 1, 0},
		},
		Tris: []int{0, 1, 2, 3, 4, 5},
	}
}

func TestSamplePoints_Count(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cloud, err := SamplePoints(twoTriangleMesh(), 256, rng)
	if err != nil {
		t.Fatalf("SamplePoints: %v", err)
	}
	if len(cloud) != 256 {
		t.Errorf("expected 256 points, got %d", len(cloud))
	}
}

func TestSamplePoints_AreaWeighting(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cloud, err := SamplePoints(twoTriangleMesh(), 10000, rng)
	if err != nil {
		t.Fatalf("SamplePoints: %v", err)
	}

	// Points with x >= 9 belong to the small triangle. Expected fraction is
	// 0.5/5.0 = 10%; allow generous sampling noise.
	small := 0
	for _, p := range cloud {
		if p.X >= 9 {
			small++
		}
	}
	frac := float64(small) / float64(len(cloud))
	if frac < 0.07 || frac > 0.13 {
		t.Errorf("small-triangle fraction %.3f, expected ~0.10", frac)
	}
}

func TestSamplePoints_PointsOnSurface(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := twoTriangleMesh()
	cloud, err := SamplePoints(m, 500, rng)
	if err != nil {
		t.Fatalf("SamplePoints: %v", err)
	}
	// Both triangles lie in the z=0 plane; every sample must too.
	for i, p := range cloud {
		if p.Z != 0 {
			t.Fatalf("point %d off surface: z=%f", i, p.Z)
		}
		if p.X < 0 || p.X > 11 || p.Y < 0 || p.Y > 3 {
			t.Fatalf("point %d outside mesh bounds: %+v", i, p)
		}
	}
}

func TestSamplePoints_Deterministic(t *testing.T) {
	m := twoTriangleMesh()
	a, err := SamplePoints(m, 64, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatalf("SamplePoints: %v", err)
	}
	b, err := SamplePoints(m, 64, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatalf("SamplePoints: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs across identical seeds: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSamplePoints_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := SamplePoints(&Mesh{}, 10, rng); err == nil {
		t.Error("expected error for empty mesh")
	}
	if _, err := SamplePoints(twoTriangleMesh(), 0, rng); err == nil {
		t.Error("expected error for zero point count")
	}
	// Degenerate mesh: all vertices coincident, zero area.
	degenerate := &Mesh{
		Vertices: []Vec3{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}},
		Tris:     []int{0, 1, 2},
	}
	if _, err := SamplePoints(degenerate, 10, rng); err == nil {
		t.Error("expected error for zero surface area")
	}
}

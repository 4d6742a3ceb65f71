package mesh

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/pointnet/internal/pointcloud"
)

// SamplePoints draws n points uniformly from the surface of m. Triangles are
// selected in proportion to their area (cumulative-sum inversion over the
// area table) and each point is placed uniformly within its triangle via
// barycentric coordinates. Deterministic for a given rng state.
func SamplePoints(m *Mesh, n int, rng *rand.Rand) (pointcloud.Cloud, error) {
	if n <= 0 {
		return nil, fmt.Errorf("point count must be positive, got %d", n)
	}
	numTris := m.TriangleCount()
	if numTris == 0 {
		return nil, fmt.Errorf("mesh has no triangles")
	}

	areas := make([]float64, numTris)
	for i := range areas {
		areas[i] = m.TriangleArea(i)
	}
	cum := make([]float64, numTris)
	floats.CumSum(cum, areas)
	total := cum[numTris-1]
	if total <= 0 {
		return nil, fmt.Errorf("mesh has zero surface area")
	}

	cloud := make(pointcloud.Cloud, n)
	for i := 0; i < n; i++ {
		t := sort.SearchFloat64s(cum, rng.Float64()*total)
		if t >= numTris {
			t = numTris - 1
		}
		a, b, c := m.Triangle(t)

		// Uniform barycentric sample: fold (u,v) back into the triangle.
		u, v := rng.Float64(), rng.Float64()
		if u+v > 1 {
			u, v = 1-u, 1-v
		}
		p := a.Add(b.Sub(a).Scale(u)).Add(c.Sub(a).Scale(v))
		cloud[i] = pointcloud.Point{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)}
	}
	return cloud, nil
}

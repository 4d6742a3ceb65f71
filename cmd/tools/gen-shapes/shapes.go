package main

import (
	"math"
	"math/rand"

	"github.com/banshee-data/pointnet/internal/mesh"
)

// Shape generators. Each produces a closed-enough triangle mesh with
// randomized proportions; surface sampling only needs triangles with
// sensible areas, not watertight topology.

func classNames() []string {
	return []string{"box", "cone", "cylinder", "pyramid", "sphere"}
}

func randomShape(class string, rng *rand.Rand) *mesh.Mesh {
	switch class {
	case "box":
		return box(0.5+rng.Float64(), 0.5+rng.Float64(), 0.5+rng.Float64())
	case "cone":
		return cone(0.3+rng.Float64()*0.7, 0.5+rng.Float64(), 12+rng.Intn(20))
	case "cylinder":
		return cylinder(0.3+rng.Float64()*0.7, 0.5+rng.Float64(), 12+rng.Intn(20))
	case "pyramid":
		return pyramid(0.5+rng.Float64(), 0.5+rng.Float64())
	case "sphere":
		return sphere(0.5+rng.Float64()*0.5, 8+rng.Intn(8))
	default:
		return box(1, 1, 1)
	}
}

func box(w, d, h float64) *mesh.Mesh {
	m := &mesh.Mesh{
		Vertices: []mesh.Vec3{
			{X: 0, Y: 0, Z: 0}, {X: w, Y: 0, Z: 0}, {X: w, Y: d, Z: 0}, {X: 0, Y: d, Z: 0},
			{X: 0, Y: 0, Z: h}, {X: w, Y: 0, Z: h}, {X: w, Y: d, Z: h}, {X: 0, Y: d, Z: h},
		},
	}
	quads := [][4]int{
		{0, 1, 2, 3}, {4, 5, 6, 7},
		{0, 1, 5, 4}, {1, 2, 6, 5},
		{2, 3, 7, 6}, {3, 0, 4, 7},
	}
	for _, q := range quads {
		m.Tris = append(m.Tris, q[0], q[1], q[2], q[0], q[2], q[3])
	}
	return m
}

func pyramid(base, h float64) *mesh.Mesh {
	m := &mesh.Mesh{
		Vertices: []mesh.Vec3{
			{X: 0, Y: 0, Z: 0}, {X: base, Y: 0, Z: 0},
			{X: base, Y: base, Z: 0}, {X: 0, Y: base, Z: 0},
			{X: base / 2, Y: base / 2, Z: h},
		},
		Tris: []int{
			0, 1, 2, 0, 2, 3, // base
			0, 1, 4, 1, 2, 4, 2, 3, 4, 3, 0, 4,
		},
	}
	return m
}

// ring appends n vertices on a circle of the given radius at height z and
// returns the index of the first.
func ring(m *mesh.Mesh, radius, z float64, n int) int {
	first := len(m.Vertices)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		m.Vertices = append(m.Vertices, mesh.Vec3{
			X: radius * math.Cos(theta),
			Y: radius * math.Sin(theta),
			Z: z,
		})
	}
	return first
}

func cone(radius, h float64, segments int) *mesh.Mesh {
	m := &mesh.Mesh{}
	base := ring(m, radius, 0, segments)
	m.Vertices = append(m.Vertices, mesh.Vec3{Z: 0}) // base center
	center := len(m.Vertices) - 1
	m.Vertices = append(m.Vertices, mesh.Vec3{Z: h}) // apex
	apex := len(m.Vertices) - 1

	for i := 0; i < segments; i++ {
		a := base + i
		b := base + (i+1)%segments
		m.Tris = append(m.Tris, a, b, center) // base disc
		m.Tris = append(m.Tris, a, b, apex)   // side
	}
	return m
}

func cylinder(radius, h float64, segments int) *mesh.Mesh {
	m := &mesh.Mesh{}
	bottom := ring(m, radius, 0, segments)
	top := ring(m, radius, h, segments)
	m.Vertices = append(m.Vertices, mesh.Vec3{Z: 0})
	bottomCenter := len(m.Vertices) - 1
	m.Vertices = append(m.Vertices, mesh.Vec3{Z: h})
	topCenter := len(m.Vertices) - 1

	for i := 0; i < segments; i++ {
		a := bottom + i
		b := bottom + (i+1)%segments
		c := top + i
		d := top + (i+1)%segments
		m.Tris = append(m.Tris, a, b, bottomCenter)
		m.Tris = append(m.Tris, c, d, topCenter)
		m.Tris = append(m.Tris, a, b, d, a, d, c) // side quad
	}
	return m
}

// sphere builds a UV sphere with the given number of latitude bands; the
// poles are fans, the bands are quads.
func sphere(radius float64, bands int) *mesh.Mesh {
	m := &mesh.Mesh{}
	segments := bands * 2

	for lat := 0; lat <= bands; lat++ {
		phi := math.Pi * float64(lat) / float64(bands)
		for lon := 0; lon < segments; lon++ {
			theta := 2 * math.Pi * float64(lon) / float64(segments)
			m.Vertices = append(m.Vertices, mesh.Vec3{
				X: radius * math.Sin(phi) * math.Cos(theta),
				Y: radius * math.Sin(phi) * math.Sin(theta),
				Z: radius * math.Cos(phi),
			})
		}
	}

	at := func(lat, lon int) int {
		return lat*segments + lon%segments
	}
	for lat := 0; lat < bands; lat++ {
		for lon := 0; lon < segments; lon++ {
			a := at(lat, lon)
			b := at(lat, lon+1)
			c := at(lat+1, lon+1)
			d := at(lat+1, lon)
			m.Tris = append(m.Tris, a, b, c, a, c, d)
		}
	}
	return m
}

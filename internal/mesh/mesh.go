// Package mesh loads triangle meshes and samples point clouds from their
// surfaces. It understands the OFF format used by the ModelNet archives and a
// minimal OBJ subset for ad-hoc inputs. Polygonal faces are fanned into
// triangles at load time so downstream code only ever sees triangles.
package mesh

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Vec3 is a point or direction in 3D space.
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z}
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Cross returns the cross product v × w.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		v.Y*w.Z - v.Z*w.Y,
		v.Z*w.X - v.X*w.Z,
		v.X*w.Y - v.Y*w.X,
	}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Mesh is a triangle mesh. Tris holds vertex indices in triples; every three
// consecutive entries form one triangle.
type Mesh struct {
	Vertices []Vec3
	Tris     []int
}

// TriangleCount returns the number of triangles in the mesh.
func (m *Mesh) TriangleCount() int {
	return len(m.Tris) / 3
}

// Triangle returns the three corner vertices of triangle i.
func (m *Mesh) Triangle(i int) (a, b, c Vec3) {
	a = m.Vertices[m.Tris[3*i]]
	b = m.Vertices[m.Tris[3*i+1]]
	c = m.Vertices[m.Tris[3*i+2]]
	return
}

// TriangleArea returns the surface area of triangle i.
func (m *Mesh) TriangleArea(i int) float64 {
	a, b, c := m.Triangle(i)
	return 0.5 * b.Sub(a).Cross(c.Sub(a)).Norm()
}

// SurfaceArea returns the total surface area of the mesh.
func (m *Mesh) SurfaceArea() float64 {
	total := 0.0
	for i := 0; i < m.TriangleCount(); i++ {
		total += m.TriangleArea(i)
	}
	return total
}

// addFace appends a polygonal face to the mesh, fanning it into triangles.
// Indices must already be validated against the vertex count.
func (m *Mesh) addFace(idx []int) {
	for i := 1; i+1 < len(idx); i++ {
		m.Tris = append(m.Tris, idx[0], idx[i], idx[i+1])
	}
}

// LoadFile loads a mesh from path, dispatching on the file extension.
// Supported extensions: .off, .obj (case-insensitive).
func LoadFile(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mesh file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".off":
		m, err := ParseOFF(f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return m, nil
	case ".obj":
		m, err := ParseOBJ(f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported mesh format %q", filepath.Ext(path))
	}
}

package nn

import "gonum.org/v1/gonum/mat"

// ApplyTransform multiplies each sample's points by that sample's predicted
// KxK alignment matrix: y[b*n+i, :] = x[b*n+i, :] · A_b. Transforms arrive
// as a (B, K*K) matrix with A_b stored row-major in row b.
type ApplyTransform struct {
	b, n, k int
	x       *mat.Dense
	t       *mat.Dense
}

// Forward applies the per-sample transforms. Inputs are cached for Backward.
func (a *ApplyTransform) Forward(x, transforms *mat.Dense, b, n int) *mat.Dense {
	_, k := x.Dims()
	checkShape(x, b*n, k, "transform input")
	checkShape(transforms, b, k*k, "transform matrices")

	a.b, a.n, a.k = b, n, k
	a.x = x
	a.t = transforms

	y := mat.NewDense(b*n, k, nil)
	for s := 0; s < b; s++ {
		base := s * n
		for i := 0; i < n; i++ {
			row := base + i
			for j := 0; j < k; j++ {
				sum := 0.0
				for r := 0; r < k; r++ {
					sum += x.At(row, r) * transforms.At(s, r*k+j)
				}
				y.Set(row, j, sum)
			}
		}
	}
	return y
}

// Backward returns the gradient with respect to the points (dx) and to the
// transform matrices (dT, shape (B, K*K)).
func (a *ApplyTransform) Backward(dy *mat.Dense) (dx, dT *mat.Dense) {
	checkShape(dy, a.b*a.n, a.k, "transform output gradient")

	dx = mat.NewDense(a.b*a.n, a.k, nil)
	dT = mat.NewDense(a.b, a.k*a.k, nil)

	for s := 0; s < a.b; s++ {
		base := s * a.n
		for i := 0; i < a.n; i++ {
			row := base + i
			// dx = dy · Aᵀ
			for r := 0; r < a.k; r++ {
				sum := 0.0
				for j := 0; j < a.k; j++ {
					sum += dy.At(row, j) * a.t.At(s, r*a.k+j)
				}
				dx.Set(row, r, sum)
			}
			// dA[r,j] += x[row,r] * dy[row,j]
			for r := 0; r < a.k; r++ {
				xr := a.x.At(row, r)
				if xr == 0 {
					continue
				}
				for j := 0; j < a.k; j++ {
					idx := r*a.k + j
					dT.Set(s, idx, dT.At(s, idx)+xr*dy.At(row, j))
				}
			}
		}
	}
	return dx, dT
}

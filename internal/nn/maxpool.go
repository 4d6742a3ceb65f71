package nn

import "gonum.org/v1/gonum/mat"

// MaxPool reduces a (B*N, C) per-point matrix to a (B, C) per-sample matrix
// by taking the channelwise maximum over each sample's N points. This is the
// symmetric function that makes the classifier invariant to point order.
type MaxPool struct {
	b, n, c int
	argmax  []int // winning row per (sample, channel), for the backward pass
}

// Forward pools x, which must have b*n rows.
func (p *MaxPool) Forward(x *mat.Dense, b, n int) *mat.Dense {
	rows, c := x.Dims()
	checkShape(x, b*n, c, "maxpool input")
	_ = rows

	p.b, p.n, p.c = b, n, c
	p.argmax = make([]int, b*c)

	y := mat.NewDense(b, c, nil)
	for s := 0; s < b; s++ {
		base := s * n
		for j := 0; j < c; j++ {
			best := x.At(base, j)
			bestRow := base
			for i := 1; i < n; i++ {
				if v := x.At(base+i, j); v > best {
					best = v
					bestRow = base + i
				}
			}
			y.Set(s, j, best)
			p.argmax[s*c+j] = bestRow
		}
	}
	return y
}

// Backward scatters dy back to the rows that won the max.
func (p *MaxPool) Backward(dy *mat.Dense) *mat.Dense {
	checkShape(dy, p.b, p.c, "maxpool output gradient")

	dx := mat.NewDense(p.b*p.n, p.c, nil)
	for s := 0; s < p.b; s++ {
		for j := 0; j < p.c; j++ {
			row := p.argmax[s*p.c+j]
			dx.Set(row, j, dx.At(row, j)+dy.At(s, j))
		}
	}
	return dx
}

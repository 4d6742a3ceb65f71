package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam is the Adam optimizer. Moment estimates are kept per parameter name,
// so an optimizer survives checkpoint reload as long as names are stable.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t int
	m map[string]*mat.Dense
	v map[string]*mat.Dense
}

// NewAdam creates an Adam optimizer with the standard moment decay rates.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-7,
		m:     make(map[string]*mat.Dense),
		v:     make(map[string]*mat.Dense),
	}
}

// Step applies one Adam update to every parameter using its accumulated
// gradient, then leaves the gradients untouched (call ZeroGrads before the
// next backward pass).
func (a *Adam) Step(params []*Param) {
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for _, p := range params {
		r, c := p.W.Dims()
		m, ok := a.m[p.Name]
		if !ok {
			m = mat.NewDense(r, c, nil)
			a.m[p.Name] = m
			a.v[p.Name] = mat.NewDense(r, c, nil)
		}
		v := a.v[p.Name]

		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				g := p.Grad.At(i, j)
				mij := a.Beta1*m.At(i, j) + (1-a.Beta1)*g
				vij := a.Beta2*v.At(i, j) + (1-a.Beta2)*g*g
				m.Set(i, j, mij)
				v.Set(i, j, vij)

				mhat := mij / c1
				vhat := vij / c2
				p.W.Set(i, j, p.W.At(i, j)-a.LR*mhat/(math.Sqrt(vhat)+a.Eps))
			}
		}
	}
}

// ZeroGrads clears the accumulated gradients of all parameters.
func ZeroGrads(params []*Param) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

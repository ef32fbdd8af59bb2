package identify

import (
	"math"

	"github.com/san-kum/looptune/internal/process"
	"gonum.org/v1/gonum/mat"
)

// unitResponse simulates the delay-free model m driven by the recorded
// input (taken as zero-order hold, relative to u0) shifted by theta. The
// shifted input may change inside a sample interval; the model is then
// advanced piecewise, so the response is continuous in theta.
func unitResponse(m process.Model, t, u []float64, u0, theta float64) []float64 {
	n := len(t)
	out := make([]float64, n)
	var s process.State
	j := 0

	for i := 0; i < n-1; i++ {
		out[i] = s.Y
		a, b := t[i]-theta, t[i+1]-theta
		for a < b {
			for j+1 < n && t[j+1] <= a {
				j++
			}
			v := u[j] - u0
			end := b
			switch {
			case a < t[0]:
				v = u[0] - u0
				end = math.Min(b, t[0])
			case j+1 < n && t[j+1] < b:
				end = t[j+1]
			}
			s = process.Next(m, s, v, 0, end-a)
			a = end
		}
	}
	if n > 0 {
		out[n-1] = s.Y
	}
	return out
}

// projection is the closed-form least-squares fit y ≈ gain*r + offset.
type projection struct {
	gain   float64
	offset float64
	sse    float64
}

func project(r, y []float64) (projection, bool) {
	n := len(y)
	a := mat.NewDense(n, 2, nil)
	for i := range r {
		a.Set(i, 0, r[i])
		a.Set(i, 1, 1)
	}

	var qr mat.QR
	qr.Factorize(a)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, mat.NewVecDense(n, y)); err != nil {
		return projection{}, false
	}

	p := projection{gain: x.AtVec(0), offset: x.AtVec(1)}
	for i := range y {
		e := y[i] - (p.gain*r[i] + p.offset)
		p.sse += e * e
	}
	if math.IsNaN(p.sse) || math.IsInf(p.sse, 0) {
		return projection{}, false
	}
	return p, true
}

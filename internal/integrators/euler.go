package integrators

// Euler is the explicit forward-Euler lag update. It is only stable for
// dt < 2*tau and exists for comparison against Exact.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Advance(y, target, tau, dt float64) float64 {
	if tau == 0 {
		return target
	}
	return y + dt/tau*(target-y)
}

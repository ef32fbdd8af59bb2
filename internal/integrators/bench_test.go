package integrators

import "testing"

func BenchmarkEuler(b *testing.B) {
	integrator := NewEuler()
	y := 0.0

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		y = integrator.Advance(y, 1.0, 10.0, 0.01)
	}
}

func BenchmarkExact(b *testing.B) {
	integrator := NewExact()
	y := 0.0

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		y = integrator.Advance(y, 1.0, 10.0, 0.01)
	}
}

package control

import (
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
)

// Manual is an open-loop station: it ignores sp and pv and replays an
// output schedule over elapsed steps. It is how step tests are simulated.
type Manual struct {
	schedule dynamo.Schedule
	min, max float64
	override *float64
	k        int
	ready    bool
}

func NewManual(schedule dynamo.Schedule) *Manual {
	return &Manual{schedule: schedule, min: 0, max: 100}
}

// SetLimits changes the output clamp (default 0..100).
func (m *Manual) SetLimits(lo, hi float64) {
	m.min, m.max = lo, hi
}

// Hold pins the output at v until Release.
func (m *Manual) Hold(v float64) { m.override = &v }
func (m *Manual) Release()       { m.override = nil }

// Reset rewinds the schedule. out0 and pv0 are ignored.
func (m *Manual) Reset(out0, pv0 float64) {
	m.k = 0
	m.ready = true
}

func (m *Manual) Step(sp, pv, dt float64) (float64, error) {
	if !m.ready {
		return 0, dynamo.ErrNotInitialized
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return 0, dynamo.Invalid("dt", dt, "must be positive")
	}
	v := m.schedule.At(float64(m.k) * dt)
	if m.override != nil {
		v = *m.override
	}
	m.k++
	return clamp(v, m.min, m.max), nil
}

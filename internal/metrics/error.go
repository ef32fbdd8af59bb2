package metrics

import (
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
)

type weighting int

const (
	absolute weighting = iota
	squared
	timeAbsolute
)

// ErrorIntegral integrates the control error SP - PV with the left
// rectangle rule over the observed sample times.
type ErrorIntegral struct {
	name   string
	weight weighting
	sum    float64
	prevT  float64
	prevE  float64
	seen   bool
}

// NewIAE integrates |e|.
func NewIAE() *ErrorIntegral { return &ErrorIntegral{name: "iae", weight: absolute} }

// NewISE integrates e².
func NewISE() *ErrorIntegral { return &ErrorIntegral{name: "ise", weight: squared} }

// NewITAE integrates t·|e|.
func NewITAE() *ErrorIntegral { return &ErrorIntegral{name: "itae", weight: timeAbsolute} }

func (m *ErrorIntegral) Name() string { return m.name }

func (m *ErrorIntegral) Observe(p dynamo.Point) {
	e := p.Setpoint - p.PV
	if m.seen {
		dt := p.T - m.prevT
		switch m.weight {
		case squared:
			m.sum += m.prevE * m.prevE * dt
		case timeAbsolute:
			m.sum += m.prevT * math.Abs(m.prevE) * dt
		default:
			m.sum += math.Abs(m.prevE) * dt
		}
	}
	m.prevT, m.prevE, m.seen = p.T, e, true
}

func (m *ErrorIntegral) Value() float64 { return m.sum }

func (m *ErrorIntegral) Reset() {
	m.sum, m.prevT, m.prevE, m.seen = 0, 0, 0, false
}

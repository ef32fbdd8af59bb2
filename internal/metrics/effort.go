package metrics

import (
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
)

// Travel is the total variation of one point field: ΣΔOP for control
// effort, ΣΔstem for valve wear.
type Travel struct {
	name  string
	field func(dynamo.Point) float64
	sum   float64
	prev  float64
	seen  bool
}

func NewControlEffort() *Travel {
	return &Travel{name: "control_effort", field: func(p dynamo.Point) float64 { return p.OP }}
}

func NewValveTravel() *Travel {
	return &Travel{name: "valve_travel", field: func(p dynamo.Point) float64 { return p.Valve }}
}

func (c *Travel) Name() string { return c.name }

func (c *Travel) Observe(p dynamo.Point) {
	v := c.field(p)
	if c.seen {
		c.sum += math.Abs(v - c.prev)
	}
	c.prev, c.seen = v, true
}

func (c *Travel) Value() float64 { return c.sum }

func (c *Travel) Reset() {
	c.sum, c.prev, c.seen = 0, 0, false
}

// Reversals counts valve direction changes, a stiction and tuning
// aggressiveness indicator.
type Reversals struct {
	name    string
	prev    float64
	lastDir int
	count   int
	seen    bool
}

func NewReversals() *Reversals { return &Reversals{name: "valve_reversals"} }

func (r *Reversals) Name() string { return r.name }

func (r *Reversals) Observe(p dynamo.Point) {
	if r.seen {
		dir := 0
		switch d := p.Valve - r.prev; {
		case d > 0:
			dir = 1
		case d < 0:
			dir = -1
		}
		if dir != 0 {
			if r.lastDir != 0 && dir != r.lastDir {
				r.count++
			}
			r.lastDir = dir
		}
	}
	r.prev, r.seen = p.Valve, true
}

func (r *Reversals) Value() float64 { return float64(r.count) }

func (r *Reversals) Reset() { *r = Reversals{name: r.name} }

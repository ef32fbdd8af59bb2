package tuning

import (
	"github.com/san-kum/looptune/internal/control"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/process"
)

// CohenCoon uses the published formulas in r = theta/tau.
func CohenCoon(m process.FOPDT, form control.Form) (Gains, error) {
	if err := firstErr(positive("k", m.K), positive("tau", m.Tau), nonNegative("theta", m.Theta)); err != nil {
		return Gains{}, err
	}
	theta := minDeadTime(m.Theta, m.Tau)
	r := theta / m.Tau
	base := 1 / (m.K * r)

	var g Gains
	switch form {
	case control.FormP:
		g = Gains{Kp: base * (1 + r/3)}
	case control.FormPI:
		g = Gains{
			Kp: base * (0.9 + r/12),
			Ti: theta * (30 + 3*r) / (9 + 20*r),
		}
	case control.FormPID:
		g = Gains{
			Kp: base * (4.0/3 + r/4),
			Ti: theta * (32 + 6*r) / (13 + 8*r),
			Td: theta * 4 / (11 + 2*r),
		}
	default:
		return Gains{}, dynamo.Invalid("form", float64(form), "unknown controller form")
	}
	return g, g.valid()
}

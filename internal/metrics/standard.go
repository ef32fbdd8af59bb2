package metrics

import "github.com/san-kum/looptune/internal/sim"

// Standard returns a fresh set of the usual loop-performance metrics.
func Standard() []sim.Metric {
	return []sim.Metric{
		NewIAE(),
		NewISE(),
		NewITAE(),
		NewOvershoot(),
		NewSettlingTime(DefaultSettlingBand),
		NewControlEffort(),
		NewValveTravel(),
		NewReversals(),
	}
}

// Names lists Standard's metric names in order.
func Names() []string {
	ms := Standard()
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name()
	}
	return out
}

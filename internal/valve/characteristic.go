package valve

import (
	"fmt"
	"math"
)

// Characteristic maps stem travel to flow, both in percent.
type Characteristic int

const (
	Linear Characteristic = iota
	EqualPercentage
	QuickOpening
)

const DefaultRangeability = 50.0

func (c Characteristic) String() string {
	switch c {
	case Linear:
		return "linear"
	case EqualPercentage:
		return "equal_percentage"
	case QuickOpening:
		return "quick_opening"
	}
	return fmt.Sprintf("characteristic(%d)", int(c))
}

func ParseCharacteristic(s string) (Characteristic, error) {
	switch s {
	case "", "linear":
		return Linear, nil
	case "equal_percentage", "equal-percentage", "eqp":
		return EqualPercentage, nil
	case "quick_opening", "quick-opening", "qo":
		return QuickOpening, nil
	}
	return Linear, fmt.Errorf("unknown valve characteristic: %s", s)
}

// Flow returns the flow percentage at a stem position. r is the
// rangeability used by the equal-percentage curve.
func (c Characteristic) Flow(position, r float64) float64 {
	x := clamp(position/100, 0, 1)
	switch c {
	case EqualPercentage:
		return 100 * (math.Pow(r, x) - 1) / (r - 1)
	case QuickOpening:
		return 100 * math.Sqrt(x)
	}
	return 100 * x
}

package sim

import (
	"context"
	"io"

	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/integrators"
	"github.com/san-kum/looptune/internal/process"
)

// Stream advances a closed loop one sample per call, for live views and
// for driving a controller from real measurements. A call that observes a
// canceled context returns before touching any state. Streams are not safe
// for concurrent use.
type Stream struct {
	l      *loop
	failed error
}

// NewStream builds a reset stream. Duration 0 means unbounded; otherwise
// Next returns io.EOF once t passes Duration.
func NewStream(model process.Model, ctrl Controller, act Actuator, cfg Config) (*Stream, error) {
	if err := validateConfig(cfg, true); err != nil {
		return nil, err
	}
	l, err := newLoop(model, nil, ctrl, act, cfg)
	if err != nil {
		return nil, err
	}
	return &Stream{l: l}, nil
}

// Next advances the simulated loop by one dt.
func (s *Stream) Next(ctx context.Context) (dynamo.Point, error) {
	return s.advance(ctx, nil)
}

// Feed advances one dt using pv as the measurement instead of the model
// output. The model keeps running as a predictor.
func (s *Stream) Feed(ctx context.Context, pv float64) (dynamo.Point, error) {
	return s.advance(ctx, &pv)
}

func (s *Stream) advance(ctx context.Context, measured *float64) (dynamo.Point, error) {
	if err := ctx.Err(); err != nil {
		return dynamo.Point{}, err
	}
	if s.failed != nil {
		return dynamo.Point{}, s.failed
	}
	if d := s.l.cfg.Duration; d > 0 && s.l.time() > d+s.l.cfg.Dt/2 {
		return dynamo.Point{}, io.EOF
	}
	p, err := s.l.step(measured)
	if err != nil {
		s.failed = err
		return dynamo.Point{}, err
	}
	return p, nil
}

// Restart resets plant, controller, actuator and noise to t=0 and clears a
// previous failure.
func (s *Stream) Restart() {
	s.l.reset()
	s.failed = nil
}

// SetSetpoint overrides the configured setpoint schedule.
func (s *Stream) SetSetpoint(v float64) { s.l.override = &v }

// ClearSetpoint returns to the configured schedule.
func (s *Stream) ClearSetpoint() { s.l.override = nil }

func (s *Stream) Setpoint() float64 {
	if s.l.override != nil {
		return *s.l.override
	}
	return s.l.cfg.Setpoint.At(s.l.time())
}

// SetLag swaps the process discretization; nil means exact.
func (s *Stream) SetLag(lag integrators.Lag) { s.l.plant.SetLag(lag) }

func (s *Stream) Time() float64 { return s.l.time() }
func (s *Stream) Err() error    { return s.failed }

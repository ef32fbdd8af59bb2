package automation

import (
	"fmt"
	"sort"

	"github.com/san-kum/looptune/internal/config"
	"github.com/san-kum/looptune/internal/dynamo"
)

// params addresses the numeric loop fields that scenarios, sweeps and
// Monte Carlo trials may change.
var params = map[string]func(*config.Config) *float64{
	"k":         func(c *config.Config) *float64 { return &c.Process.K },
	"tau":       func(c *config.Config) *float64 { return &c.Process.Tau },
	"tau1":      func(c *config.Config) *float64 { return &c.Process.Tau1 },
	"tau2":      func(c *config.Config) *float64 { return &c.Process.Tau2 },
	"theta":     func(c *config.Config) *float64 { return &c.Process.Theta },
	"kprime":    func(c *config.Config) *float64 { return &c.Process.KPrime },
	"tau_leak":  func(c *config.Config) *float64 { return &c.Process.TauLeak },
	"kp":        func(c *config.Config) *float64 { return &c.Controller.Kp },
	"ti":        func(c *config.Config) *float64 { return &c.Controller.Ti },
	"td":        func(c *config.Config) *float64 { return &c.Controller.Td },
	"beta":      func(c *config.Config) *float64 { return &c.Controller.Beta },
	"dt":        func(c *config.Config) *float64 { return &c.Dt },
	"duration":  func(c *config.Config) *float64 { return &c.Duration },
	"noise_std": func(c *config.Config) *float64 { return &c.NoiseStd },
	"speed":     func(c *config.Config) *float64 { return &c.Tuning.Speed },
}

// processParams are perturbed by Monte Carlo trials.
var processParams = []string{"k", "tau", "tau1", "tau2", "theta", "kprime", "tau_leak"}

// SetParam writes one named field of cfg.
func SetParam(cfg *config.Config, name string, v float64) error {
	f, ok := params[name]
	if !ok {
		return fmt.Errorf("%w: unknown parameter %q (have %v)", dynamo.ErrInvalidParameter, name, ParamNames())
	}
	*f(cfg) = v
	return nil
}

// Param reads one named field of cfg.
func Param(cfg *config.Config, name string) (float64, error) {
	f, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown parameter %q", dynamo.ErrInvalidParameter, name)
	}
	return *f(cfg), nil
}

func ParamNames() []string {
	names := make([]string, 0, len(params))
	for n := range params {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

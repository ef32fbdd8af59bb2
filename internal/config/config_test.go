package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/looptune/internal/dynamo"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Process.Family != "fopdt" {
		t.Errorf("expected family fopdt, got %s", cfg.Process.Family)
	}
	if cfg.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dt", func(c *Config) { c.Dt = 0 }},
		{"negative duration", func(c *Config) { c.Duration = -1 }},
		{"duration below dt", func(c *Config) { c.Duration = c.Dt / 2 }},
		{"negative noise", func(c *Config) { c.NoiseStd = -0.1 }},
		{"no family", func(c *Config) { c.Process.Family = "" }},
		{"no controller", func(c *Config) { c.Controller.Type = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, dynamo.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.yaml")
	cfg := GetPreset("flow", "sticky")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Valve == nil || got.Valve.Stiction != 2 {
		t.Errorf("expected valve stiction 2, got %+v", got.Valve)
	}
	if got.Setpoint.At(20) != 65 {
		t.Errorf("expected setpoint 65 after the step, got %f", got.Setpoint.At(20))
	}
	if got.Process.Theta != 0.5 {
		t.Errorf("expected theta 0.5, got %f", got.Process.Theta)
	}
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	partial := "process:\n  family: sopdt\n  k: 2\n  tau1: 5\n  tau2: 1\n"
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Process.Family != "sopdt" {
		t.Errorf("expected family sopdt, got %s", got.Process.Family)
	}
	if got.Process.Tau1 != 5 || got.Dt != DefaultDt {
		t.Errorf("expected tau1 5 and default dt, got %f %f", got.Process.Tau1, got.Dt)
	}
	if got.Controller.Type != "pid" {
		t.Errorf("expected default controller type pid, got %q", got.Controller.Type)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("temperature", "jacket")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Process.Theta != 15 {
		t.Errorf("expected theta 15, got %f", cfg.Process.Theta)
	}

	cfg.Process.Theta = 99
	cfg.Setpoint.Changes[0].Value = -1
	again := GetPreset("temperature", "jacket")
	if again.Process.Theta != 15 || again.Setpoint.Changes[0].Value != 85 {
		t.Error("expected GetPreset to return an independent copy")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("temperature", "nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if cfg := GetPreset("nonexistent", "jacket"); cfg != nil {
		t.Error("expected nil for nonexistent loop")
	}
}

func TestPresetsValidate(t *testing.T) {
	for _, loop := range Loops() {
		names := ListPresets(loop)
		if len(names) == 0 {
			t.Errorf("expected presets for %s", loop)
		}
		for _, name := range names {
			if err := GetPreset(loop, name).Validate(); err != nil {
				t.Errorf("%s/%s: %v", loop, name, err)
			}
		}
	}
	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent loop")
	}
}

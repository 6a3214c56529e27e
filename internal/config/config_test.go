package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/mpcsim/internal/plant"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Controller != "mpc" {
		t.Errorf("expected controller mpc, got %s", cfg.Controller)
	}
	if cfg.Horizon != 10 || cfg.Period != 10 || cfg.Steps != 100 {
		t.Errorf("unexpected loop settings %d/%d/%d", cfg.Horizon, cfg.Period, cfg.Steps)
	}
	if cfg.Weights.Q != 100 || cfg.Weights.R != 0.42 || cfg.Weights.S != 0.01 {
		t.Errorf("unexpected weights %+v", cfg.Weights)
	}
	if cfg.Model.A != 0.9 || cfg.Plant.Alpha != 0.99 {
		t.Errorf("model and plant must differ by default: %+v %+v", cfg.Model, cfg.Plant)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"steps", func(c *Config) { c.Steps = 0 }},
		{"period", func(c *Config) { c.Period = 0 }},
		{"horizon", func(c *Config) { c.Horizon = 0 }},
		{"bounds", func(c *Config) { c.Bounds.Lower = 2 }},
		{"time limit", func(c *Config) { c.Solver.TimeLimit = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")

	cfg := DefaultConfig()
	cfg.Horizon = 7
	cfg.Weights.R = 1.5
	cfg.Plant = plant.Drift()
	cfg.Solver.TimeLimit = 250 * time.Millisecond
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Horizon != 7 {
		t.Errorf("expected horizon 7, got %d", loaded.Horizon)
	}
	if loaded.Weights.R != 1.5 {
		t.Errorf("expected r 1.5, got %f", loaded.Weights.R)
	}
	if loaded.Plant != plant.Drift() {
		t.Errorf("expected drift plant, got %+v", loaded.Plant)
	}
	if loaded.Solver.TimeLimit != 250*time.Millisecond {
		t.Errorf("expected 250ms time limit, got %s", loaded.Solver.TimeLimit)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("steps: 20\nweights:\n  q: 5\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Steps != 20 || cfg.Weights.Q != 5 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Weights.R != 0.42 || cfg.Horizon != 10 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	if err := os.WriteFile(path, []byte("horizon: 12\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MPCSIM_HORIZON", "5")
	t.Setenv("MPCSIM_WEIGHTS_Q", "3.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Horizon != 5 {
		t.Errorf("expected env horizon 5, got %d", cfg.Horizon)
	}
	if cfg.Weights.Q != 3.5 {
		t.Errorf("expected env q 3.5, got %f", cfg.Weights.Q)
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("period: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("drift")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Plant.Alpha != 1.0 || cfg.Plant.Beta != 0.1 {
		t.Errorf("expected drift plant, got %+v", cfg.Plant)
	}

	long := GetPreset("long")
	if long.Steps != 1000 {
		t.Errorf("expected 1000 steps, got %d", long.Steps)
	}

	// presets are independent copies
	long.Steps = 1
	if GetPreset("long").Steps != 1000 {
		t.Error("preset mutated through returned config")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets()
	want := []string{"drift", "long", "matched", "nominal"}
	if len(presets) != len(want) {
		t.Fatalf("expected %v, got %v", want, presets)
	}
	for i := range want {
		if presets[i] != want[i] {
			t.Errorf("expected %v, got %v", want, presets)
		}
	}
}

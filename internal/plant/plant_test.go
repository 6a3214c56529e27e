package plant

import (
	"math"
	"testing"
)

func TestAffineAdvance(t *testing.T) {
	tests := []struct {
		name  string
		plant Affine
		x, u  float64
		want  float64
	}{
		{"nominal", Nominal(), 1.0, 0.5, 0.99 + 0.5 + 0.01},
		{"drift", Drift(), 2.0, -1.0, 2.0 - 1.0 + 0.1},
		{"matched", Matched(), 1.0, 0, 0.9},
		{"gain", Affine{Alpha: 1, Gain: 2}, 0, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.plant.Advance(tt.x, tt.u); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestPreset(t *testing.T) {
	p, err := Preset("drift")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != Drift() {
		t.Errorf("expected drift plant, got %v", p)
	}
	if _, err := Preset("missing"); err == nil {
		t.Error("expected error for unknown plant")
	}
	if got := Presets(); len(got) != 3 || got[0] != "drift" {
		t.Errorf("unexpected preset list %v", got)
	}
}

func TestFreeResponse(t *testing.T) {
	xs := FreeResponse(Nominal(), 1.0, 3)
	if len(xs) != 4 {
		t.Fatalf("expected 4 states, got %d", len(xs))
	}
	x := 1.0
	for i, got := range xs {
		if math.Abs(got-x) > 1e-12 {
			t.Errorf("state %d: expected %f, got %f", i, x, got)
		}
		x = 0.99*x + 0.01
	}
}

package control

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestNone(t *testing.T) {
	if u := NewNone().Compute(3.5); u != 0 {
		t.Errorf("expected zero control, got %f", u)
	}
}

func TestManual(t *testing.T) {
	m := NewManual(0.25)
	if u := m.Compute(10); u != 0.25 {
		t.Errorf("expected 0.25, got %f", u)
	}
	m.SetControl(-1)
	if u := m.Compute(10); u != -1 {
		t.Errorf("expected -1 after SetControl, got %f", u)
	}
}

func TestPID(t *testing.T) {
	ctrl := NewPID(10.0, 0.1, 5.0, 0.0)
	u := ctrl.Compute(1.0)
	if u >= 0 {
		t.Error("PID should output negative control for positive error")
	}

	ctrl.Reset()
	ctrl.SetParam("Kp", 1)
	ctrl.SetParam("Ki", 0)
	ctrl.SetParam("Kd", 0)
	if u := ctrl.Compute(0.5); u != -0.5 {
		t.Errorf("expected pure proportional -0.5, got %f", u)
	}
	if got := ctrl.GetParams()["Kp"]; got != 1 {
		t.Errorf("expected Kp=1, got %f", got)
	}
}

func TestPIDIntegratesPerSample(t *testing.T) {
	ctrl := NewPID(0, 1, 0, 0)
	ctrl.Compute(1)
	u := ctrl.Compute(1)
	if u != -2 {
		t.Errorf("expected integral of two samples -2, got %f", u)
	}
}

func TestLQR(t *testing.T) {
	ctrl := NewLQR(0.5, 1.0)
	if u := ctrl.Compute(1.0); u != 0 {
		t.Errorf("expected zero control at target, got %f", u)
	}
	if u := ctrl.Compute(3.0); u != -1 {
		t.Errorf("expected -1, got %f", u)
	}
}

func TestRiccatiGain(t *testing.T) {
	k, err := RiccatiGain(0.9, 1, 100, 0.42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k <= 0 || k > 0.9+1e-9 {
		t.Errorf("gain %f outside (0, 0.9]", k)
	}
	if closed := math.Abs(0.9 - k); closed >= 1 {
		t.Errorf("closed loop pole %f not stable", closed)
	}

	// unstable mode with no actuation
	if _, err := RiccatiGain(1.1, 0, 1, 1); !errors.Is(err, ErrNoGain) {
		t.Errorf("expected ErrNoGain, got %v", err)
	}
	if _, err := RiccatiGain(0.9, 1, 1, 0); !errors.Is(err, ErrNoGain) {
		t.Errorf("expected ErrNoGain for r=0, got %v", err)
	}
}

func TestSampledHoldsBetweenPeriods(t *testing.T) {
	ctx := context.Background()
	s, err := NewSampled(NewLQR(1, 0), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	states := []float64{2, 5, 7, 4, 9}
	want := []float64{-2, -2, -2, -4, -4}
	for step, x := range states {
		d, err := s.Act(ctx, step, x)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if d.Action != want[step] {
			t.Errorf("step %d: expected %f, got %f", step, want[step], d.Action)
		}
		if d.Resolved != (step%3 == 0) {
			t.Errorf("step %d: resolved=%v", step, d.Resolved)
		}
	}
	if s.Held() != -4 {
		t.Errorf("expected held -4, got %f", s.Held())
	}
	s.Reset()
	if s.Held() != 0 {
		t.Errorf("expected held 0 after reset, got %f", s.Held())
	}
}

func TestSampledInvalidPeriod(t *testing.T) {
	if _, err := NewSampled(NewNone(), 0); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestSampledCancelled(t *testing.T) {
	s, _ := NewSampled(NewNone(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Act(ctx, 0, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLimit(t *testing.T) {
	law := Limit(NewLQR(10, 0), -1, 1)
	if u := law.Compute(5); u != -1 {
		t.Errorf("expected saturation at -1, got %f", u)
	}
	if u := law.Compute(-0.05); math.Abs(u-0.5) > 1e-12 {
		t.Errorf("expected 0.5, got %f", u)
	}
}

func TestTunableOf(t *testing.T) {
	pid := NewPID(1, 0, 0, 0)
	s, err := NewSampled(Limit(pid, -1, 1), 5)
	if err != nil {
		t.Fatal(err)
	}
	tun, ok := TunableOf(s)
	if !ok {
		t.Fatal("expected the PID to be found through Sampled and Limit")
	}
	tun.SetParam("Kp", 0.5)
	if pid.Kp != 0.5 {
		t.Errorf("expected Kp=0.5, got %f", pid.Kp)
	}

	none, err := NewSampled(NewNone(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := TunableOf(none); ok {
		t.Error("zero-input law is not tunable")
	}
}

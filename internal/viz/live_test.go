package viz

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/mpcsim/internal/control"
	"github.com/san-kum/mpcsim/internal/plant"
	"github.com/san-kum/mpcsim/internal/sim"
)

func restartNone(steps int) Restart {
	return func(obs sim.Observer) (*sim.Session, error) {
		policy, err := control.NewSampled(control.NewManual(-0.1), 5)
		if err != nil {
			return nil, err
		}
		s := sim.New(policy, plant.Nominal())
		s.AddObserver(obs)
		return s.NewSession(1.0, sim.Config{Steps: steps})
	}
}

func key(k string) tea.KeyMsg {
	if k == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModelSteps(t *testing.T) {
	m, err := NewModel(context.Background(), "manual", restartNone(10), time.Millisecond)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}

	m = update(t, m, TickMsg(time.Now()))
	if m.Session().T() != 1 {
		t.Fatalf("expected 1 step after tick, got %d", m.Session().T())
	}

	m = update(t, m, key(" "))
	m = update(t, m, TickMsg(time.Now()))
	if m.Session().T() != 1 {
		t.Fatalf("paused model advanced to %d", m.Session().T())
	}
	m = update(t, m, key("n"))
	if m.Session().T() != 2 {
		t.Fatalf("single step: expected 2, got %d", m.Session().T())
	}

	m = update(t, m, key(" "))
	m = update(t, m, key("+"))
	m = update(t, m, key("+"))
	for i := 0; i < 5; i++ {
		m = update(t, m, TickMsg(time.Now()))
	}
	if !m.Session().Done() || m.Session().T() != 10 {
		t.Fatalf("expected finished run, got t=%d", m.Session().T())
	}

	view := m.View()
	if !strings.Contains(view, "MANUAL") || !strings.Contains(view, "DONE") {
		t.Errorf("unexpected view:\n%s", view)
	}
	if !strings.Contains(view, "Re-plans") {
		t.Error("view should report re-plans")
	}
}

func TestModelReset(t *testing.T) {
	m, err := NewModel(context.Background(), "manual", restartNone(4), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	m = update(t, m, TickMsg(time.Now()))
	m = update(t, m, TickMsg(time.Now()))
	m = update(t, m, key("r"))
	if m.Session().T() != 0 {
		t.Errorf("expected restart at step 0, got %d", m.Session().T())
	}
	if m.track.resolves != 0 {
		t.Errorf("expected fresh tracker, got %d resolves", m.track.resolves)
	}
}

func restartPID(steps int) Restart {
	return func(obs sim.Observer) (*sim.Session, error) {
		pid := control.NewPID(1, 0, 0, 0)
		policy, err := control.NewSampled(control.Limit(pid, -1, 1), 1)
		if err != nil {
			return nil, err
		}
		s := sim.New(policy, plant.Nominal())
		s.AddObserver(obs)
		return s.NewSession(1.0, sim.Config{Steps: steps})
	}
}

func TestModelTunesGains(t *testing.T) {
	m, err := NewModel(context.Background(), "pid", restartPID(10), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Params()["Kp"]; got != 1 {
		t.Fatalf("expected Kp=1, got %f", got)
	}

	// Kd, Ki, Kp, Target
	m = update(t, m, key("j"))
	m = update(t, m, key("j"))
	m = update(t, m, key("l"))
	if got := m.Params()["Kp"]; math.Abs(got-1.1) > 1e-12 {
		t.Fatalf("expected Kp=1.1, got %f", got)
	}
	m = update(t, m, key("k"))
	m = update(t, m, key("l"))
	if got := m.Params()["Ki"]; math.Abs(got-0.01) > 1e-12 {
		t.Errorf("expected Ki=0.01 from a zero gain, got %f", got)
	}

	m = update(t, m, key("r"))
	if got := m.Params()["Kp"]; math.Abs(got-1.1) > 1e-12 {
		t.Errorf("restart should keep tuned Kp, got %f", got)
	}
	if !strings.Contains(m.View(), "Kp") {
		t.Error("view should list the gains")
	}

	manual, err := NewModel(context.Background(), "manual", restartNone(4), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	manual = update(t, manual, key("l"))
	if manual.Params() != nil {
		t.Error("manual input has no gains")
	}
}

func TestModelQuit(t *testing.T) {
	m, err := NewModel(context.Background(), "manual", restartNone(4), 0)
	if err != nil {
		t.Fatal(err)
	}
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestModelStepError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m, err := NewModel(ctx, "manual", restartNone(4), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	m = update(t, m, TickMsg(time.Now()))
	if !errors.Is(m.Err(), context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", m.Err())
	}
	if !strings.Contains(m.View(), "ERROR") {
		t.Error("view should show error status")
	}
}

func TestNewModelRestartError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewModel(context.Background(), "x", func(sim.Observer) (*sim.Session, error) { return nil, boom }, 0)
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline(nil, 3); got != "───" {
		t.Errorf("empty sparkline = %q", got)
	}
	if got := Sparkline([]float64{0, 1}, 4); got != "▁█" {
		t.Errorf("sparkline = %q", got)
	}
	if got := []rune(Sparkline([]float64{1, 2, 3, 4, 5}, 3)); len(got) != 3 {
		t.Errorf("expected 3 cells, got %d", len(got))
	}
}

func TestThemes(t *testing.T) {
	if GetTheme("retro").Name != "retro" {
		t.Error("expected retro theme")
	}
	if GetTheme("nope").Name != Themes[0].Name {
		t.Error("unknown theme should fall back to the first")
	}
	if Themes[len(Themes)-1].next().Name != Themes[0].Name {
		t.Error("theme cycle should wrap")
	}
}

package viz

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/mpcsim/internal/control"
	"github.com/san-kum/mpcsim/internal/sim"
)

const (
	graphWidth  = 60
	graphHeight = 10
	maxPerFrame = 50
	minGainStep = 0.01
)

type TickMsg time.Time

// Restart builds a fresh session whose simulator reports to obs.
type Restart func(obs sim.Observer) (*sim.Session, error)

// tracker records what the policy decided on the latest step.
type tracker struct {
	last      control.Decision
	resolves  int
	fallbacks int
}

func (tr *tracker) OnStep(t int, x, u float64, d control.Decision) {
	tr.last = d
	if d.Resolved {
		tr.resolves++
	}
	if d.Fallback {
		tr.fallbacks++
	}
}

// Model steps a session on a timer and renders its histories.
type Model struct {
	ctx      context.Context
	title    string
	restart  Restart
	sess     *sim.Session
	track    *tracker
	err      error
	running  bool
	perFrame int
	frame    time.Duration
	theme    Theme
	styles   Styles
	showHelp bool

	// gain tuning for feedback baselines; overrides survive a restart
	tune      control.Tunable
	params    []string
	selected  int
	overrides map[string]float64
}

// NewModel starts a session through restart. frame is the tick interval.
func NewModel(ctx context.Context, title string, restart Restart, frame time.Duration) (Model, error) {
	if frame <= 0 {
		frame = time.Second / 30
	}
	m := Model{
		ctx:       ctx,
		title:     title,
		restart:   restart,
		running:   true,
		perFrame:  1,
		frame:     frame,
		theme:     Themes[0],
		styles:    NewStyles(Themes[0]),
		overrides: make(map[string]float64),
	}
	if err := m.reset(); err != nil {
		return Model{}, err
	}
	return m, nil
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.frame, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update handles input events and steps the loop.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "n":
			if !m.running {
				m.advance(1)
			}
		case "r":
			if err := m.reset(); err != nil {
				m.err = err
			}
		case "+", "=":
			m.perFrame = min(maxPerFrame, m.perFrame*2)
		case "-", "_":
			m.perFrame = max(1, m.perFrame/2)
		case "t":
			m.theme = m.theme.next()
			m.styles = NewStyles(m.theme)
		case "up", "k":
			if len(m.params) > 0 {
				m.selected = (m.selected + len(m.params) - 1) % len(m.params)
			}
		case "down", "j":
			if len(m.params) > 0 {
				m.selected = (m.selected + 1) % len(m.params)
			}
		case "left", "h":
			m.adjust(-1)
		case "right", "l":
			m.adjust(1)
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			m.advance(m.perFrame)
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) advance(n int) {
	for i := 0; i < n && m.err == nil && !m.sess.Done(); i++ {
		if err := m.sess.Step(m.ctx); err != nil {
			m.err = err
			m.running = false
		}
	}
}

func (m *Model) reset() error {
	track := &tracker{}
	sess, err := m.restart(track)
	if err != nil {
		return err
	}
	m.sess, m.track, m.err = sess, track, nil
	m.bindTunable()
	return nil
}

func (m *Model) bindTunable() {
	tune, ok := control.TunableOf(m.sess.Policy())
	if !ok {
		m.tune, m.params = nil, nil
		return
	}
	for name, v := range m.overrides {
		tune.SetParam(name, v)
	}
	params := tune.GetParams()
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	m.tune, m.params = tune, names
	if m.selected >= len(names) {
		m.selected = 0
	}
}

// adjust moves the selected parameter by 10% of its magnitude.
func (m *Model) adjust(dir float64) {
	if m.tune == nil {
		return
	}
	name := m.params[m.selected]
	v := m.tune.GetParams()[name]
	v += dir * math.Max(minGainStep, 0.1*math.Abs(v))
	m.tune.SetParam(name, v)
	m.overrides[name] = v
}

// Params returns the current values of the tunable parameters, or nil when
// the policy has none.
func (m Model) Params() map[string]float64 {
	if m.tune == nil {
		return nil
	}
	return m.tune.GetParams()
}

// Session exposes the current session.
func (m Model) Session() *sim.Session { return m.sess }

// Err is the error that stopped the loop, if any.
func (m Model) Err() error { return m.err }

func (m Model) status() string {
	switch {
	case m.err != nil:
		return m.styles.Warn.Render("ERROR")
	case m.sess.Done():
		return m.styles.Done.Render("DONE")
	case m.running:
		return m.styles.Running.Render("RUNNING")
	default:
		return m.styles.Paused.Render("PAUSED")
	}
}

func tail(vs []float64, n int) []float64 {
	if len(vs) > n {
		return vs[len(vs)-n:]
	}
	return vs
}

// View renders the TUI interface.
func (m Model) View() string {
	res := m.sess.Result()
	st := m.styles

	var s strings.Builder
	s.WriteString(st.Header.Render(strings.ToUpper(m.title)) + "\n")
	progress := float64(m.sess.T()) / float64(m.sess.Steps())
	s.WriteString(fmt.Sprintf("%s  %s %d/%d  x%d\n\n", m.status(), ProgressBar(progress, 20), m.sess.T(), m.sess.Steps(), m.perFrame))

	series := [][]float64{tail(res.States, graphWidth)}
	caption := "x"
	if len(res.Applied) > 0 {
		series = append(series, tail(res.Applied, graphWidth))
		caption = "x (blue), u (red)"
	}
	chart := asciigraph.PlotMany(series,
		asciigraph.Height(graphHeight),
		asciigraph.Width(graphWidth),
		asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red),
		asciigraph.Caption(caption),
	)
	graph := st.Graph.Render(chart)

	var stats strings.Builder
	row := func(label, value string) {
		stats.WriteString(st.Label.Render(label) + st.Value.Render(value) + "\n")
	}
	row("Step", fmt.Sprintf("%d", m.sess.T()))
	row("State", fmt.Sprintf("%.4f", m.sess.State()))
	u := 0.0
	if len(res.Applied) > 0 {
		u = res.Applied[len(res.Applied)-1]
	}
	row("Input", fmt.Sprintf("%.4f", u))
	row("Re-plans", fmt.Sprintf("%d", m.track.resolves))
	row("Fallbacks", fmt.Sprintf("%d", m.track.fallbacks))
	if m.track.last.Status != "" {
		row("Status", m.track.last.Status)
	}
	if m.tune != nil {
		stats.WriteString("\n")
		values := m.tune.GetParams()
		for i, name := range m.params {
			marker := "  "
			if i == m.selected {
				marker = "> "
			}
			row(marker+name, fmt.Sprintf("%.4f", values[name]))
		}
	}
	stats.WriteString("\n" + st.Label.Render("x") + Sparkline(res.States, 24) + "\n")
	if m.err != nil {
		stats.WriteString("\n" + st.Warn.Render(m.err.Error()) + "\n")
	}
	stats.WriteString(st.Help.Render("SP:Pause N:Step R:Reset Q:Quit\n+/-:Speed T:Theme ?:Help"))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, graph, st.Panel.Render(stats.String())))

	if m.showHelp {
		help := st.Panel.Render(strings.Join([]string{
			"Space  Pause/Resume",
			"N      Step once while paused",
			"R      Restart the run",
			"+ / -  Steps per frame",
			"T      Cycle themes (" + strings.Join(ThemeNames(), ", ") + ")",
			"J / K  Select gain (pid)",
			"H / L  Lower/raise gain (pid)",
			"?      Toggle this help",
			"Q      Quit",
		}, "\n"))
		return help + "\n\n" + s.String()
	}
	return s.String()
}

// Package tui prints a redrawn text gauge of a running loop.
package tui

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/san-kum/mpcsim/internal/control"
)

const (
	width       = 61
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer implements sim.Observer. It redraws at most frameRate times
// a second; frameRate <= 0 redraws on every step.
type LiveRenderer struct {
	w         io.Writer
	title     string
	scale     float64
	frameRate int
	lastFrame time.Time
	now       func() time.Time
	trail     []int
}

// NewLiveRenderer draws states in [-scale, scale].
func NewLiveRenderer(w io.Writer, title string, scale float64, frameRate int) *LiveRenderer {
	if scale <= 0 {
		scale = 1
	}
	return &LiveRenderer{
		w:         w,
		title:     title,
		scale:     scale,
		frameRate: frameRate,
		now:       time.Now,
		trail:     make([]int, 0, 8),
	}
}

func (r *LiveRenderer) OnStep(t int, x, u float64, d control.Decision) {
	if r.frameRate > 0 {
		now := r.now()
		if now.Sub(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
			return
		}
		r.lastFrame = now
	}

	col := r.column(x)
	r.trail = append(r.trail, col)
	if len(r.trail) > 8 {
		r.trail = r.trail[1:]
	}
	fmt.Fprint(r.w, r.frame(t, x, u, d))
}

// column maps v onto the gauge, clamping at the edges.
func (r *LiveRenderer) column(v float64) int {
	c := int(math.Round((v/r.scale + 1) / 2 * float64(width-1)))
	return max(0, min(width-1, c))
}

func (r *LiveRenderer) frame(t int, x, u float64, d control.Decision) string {
	gauge := []rune(strings.Repeat("-", width))
	gauge[width/2] = '|'
	for _, c := range r.trail {
		gauge[c] = '.'
	}
	gauge[r.column(x)] = 'O'

	input := []rune(strings.Repeat(" ", width))
	input[width/2] = '|'
	input[r.column(u)] = '^'

	var b strings.Builder
	b.WriteString(clearScreen)
	b.WriteString(fmt.Sprintf("  %s  step=%d\n", r.title, t))
	b.WriteString("  x " + string(gauge) + "\n")
	b.WriteString("  u " + string(input) + "\n")
	b.WriteString(fmt.Sprintf("  x=%+.4f u=%+.4f", x, u))
	if d.Resolved {
		b.WriteString("  re-planned: " + d.Status)
	}
	if d.Fallback {
		b.WriteString("  FALLBACK")
	}
	b.WriteString("\n")
	return b.String()
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.w, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.w, showCursor) }

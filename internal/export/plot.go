// Package export renders run trajectories as PNG or SVG plots.
package export

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var ErrNoData = errors.New("export: no data to plot")

var (
	stateColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	inputColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// Size of exported figures in inches.
const (
	Width  = 8.0
	Height = 5.0
	DPI    = 150
)

// TrajectoryPlot draws the state x(t) and the held input u(t) of one run.
// applied may be shorter than states; the input is drawn as a step line.
func TrajectoryPlot(title string, states, applied []float64) (*plot.Plot, error) {
	if len(states) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "step"
	p.Y.Label.Text = "value"
	stylePlot(p)

	x, err := plotter.NewLine(series(states))
	if err != nil {
		return nil, fmt.Errorf("state line: %w", err)
	}
	x.LineStyle.Width = vg.Points(2)
	x.LineStyle.Color = stateColor
	p.Add(x)
	p.Legend.Add("x", x)

	if len(applied) > 0 {
		u, err := plotter.NewLine(series(applied))
		if err != nil {
			return nil, fmt.Errorf("input line: %w", err)
		}
		u.StepStyle = plotter.PostStep
		u.LineStyle.Width = vg.Points(1.5)
		u.LineStyle.Color = inputColor
		u.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(u)
		p.Legend.Add("u", u)
	}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p, nil
}

func series(vs []float64) plotter.XYs {
	pts := make(plotter.XYs, len(vs))
	for i, v := range vs {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	return pts
}

func limitedTicker(maxLabels int, labelFmt string) plot.Ticker {
	if maxLabels < 2 {
		maxLabels = 2
	}
	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
			return nil
		}
		if min == max {
			return []plot.Tick{{Value: min, Label: fmt.Sprintf(labelFmt, min)}}
		}
		step := (max - min) / float64(maxLabels-1)
		ticks := make([]plot.Tick, 0, maxLabels)
		for i := 0; i < maxLabels; i++ {
			v := min + float64(i)*step
			ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf(labelFmt, v)})
		}
		return ticks
	})
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.Title.Padding = vg.Points(8)

	p.X.Label.TextStyle.Font.Size = vg.Points(12)
	p.Y.Label.TextStyle.Font.Size = vg.Points(12)
	p.X.Padding = vg.Points(8)
	p.Y.Padding = vg.Points(8)

	p.X.Tick.Label.Font.Size = vg.Points(10)
	p.Y.Tick.Label.Font.Size = vg.Points(10)

	p.X.Tick.Marker = limitedTicker(11, "%.0f")
	p.Y.Tick.Marker = limitedTicker(9, "%.2f")
}

// Format picks the output format from a file extension.
func Format(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		return "png", nil
	case ".svg":
		return "svg", nil
	default:
		return "", fmt.Errorf("export: unsupported format %q", ext)
	}
}

// WriteTo renders p in format ("png" or "svg") to w.
func WriteTo(w io.Writer, p *plot.Plot, format string) error {
	switch format {
	case "png":
		return writePNG(w, p)
	case "svg":
		return writeSVG(w, p)
	default:
		return fmt.Errorf("export: unsupported format %q", format)
	}
}

// Save writes p to path, choosing the format from the extension.
func Save(p *plot.Plot, path string) error {
	format, err := Format(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTo(f, p, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writePNG(w io.Writer, p *plot.Plot) error {
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(Width)*vg.Inch, vg.Length(Height)*vg.Inch),
		vgimg.UseDPI(DPI),
	)
	p.Draw(draw.New(c))

	pngc := vgimg.PngCanvas{Canvas: c}
	if _, err := pngc.WriteTo(w); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return nil
}

package export

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgsvg"
)

func writeSVG(w io.Writer, p *plot.Plot) error {
	c := vgsvg.New(vg.Length(Width)*vg.Inch, vg.Length(Height)*vg.Inch)
	p.Draw(draw.New(c))
	if _, err := c.WriteTo(w); err != nil {
		return fmt.Errorf("cannot write svg: %w", err)
	}
	return nil
}

package analysis

import "strings"

type Point struct{ X, Y float64 }

// Portrait is a set of points in a 2D phase plane.
type Portrait struct {
	Points []Point
}

// NewPortrait pairs x[t] with x[t+1]. Fixed points of the closed loop lie on
// the diagonal.
func NewPortrait(states []float64) *Portrait {
	p := &Portrait{}
	for t := 0; t+1 < len(states); t++ {
		p.Points = append(p.Points, Point{X: states[t], Y: states[t+1]})
	}
	return p
}

// StateInput pairs x[t] with the input applied at t.
func StateInput(states, applied []float64) *Portrait {
	p := &Portrait{}
	for t := 0; t < len(applied) && t < len(states); t++ {
		p.Points = append(p.Points, Point{X: states[t], Y: applied[t]})
	}
	return p
}

// ASCII draws the portrait on a width x height grid with axes through the
// origin when it is visible.
func (p *Portrait) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX, maxX = min(minX, pt.X), max(maxX, pt.X)
		minY, maxY = min(minY, pt.Y), max(maxY, pt.Y)
	}

	rangeX, rangeY := maxX-minX, maxY-minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX, rangeY = maxX-minX, maxY-minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}
	col := func(x float64) int { return int((x - minX) / rangeX * float64(width-1)) }
	row := func(y float64) int { return height - 1 - int((y-minY)/rangeY*float64(height-1)) }

	for _, pt := range p.Points {
		r, c := row(pt.Y), col(pt.X)
		if r >= 0 && r < height && c >= 0 && c < width {
			canvas[r][c] = '•'
		}
	}

	if minX <= 0 && maxX >= 0 {
		c := col(0)
		for r := 0; r < height; r++ {
			if canvas[r][c] == ' ' {
				canvas[r][c] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		r := row(0)
		for c := 0; c < width; c++ {
			if canvas[r][c] == ' ' {
				canvas[r][c] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, line := range canvas {
		sb.WriteString(string(line))
		sb.WriteRune('\n')
	}
	return sb.String()
}

package csp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/mpcsim/internal/grid"
	"github.com/san-kum/mpcsim/internal/opt"
)

// Puzzle is an n*n Sudoku with n = Box*Box. Zero cells are blank.
type Puzzle struct {
	Box   int
	Cells *grid.Array[int]
}

// Size is the side length of the grid.
func (p *Puzzle) Size() int { return p.Box * p.Box }

// ParseSudoku reads a puzzle as lines of characters. Lines are trimmed and
// concatenated; a digit 1..n is a given and any other character is blank.
func ParseSudoku(r io.Reader, box int) (*Puzzle, error) {
	if box < 1 || box > 3 {
		return nil, fmt.Errorf("%w: box must be 1, 2 or 3, got %d", ErrSize, box)
	}
	n := box * box

	var chars []rune
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		chars = append(chars, []rune(strings.TrimSpace(sc.Text()))...)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(chars) != n*n {
		return nil, fmt.Errorf("%w: expected %d cells, got %d", ErrSize, n*n, len(chars))
	}

	cells := make([]int, n*n)
	for i, ch := range chars {
		if ch >= '1' && ch <= '9' {
			v := int(ch - '0')
			if v > n {
				return nil, fmt.Errorf("%w: value %d at cell %d exceeds %d", ErrSize, v, i, n)
			}
			cells[i] = v
		}
	}
	g, err := grid.FromSlice(cells, n, n)
	if err != nil {
		return nil, err
	}
	return &Puzzle{Box: box, Cells: g}, nil
}

// SudokuModel holds G_{i,j,v} = 1 when cell (i, j) takes value v+1.
type SudokuModel struct {
	Puzzle *Puzzle
	Model  opt.Model
	G      *grid.Array[opt.Var]
}

// BuildSudoku declares the cell, row, column and subgrid families and pins
// the givens with a lower bound of one.
func BuildSudoku(env opt.Env, p *Puzzle) (*SudokuModel, error) {
	box, n := p.Box, p.Size()
	m, err := env.NewModel("sudoku")
	if err != nil {
		return nil, err
	}
	g, err := binaryFamily(m, func(idx []int) string {
		return fmt.Sprintf("G_%d_%d_%d", idx[0], idx[1], idx[2])
	}, n, n, n)
	if err != nil {
		return nil, err
	}
	s := &SudokuModel{Puzzle: p, Model: m, G: g}

	lane := func(name string, axis int, idx ...int) error {
		vars, err := g.Lane(axis, idx...)
		if err != nil {
			return err
		}
		return sumConstr(m, name, vars, opt.Equal, 1)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if err := lane(fmt.Sprintf("V_%d_%d", i, j), 2, i, j, 0); err != nil {
				return nil, err
			}
		}
	}
	for i := 0; i < n; i++ {
		for v := 0; v < n; v++ {
			if err := lane(fmt.Sprintf("R_%d_%d", i, v), 1, i, 0, v); err != nil {
				return nil, err
			}
		}
	}
	for j := 0; j < n; j++ {
		for v := 0; v < n; v++ {
			if err := lane(fmt.Sprintf("C_%d_%d", j, v), 0, 0, j, v); err != nil {
				return nil, err
			}
		}
	}
	for i0 := 0; i0 < box; i0++ {
		for j0 := 0; j0 < box; j0++ {
			for v := 0; v < n; v++ {
				idxs := make([][]int, 0, n)
				for i1 := 0; i1 < box; i1++ {
					for j1 := 0; j1 < box; j1++ {
						idxs = append(idxs, []int{i0*box + i1, j0*box + j1, v})
					}
				}
				vars, err := g.Pick(idxs...)
				if err != nil {
					return nil, err
				}
				if err := sumConstr(m, fmt.Sprintf("Sub_%d_%d_%d", v, i0, j0), vars, opt.Equal, 1); err != nil {
					return nil, err
				}
			}
		}
	}

	var pinErr error
	p.Cells.Each(func(idx []int, val int) {
		if val == 0 || pinErr != nil {
			return
		}
		pinErr = m.SetBounds(g.At(idx[0], idx[1], val-1), 1, 1)
	})
	if pinErr != nil {
		return nil, pinErr
	}
	return s, nil
}

// Sudoku builds and solves the puzzle.
func Sudoku(ctx context.Context, env opt.Env, p *Puzzle) (*SudokuModel, error) {
	s, err := BuildSudoku(env, p)
	if err != nil {
		return nil, err
	}
	if err := s.Model.Optimize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Solution returns the filled grid.
func (s *SudokuModel) Solution() (*grid.Array[int], error) {
	vals, err := values(s.Model, s.G)
	if err != nil {
		return nil, err
	}
	n := s.Puzzle.Size()
	out, err := grid.New[int](n, n)
	if err != nil {
		return nil, err
	}
	vals.Each(func(idx []int, x float64) {
		if math.Round(x) == 1 {
			_ = out.Set(idx[2]+1, idx[0], idx[1])
		}
	})
	return out, nil
}

var (
	givenCell  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	filledCell = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	rule       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Render draws the solution, highlighting the givens.
func (s *SudokuModel) Render() (string, error) {
	sol, err := s.Solution()
	if err != nil {
		return "", err
	}
	return RenderGrid(sol, s.Puzzle), nil
}

// RenderGrid draws g with subgrid rules; cells given in p are highlighted.
func RenderGrid(g *grid.Array[int], p *Puzzle) string {
	box, n := p.Box, p.Size()
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 && i%box == 0 {
			b.WriteString(rule.Render(strings.Repeat("-", 2*n+2*(box-1)-1)) + "\n")
		}
		for j := 0; j < n; j++ {
			if j > 0 {
				b.WriteString(" ")
				if j%box == 0 {
					b.WriteString(rule.Render("|") + " ")
				}
			}
			v := g.At(i, j)
			cell := "."
			if v > 0 {
				cell = fmt.Sprintf("%d", v)
			}
			if p.Cells.At(i, j) != 0 {
				b.WriteString(givenCell.Render(cell))
			} else {
				b.WriteString(filledCell.Render(cell))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// String prints the grid as digits, one row per line.
func (p *Puzzle) String() string {
	var b strings.Builder
	n := p.Size()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			fmt.Fprintf(&b, "%d", p.Cells.At(i, j))
		}
		b.WriteString("\n")
	}
	return b.String()
}

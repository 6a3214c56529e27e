package opt

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Exporter is a model that can write itself and its solution as text.
type Exporter interface {
	WriteLP(w io.Writer) error
	WriteSolution(w io.Writer) error
}

var _ Exporter = (*Problem)(nil)

// WriteLP writes the model in CPLEX LP format.
func (p *Problem) WriteLP(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "\\ Model %s\n", p.name)
	fmt.Fprintln(bw, p.obj.Sense.String())
	fmt.Fprintf(bw, " obj: %s\n", p.formatQuad(p.obj.Expr))

	fmt.Fprintln(bw, "Subject To")
	for _, c := range p.constrs {
		fmt.Fprintf(bw, " %s: %s %s %s\n", c.Name, p.formatLin(c.Expr), c.Sense, formatNum(c.RHS))
	}

	fmt.Fprintln(bw, "Bounds")
	for _, v := range p.vars {
		if v.Kind == Binary && v.Lower == 0 && v.Upper == 1 {
			continue
		}
		fmt.Fprintf(bw, " %s\n", formatBounds(v))
	}

	var bins, ints []string
	for _, v := range p.vars {
		switch v.Kind {
		case Binary:
			bins = append(bins, v.Name)
		case Integer:
			ints = append(ints, v.Name)
		}
	}
	if len(bins) > 0 {
		fmt.Fprintln(bw, "Binaries")
		fmt.Fprintf(bw, " %s\n", strings.Join(bins, " "))
	}
	if len(ints) > 0 {
		fmt.Fprintln(bw, "Generals")
		fmt.Fprintf(bw, " %s\n", strings.Join(ints, " "))
	}
	fmt.Fprintln(bw, "End")
	return bw.Flush()
}

// WriteSolution writes the current solution as "name value" lines.
func (p *Problem) WriteSolution(w io.Writer) error {
	if p.values == nil {
		return fmt.Errorf("%w: status %s", ErrNoSolution, p.status)
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Solution for model %s\n", p.name)
	fmt.Fprintf(bw, "# Objective value = %s\n", formatNum(p.objValue))
	for i, v := range p.vars {
		fmt.Fprintf(bw, "%s %s\n", v.Name, formatNum(p.values[i]))
	}
	return bw.Flush()
}

func (p *Problem) formatLin(e LinExpr) string {
	var sb strings.Builder
	for i, t := range e.Terms {
		writeTerm(&sb, i == 0, t.Coef, p.vars[t.Var.Index()].Name)
	}
	if e.Constant != 0 || len(e.Terms) == 0 {
		writeTerm(&sb, len(e.Terms) == 0, e.Constant, "")
	}
	return sb.String()
}

// formatQuad uses the LP convention [ ... ] / 2, so coefficients are
// doubled inside the brackets.
func (p *Problem) formatQuad(q QuadExpr) string {
	lin := q.Lin.Canonical()
	var sb strings.Builder
	sb.WriteString(p.formatLin(LinExpr{Terms: lin.Terms}))
	if q.IsLinear() {
		return sb.String()
	}
	sb.WriteString(" + [ ")
	first := true
	for _, t := range q.Quad {
		if t.Coef == 0 {
			continue
		}
		var name string
		if t.I == t.J {
			name = p.vars[t.I.Index()].Name + " ^ 2"
		} else {
			name = p.vars[t.I.Index()].Name + " * " + p.vars[t.J.Index()].Name
		}
		writeTerm(&sb, first, 2*t.Coef, name)
		first = false
	}
	sb.WriteString(" ] / 2")
	if lin.Constant != 0 {
		writeTerm(&sb, false, lin.Constant, "")
	}
	return sb.String()
}

func writeTerm(sb *strings.Builder, first bool, coef float64, name string) {
	switch {
	case first && coef < 0:
		sb.WriteString("- ")
	case !first && coef < 0:
		sb.WriteString(" - ")
	case !first:
		sb.WriteString(" + ")
	}
	mag := math.Abs(coef)
	if name == "" {
		sb.WriteString(formatNum(mag))
		return
	}
	if mag != 1 {
		sb.WriteString(formatNum(mag))
		sb.WriteByte(' ')
	}
	sb.WriteString(name)
}

func formatBounds(v Variable) string {
	lo, hi := math.IsInf(v.Lower, -1), math.IsInf(v.Upper, 1)
	switch {
	case lo && hi:
		return v.Name + " free"
	case v.Lower == v.Upper:
		return v.Name + " = " + formatNum(v.Lower)
	case lo:
		return "-infinity <= " + v.Name + " <= " + formatNum(v.Upper)
	case hi:
		return v.Name + " >= " + formatNum(v.Lower)
	}
	return formatNum(v.Lower) + " <= " + v.Name + " <= " + formatNum(v.Upper)
}

func formatNum(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "infinity"
	case math.IsInf(f, -1):
		return "-infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

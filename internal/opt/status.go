package opt

import "fmt"

// Status is the outcome of the most recent Optimize call.
type Status int

const (
	StatusNotSolved Status = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	StatusTimeLimit
	StatusIterationLimit
	StatusNodeLimit
	StatusNumeric
)

var statusNames = map[Status]string{
	StatusNotSolved:      "not_solved",
	StatusOptimal:        "optimal",
	StatusInfeasible:     "infeasible",
	StatusUnbounded:      "unbounded",
	StatusTimeLimit:      "time_limit",
	StatusIterationLimit: "iteration_limit",
	StatusNodeLimit:      "node_limit",
	StatusNumeric:        "numeric",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsOptimal reports whether s carries a usable primal solution.
func (s Status) IsOptimal() bool { return s == StatusOptimal }

// VarKind is the domain of a decision variable.
type VarKind int

const (
	Continuous VarKind = iota
	Binary
	Integer
)

func (k VarKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Binary:
		return "binary"
	case Integer:
		return "integer"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sense is the relation of a linear constraint.
type Sense int

const (
	Equal Sense = iota
	LessEqual
	GreaterEqual
)

func (s Sense) String() string {
	switch s {
	case Equal:
		return "="
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	}
	return "?"
}

// ObjSense is the optimization direction.
type ObjSense int

const (
	Minimize ObjSense = iota
	Maximize
)

func (s ObjSense) String() string {
	if s == Maximize {
		return "Maximize"
	}
	return "Minimize"
}

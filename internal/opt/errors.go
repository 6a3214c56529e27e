package opt

import "errors"

var (
	ErrDuplicateName = errors.New("opt: duplicate name")
	ErrUnknownVar    = errors.New("opt: unknown variable")
	ErrInvalidBounds = errors.New("opt: invalid bounds")
	ErrNoSolution    = errors.New("opt: no solution available")
	ErrNoBackend     = errors.New("opt: no solver backend")
)

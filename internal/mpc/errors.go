package mpc

import "errors"

var (
	ErrInconsistentDims = errors.New("mpc: inconsistent dimensions")
	ErrParameterBounds  = errors.New("mpc: parameter out of range")
)

// Package grid provides fixed-shape multi-dimensional containers indexed by
// integer tuples.
//
// Model builders use [Array] to hold families of decision variables (a
// board of queens, a cube of sudoku assignments) and to reshape solver
// output, so no caller does offset arithmetic by hand.
package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrShape indicates an invalid shape or a shape/data length mismatch.
	ErrShape = errors.New("grid: invalid shape")

	// ErrOutOfRange indicates an index outside the array bounds.
	ErrOutOfRange = errors.New("grid: index out of range")
)

// Array is a row-major, fixed-shape container.
type Array[T any] struct {
	shape   []int
	strides []int
	data    []T
}

// New allocates a zero-filled array with the given shape.
func New[T any](shape ...int) (*Array[T], error) {
	n, strides, err := layout(shape)
	if err != nil {
		return nil, err
	}
	return &Array[T]{
		shape:   append([]int(nil), shape...),
		strides: strides,
		data:    make([]T, n),
	}, nil
}

// FromSlice wraps data in an array of the given shape. The slice is copied.
func FromSlice[T any](data []T, shape ...int) (*Array[T], error) {
	n, strides, err := layout(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), shape)
	}
	return &Array[T]{
		shape:   append([]int(nil), shape...),
		strides: strides,
		data:    append([]T(nil), data...),
	}, nil
}

// Build creates an array by calling fn for every index in row-major order.
// The first error aborts construction.
func Build[T any](fn func(idx []int) (T, error), shape ...int) (*Array[T], error) {
	a, err := New[T](shape...)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(shape))
	for off := range a.data {
		a.unravel(off, idx)
		v, err := fn(idx)
		if err != nil {
			return nil, err
		}
		a.data[off] = v
	}
	return a, nil
}

// Map applies fn to every element of a, preserving the shape.
func Map[T, U any](a *Array[T], fn func(T) (U, error)) (*Array[U], error) {
	out := &Array[U]{
		shape:   append([]int(nil), a.shape...),
		strides: append([]int(nil), a.strides...),
		data:    make([]U, len(a.data)),
	}
	for i, v := range a.data {
		u, err := fn(v)
		if err != nil {
			return nil, err
		}
		out.data[i] = u
	}
	return out, nil
}

func layout(shape []int) (int, []int, error) {
	if len(shape) == 0 {
		return 0, nil, fmt.Errorf("%w: no dimensions", ErrShape)
	}
	strides := make([]int, len(shape))
	n := 1
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] <= 0 {
			return 0, nil, fmt.Errorf("%w: dimension %d has size %d", ErrShape, i, shape[i])
		}
		strides[i] = n
		n *= shape[i]
	}
	return n, strides, nil
}

// Shape returns a copy of the array dimensions.
func (a *Array[T]) Shape() []int { return append([]int(nil), a.shape...) }

// Rank returns the number of dimensions.
func (a *Array[T]) Rank() int { return len(a.shape) }

// Len returns the total number of elements.
func (a *Array[T]) Len() int { return len(a.data) }

// Offset converts an index tuple to its row-major position.
func (a *Array[T]) Offset(idx ...int) (int, error) {
	if len(idx) != len(a.shape) {
		return 0, fmt.Errorf("%w: got %d indices for rank %d", ErrOutOfRange, len(idx), len(a.shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= a.shape[i] {
			return 0, fmt.Errorf("%w: index %v for shape %v", ErrOutOfRange, idx, a.shape)
		}
		off += v * a.strides[i]
	}
	return off, nil
}

func (a *Array[T]) unravel(off int, idx []int) {
	for i, s := range a.strides {
		idx[i] = off / s
		off %= s
	}
}

// Get returns the element at idx.
func (a *Array[T]) Get(idx ...int) (T, error) {
	off, err := a.Offset(idx...)
	if err != nil {
		var zero T
		return zero, err
	}
	return a.data[off], nil
}

// At returns the element at idx and panics when idx is out of range, like
// slice indexing.
func (a *Array[T]) At(idx ...int) T {
	v, err := a.Get(idx...)
	if err != nil {
		panic(err)
	}
	return v
}

// Set stores v at idx.
func (a *Array[T]) Set(v T, idx ...int) error {
	off, err := a.Offset(idx...)
	if err != nil {
		return err
	}
	a.data[off] = v
	return nil
}

// Lane returns the elements along axis with every other coordinate fixed by
// idx. The entry idx[axis] is ignored.
func (a *Array[T]) Lane(axis int, idx ...int) ([]T, error) {
	if axis < 0 || axis >= len(a.shape) {
		return nil, fmt.Errorf("%w: axis %d for rank %d", ErrOutOfRange, axis, len(a.shape))
	}
	pos := append([]int(nil), idx...)
	if len(pos) != len(a.shape) {
		return nil, fmt.Errorf("%w: got %d indices for rank %d", ErrOutOfRange, len(pos), len(a.shape))
	}
	pos[axis] = 0
	base, err := a.Offset(pos...)
	if err != nil {
		return nil, err
	}
	out := make([]T, a.shape[axis])
	for i := range out {
		out[i] = a.data[base+i*a.strides[axis]]
	}
	return out, nil
}

// Pick gathers the elements at the given index tuples, in order.
func (a *Array[T]) Pick(idxs ...[]int) ([]T, error) {
	out := make([]T, 0, len(idxs))
	for _, idx := range idxs {
		v, err := a.Get(idx...)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Each calls fn for every element in row-major order. The idx slice is
// reused between calls.
func (a *Array[T]) Each(fn func(idx []int, v T)) {
	idx := make([]int, len(a.shape))
	for off, v := range a.data {
		a.unravel(off, idx)
		fn(idx, v)
	}
}

// Values returns a row-major copy of the elements.
func (a *Array[T]) Values() []T { return append([]T(nil), a.data...) }

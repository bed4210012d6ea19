// Package gemm defines the data types and messages shared by the systolic
// array and its driver.
package gemm

import (
	"errors"
	"fmt"
)

// PortMode selects how a PE receives its stationary weight.
type PortMode int

const (
	// SeparateWeightPort gives every PE a dedicated weight path.
	SeparateWeightPort PortMode = iota

	// SharedWeightPartialSumPort loads weights through the partial-sum
	// path while the array is in weight-loading mode.
	SharedWeightPartialSumPort
)

// Name returns the name of the port mode.
func (m PortMode) Name() string {
	switch m {
	case SeparateWeightPort:
		return "SeparateWeightPort"
	case SharedWeightPartialSumPort:
		return "SharedWeightPartialSumPort"
	default:
		panic("invalid port mode")
	}
}

// Control signal codes understood by a PE.
const (
	CtrlReset      = 1
	CtrlEmitResult = 2
)

// ErrShapeMismatch reports an operand whose dimensions do not match the
// hardware or the other operand.
var ErrShapeMismatch = errors.New("shape mismatch")

// ErrBusy reports an operation that arrived while the previous one was
// still in flight.
var ErrBusy = errors.New("busy")

// MAC multiplies a weight with an activation and adds the product to a
// partial sum. All arithmetic wraps around in two's complement.
func MAC(psum int32, weight, activation int16) int32 {
	return psum + int32(weight)*int32(activation)
}

// A Matrix is a dense row-major int16 matrix.
type Matrix struct {
	Rows, Cols int
	data       []int16
}

// NewMatrix creates a zero-filled Rows x Cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("invalid matrix shape %dx%d", rows, cols))
	}

	return &Matrix{
		Rows: rows,
		Cols: cols,
		data: make([]int16, rows*cols),
	}
}

// At returns the element at row r, column c.
func (m *Matrix) At(r, c int) int16 {
	m.mustContain(r, c)
	return m.data[r*m.Cols+c]
}

// Set writes the element at row r, column c.
func (m *Matrix) Set(r, c int, v int16) {
	m.mustContain(r, c)
	m.data[r*m.Cols+c] = v
}

func (m *Matrix) mustContain(r, c int) {
	if r < 0 || r >= m.Rows || c < 0 || c >= m.Cols {
		panic(fmt.Sprintf(
			"index (%d, %d) out of range for %dx%d matrix",
			r, c, m.Rows, m.Cols,
		))
	}
}

// Transposed returns a new matrix that is the transpose of m.
func (m *Matrix) Transposed() *Matrix {
	t := NewMatrix(m.Cols, m.Rows)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			t.Set(c, r, m.At(r, c))
		}
	}

	return t
}

// A Vector is a dense int16 vector.
type Vector struct {
	Size int
	data []int16
}

// NewVector creates a zero-filled vector of the given size.
func NewVector(size int) *Vector {
	if size <= 0 {
		panic(fmt.Sprintf("invalid vector size %d", size))
	}

	return &Vector{
		Size: size,
		data: make([]int16, size),
	}
}

// At returns the i-th element.
func (v *Vector) At(i int) int16 {
	v.mustContain(i)
	return v.data[i]
}

// Set writes the i-th element.
func (v *Vector) Set(i int, x int16) {
	v.mustContain(i)
	v.data[i] = x
}

func (v *Vector) mustContain(i int) {
	if i < 0 || i >= v.Size {
		panic(fmt.Sprintf(
			"index %d out of range for vector of size %d", i, v.Size))
	}
}

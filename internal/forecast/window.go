package forecast

import (
	"errors"
	"fmt"
)

// FeatureWidth is the number of features per time step the models are trained on.
const FeatureWidth = 26

// ErrInvalidShape is returned when a window does not have the expected feature width.
var ErrInvalidShape = errors.New("invalid input shape")

// Window is an ordered, fixed-length sequence of feature rows fed to a model
// for one inference call. A Window is never mutated after construction; Roll
// returns a new Window.
type Window struct {
	rows [][]float64
}

// NewWindow copies rows into a new Window. Rows must all have the same width.
func NewWindow(rows [][]float64) (Window, error) {
	if len(rows) == 0 {
		return Window{}, fmt.Errorf("%w: empty window", ErrInvalidShape)
	}
	width := len(rows[0])
	copied := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != width {
			return Window{}, fmt.Errorf("%w: row %d has %d features, expected %d", ErrInvalidShape, i, len(row), width)
		}
		copied[i] = append([]float64(nil), row...)
	}
	return Window{rows: copied}, nil
}

// Len returns the number of time steps.
func (w Window) Len() int {
	return len(w.rows)
}

// Width returns the number of features per step, or 0 for an empty window.
func (w Window) Width() int {
	if len(w.rows) == 0 {
		return 0
	}
	return len(w.rows[0])
}

// Row returns a copy of row i.
func (w Window) Row(i int) []float64 {
	return append([]float64(nil), w.rows[i]...)
}

// At returns the feature j of step i.
func (w Window) At(i, j int) float64 {
	return w.rows[i][j]
}

// Rows returns a deep copy of the window contents.
func (w Window) Rows() [][]float64 {
	out := make([][]float64, len(w.rows))
	for i, row := range w.rows {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Roll drops the oldest step and appends a copy of the newest step with the
// feature at closeIndex replaced by value. The receiver is left untouched.
func (w Window) Roll(value float64, closeIndex int) Window {
	n := len(w.rows)
	if n == 0 {
		return w
	}
	next := make([][]float64, n)
	// Rows are never written after construction, so they can be shared
	// between the old and new window.
	copy(next, w.rows[1:])
	last := append([]float64(nil), w.rows[n-1]...)
	last[closeIndex] = value
	next[n-1] = last
	return Window{rows: next}
}

// ReshapeWindow coerces stored window data into rows of width features.
// Rows wider than width keep their trailing columns. If the rows are ragged
// or narrower, the data is flattened and re-chunked when the element count
// is a multiple of width.
func ReshapeWindow(rows [][]float64, width int) (Window, error) {
	if len(rows) == 0 {
		return Window{}, fmt.Errorf("%w: empty window", ErrInvalidShape)
	}

	uniform := true
	for _, row := range rows {
		if len(row) != len(rows[0]) {
			uniform = false
			break
		}
	}

	if uniform && len(rows[0]) >= width {
		trimmed := make([][]float64, len(rows))
		for i, row := range rows {
			trimmed[i] = row[len(row)-width:]
		}
		return NewWindow(trimmed)
	}

	var flat []float64
	for _, row := range rows {
		flat = append(flat, row...)
	}
	if len(flat) == 0 || len(flat)%width != 0 {
		return Window{}, fmt.Errorf("%w: cannot reshape %d values into rows of %d", ErrInvalidShape, len(flat), width)
	}
	chunked := make([][]float64, 0, len(flat)/width)
	for i := 0; i < len(flat); i += width {
		chunked = append(chunked, flat[i:i+width])
	}
	return NewWindow(chunked)
}

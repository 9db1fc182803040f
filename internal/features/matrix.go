package features

import "gonum.org/v1/gonum/mat"

// Matrix is a dense feature matrix with one row per document. gonum refuses
// zero sized matrices so an empty batch keeps its width but no backing Dense.
type Matrix struct {
	dense   *mat.Dense
	rows    int
	cols    int
	Columns []string
}

func newMatrix(rows, cols int, data []float64, columns []string) *Matrix {
	m := &Matrix{rows: rows, cols: cols, Columns: columns}
	if rows > 0 && cols > 0 {
		m.dense = mat.NewDense(rows, cols, data)
	}
	return m
}

// NewMatrix wraps row-major data. len(data) must equal rows*cols.
func NewMatrix(rows, cols int, data []float64, columns []string) *Matrix {
	return newMatrix(rows, cols, data, columns)
}

func (m *Matrix) Rows() int {
	return m.rows
}

func (m *Matrix) Cols() int {
	return m.cols
}

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []float64 {
	if m.dense == nil {
		return nil
	}
	return mat.Row(nil, i, m.dense)
}

// RowSlices copies the matrix into one slice per row.
func (m *Matrix) RowSlices() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		out[i] = m.Row(i)
	}
	return out
}

// Data returns the row-major backing data. It must not be modified.
func (m *Matrix) Data() []float64 {
	if m.dense == nil {
		return nil
	}
	return m.dense.RawMatrix().Data
}

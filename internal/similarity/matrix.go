package similarity

import (
	"fmt"
	"math"
	"sort"
)

// Entry is one stored cell of a sparse matrix row.
type Entry struct {
	Col   int     `json:"j"`
	Score float64 `json:"s"`
}

// Matrix is a square, symmetric similarity matrix stored sparsely. Every row holds its
// diagonal entry plus the positive off-diagonal scores, sorted by column. Absent cells are 0.
type Matrix struct {
	Rows [][]Entry `json:"rows"`
}

// Size returns the number of rows.
func (m *Matrix) Size() int {
	return len(m.Rows)
}

// Row returns the stored entries of row i. The slice must not be modified.
func (m *Matrix) Row(i int) []Entry {
	return m.Rows[i]
}

// At returns the similarity between products i and j.
func (m *Matrix) At(i, j int) float64 {
	row := m.Rows[i]
	k := sort.Search(len(row), func(k int) bool { return row[k].Col >= j })
	if k < len(row) && row[k].Col == j {
		return row[k].Score
	}
	return 0
}

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int {
	n := 0
	for _, row := range m.Rows {
		n += len(row)
	}
	return n
}

// Dense expands the matrix. Only sensible for small catalogs.
func (m *Matrix) Dense() [][]float64 {
	n := m.Size()
	out := make([][]float64, n)
	for i, row := range m.Rows {
		out[i] = make([]float64, n)
		for _, e := range row {
			out[i][e.Col] = e.Score
		}
	}
	return out
}

// Verify checks that the matrix is symmetric, has a unit diagonal, keeps scores within
// [-1, 1] and stores rows in column order. Any failure indicates a pipeline bug.
func (m *Matrix) Verify(tolerance float64) error {
	n := m.Size()
	for i, row := range m.Rows {
		prev := -1
		for _, e := range row {
			if e.Col <= prev || e.Col >= n {
				return fmt.Errorf("row %d: column %d out of order or range", i, e.Col)
			}
			prev = e.Col
			if math.IsNaN(e.Score) || e.Score < -1-tolerance || e.Score > 1+tolerance {
				return fmt.Errorf("sim[%d][%d] = %v outside [-1, 1]", i, e.Col, e.Score)
			}
			if back := m.At(e.Col, i); math.Abs(back-e.Score) > tolerance {
				return fmt.Errorf("asymmetric: sim[%d][%d] = %v, sim[%d][%d] = %v", i, e.Col, e.Score, e.Col, i, back)
			}
		}
		if d := m.At(i, i); math.Abs(d-1) > tolerance {
			return fmt.Errorf("sim[%d][%d] = %v, want 1", i, i, d)
		}
	}
	return nil
}

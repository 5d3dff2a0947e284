package linalg

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Sparse is a square matrix stored by rows with sorted column indices.
// Symmetric matrices store both triangles. A Sparse that has been handed to
// a model as a lookup table must be treated as read-only.
type Sparse struct {
	n    int
	cols [][]int
	vals [][]float64
}

// NewSparse returns an empty n×n sparse matrix
func NewSparse(n int) *Sparse {
	return &Sparse{
		n:    n,
		cols: make([][]int, n),
		vals: make([][]float64, n),
	}
}

// Dim returns the matrix order
func (s *Sparse) Dim() int { return s.n }

// NNZ returns the number of stored entries
func (s *Sparse) NNZ() int {
	tot := 0
	for _, c := range s.cols {
		tot += len(c)
	}
	return tot
}

// Add accumulates v into entry (i, j)
func (s *Sparse) Add(i, j int, v float64) {
	row := s.cols[i]
	k := sort.SearchInts(row, j)
	if k < len(row) && row[k] == j {
		s.vals[i][k] += v
		return
	}

	s.cols[i] = append(row, 0)
	copy(s.cols[i][k+1:], s.cols[i][k:])
	s.cols[i][k] = j

	s.vals[i] = append(s.vals[i], 0)
	copy(s.vals[i][k+1:], s.vals[i][k:])
	s.vals[i][k] = v
}

// At returns entry (i, j)
func (s *Sparse) At(i, j int) float64 {
	row := s.cols[i]
	k := sort.SearchInts(row, j)
	if k < len(row) && row[k] == j {
		return s.vals[i][k]
	}
	return 0
}

// Do calls fn for every stored entry in row-major order
func (s *Sparse) Do(fn func(i, j int, v float64)) {
	for i, row := range s.cols {
		for k, j := range row {
			fn(i, j, s.vals[i][k])
		}
	}
}

// MulVec returns A x
func (s *Sparse) MulVec(x []float64) []float64 {
	out := make([]float64, s.n)
	for i, row := range s.cols {
		acc := 0.0
		for k, j := range row {
			acc += s.vals[i][k] * x[j]
		}
		out[i] = acc
	}
	return out
}

// QuadForm returns x^T A x
func (s *Sparse) QuadForm(x []float64) float64 {
	ax := s.MulVec(x)
	acc := 0.0
	for i, v := range ax {
		acc += v * x[i]
	}
	return acc
}

// Envelope is a symmetric matrix stored by its lower profile: row i keeps
// columns First[i]..i. Cholesky factorization does not fill outside the
// profile, which is what makes banded neighbor precisions cheap.
type Envelope struct {
	n     int
	first []int
	ptr   []int
	data  []float64

	factored bool
}

// NewEnvelope allocates an envelope with the given first column per row
func NewEnvelope(first []int) (*Envelope, error) {
	n := len(first)
	ptr := make([]int, n+1)
	for i, f := range first {
		if f < 0 || f > i {
			return nil, errors.Errorf("Invalid envelope: row %d starts at column %d", i, f)
		}
		ptr[i+1] = ptr[i] + (i - f + 1)
	}

	return &Envelope{
		n:     n,
		first: append([]int(nil), first...),
		ptr:   ptr,
		data:  make([]float64, ptr[n]),
	}, nil
}

// Dim returns the matrix order
func (e *Envelope) Dim() int { return e.n }

// Size returns the number of stored lower-triangle entries
func (e *Envelope) Size() int { return len(e.data) }

// Add accumulates v into lower entry (i, j). Entries above the diagonal are
// mirrored onto the lower triangle.
func (e *Envelope) Add(i, j int, v float64) error {
	if j > i {
		i, j = j, i
	}
	if j < e.first[i] {
		return errors.Errorf("Entry (%d,%d) is outside the envelope (row starts at %d)", i, j, e.first[i])
	}
	e.data[e.ptr[i]+j-e.first[i]] += v
	return nil
}

// At returns lower entry (i, j) or the factor entry after Factorize
func (e *Envelope) At(i, j int) float64 {
	if j > i {
		i, j = j, i
	}
	if j < e.first[i] {
		return 0
	}
	return e.data[e.ptr[i]+j-e.first[i]]
}

// Factorize overwrites the envelope with its lower Cholesky factor.
func (e *Envelope) Factorize() error {
	if e.factored {
		return errors.Errorf("Envelope is already factorized")
	}

	for i := 0; i < e.n; i++ {
		fi := e.first[i]
		rowI := e.data[e.ptr[i] : e.ptr[i+1]]

		for j := fi; j < i; j++ {
			fj := e.first[j]
			rowJ := e.data[e.ptr[j] : e.ptr[j+1]]

			s := rowI[j-fi]
			k0 := fi
			if fj > k0 {
				k0 = fj
			}
			for k := k0; k < j; k++ {
				s -= rowI[k-fi] * rowJ[k-fj]
			}
			rowI[j-fi] = s / rowJ[j-fj]
		}

		d := rowI[i-fi]
		for k := fi; k < i; k++ {
			d -= rowI[k-fi] * rowI[k-fi]
		}
		if !(d > 0) || math.IsInf(d, 0) {
			return errors.Wrapf(ErrNumericalDegeneracy, "Envelope pivot %d is %v", i, d)
		}
		rowI[i-fi] = math.Sqrt(d)
	}

	e.factored = true
	return nil
}

// SampleCanonical draws from N(Q^-1 b, Q^-1) where Q is the envelope. The
// envelope is factorized in place on first use.
func (e *Envelope) SampleCanonical(b, z []float64) ([]float64, error) {
	if len(b) != e.n || len(z) != e.n {
		return nil, errors.Errorf("Canonical draw size mismatch: Q is %d, b is %d, z is %d", e.n, len(b), len(z))
	}
	for i, v := range e.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Wrapf(ErrNumericalDegeneracy, "Non-finite envelope entry at offset %d", i)
		}
	}
	if err := checkFiniteVec(b); err != nil {
		return nil, err
	}
	if !e.factored {
		if err := e.Factorize(); err != nil {
			return nil, err
		}
	}

	// forward: L y = b
	x := make([]float64, e.n)
	copy(x, b)
	for i := 0; i < e.n; i++ {
		fi := e.first[i]
		row := e.data[e.ptr[i]:e.ptr[i+1]]
		s := x[i]
		for k := fi; k < i; k++ {
			s -= row[k-fi] * x[k]
		}
		x[i] = s / row[i-fi]
	}

	for i := range x {
		x[i] += z[i]
	}

	// backward: L^T x = y, column sweep so only row storage is touched
	for i := e.n - 1; i >= 0; i-- {
		fi := e.first[i]
		row := e.data[e.ptr[i]:e.ptr[i+1]]
		x[i] /= row[i-fi]
		xi := x[i]
		for k := fi; k < i; k++ {
			x[k] -= row[k-fi] * xi
		}
	}

	return x, nil
}

// LogDet returns log|Q|, factorizing first if needed
func (e *Envelope) LogDet() (float64, error) {
	if !e.factored {
		if err := e.Factorize(); err != nil {
			return 0, err
		}
	}
	ld := 0.0
	for i := 0; i < e.n; i++ {
		ld += math.Log(e.data[e.ptr[i+1]-1])
	}
	return 2 * ld, nil
}

// EnvelopeOf returns the envelope of a symmetric sparse matrix.
func EnvelopeOf(s *Sparse) (*Envelope, error) {
	first := make([]int, s.n)
	for i := range first {
		first[i] = i
	}
	s.Do(func(i, j int, _ float64) {
		if j < first[i] {
			first[i] = j
		}
		if i < first[j] {
			first[j] = i
		}
	})

	env, err := NewEnvelope(first)
	if err != nil {
		return nil, err
	}
	s.Do(func(i, j int, v float64) {
		if j <= i {
			env.data[env.ptr[i]+j-env.first[i]] += v
		}
	})
	return env, nil
}

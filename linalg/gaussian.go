// Package linalg draws Gaussian vectors from their canonical (precision)
// form. Given a precision Q and a linear term b the target is
// N(Q^-1 b, Q^-1); with Q = L L^T and z ~ N(0, I) the draw is
// L^-T (L^-1 b + z). Dense problems go through gonum's Cholesky, sparse
// neighbor-structured problems through an envelope Cholesky.
package linalg

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

// ErrNumericalDegeneracy is returned when a factorization target is not
// positive definite or holds non-finite values. It is never recovered from.
var ErrNumericalDegeneracy = errors.New("numerical degeneracy")

// SampleCanonical draws from N(Q^-1 b, Q^-1) using the standard normals in z.
// q is not modified.
func SampleCanonical(q mat.Symmetric, b, z []float64) ([]float64, error) {
	n := q.SymmetricDim()
	if len(b) != n || len(z) != n {
		return nil, errors.Errorf("Canonical draw size mismatch: Q is %d, b is %d, z is %d", n, len(b), len(z))
	}
	if err := checkFiniteSym(q); err != nil {
		return nil, err
	}
	if err := checkFiniteVec(b); err != nil {
		return nil, err
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(q); !ok {
		return nil, errors.Wrapf(ErrNumericalDegeneracy, "Precision matrix of size %d is not positive definite", n)
	}
	var l mat.TriDense
	chol.LTo(&l)

	return solveCanonical(l.RawTriangular(), b, z), nil
}

// MeanCanonical returns Q^-1 b. It is the noise-free version of
// SampleCanonical and is mostly useful in tests.
func MeanCanonical(q mat.Symmetric, b []float64) ([]float64, error) {
	return SampleCanonical(q, b, make([]float64, len(b)))
}

func solveCanonical(l blas64.Triangular, b, z []float64) []float64 {
	x := make([]float64, len(b))
	copy(x, b)
	v := blas64.Vector{N: len(x), Data: x, Inc: 1}

	blas64.Trsv(blas.NoTrans, l, v)
	for i := range x {
		x[i] += z[i]
	}
	blas64.Trsv(blas.Trans, l, v)
	return x
}

// LogDet returns log|Q| for a symmetric positive definite Q
func LogDet(q mat.Symmetric) (float64, error) {
	if err := checkFiniteSym(q); err != nil {
		return 0, err
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(q); !ok {
		return 0, errors.Wrapf(ErrNumericalDegeneracy, "Matrix of size %d is not positive definite", q.SymmetricDim())
	}
	return chol.LogDet(), nil
}

func checkFiniteSym(q mat.Symmetric) error {
	n := q.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			v := q.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(ErrNumericalDegeneracy, "Non-finite precision entry (%d,%d)=%v", i, j, v)
			}
		}
	}
	return nil
}

func checkFiniteVec(b []float64) error {
	for i, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrNumericalDegeneracy, "Non-finite linear term b[%d]=%v", i, v)
		}
	}
	return nil
}

// QuadForm returns x^T A x
func QuadForm(a mat.Symmetric, x []float64) float64 {
	v := mat.NewVecDense(len(x), x)
	return mat.Inner(v, a, v)
}

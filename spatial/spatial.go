// Package spatial builds the per-level lookup tables of spatial prior
// precisions. For every candidate range value alpha in a grid it produces
// iW(alpha), the precision of an exponential-covariance Gaussian process
// over the level's units, and log|iW(alpha)|. Tables are computed once per
// run and then shared read-only by every chain.
package spatial

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/linalg"
)

// DefaultGridSize matches the usual 101 point alpha grid
const DefaultGridSize = 101

// Distance is the Euclidean distance between two coordinate vectors
func Distance(a, b []float64) float64 {
	acc := 0.0
	for k := range a {
		d := a[k] - b[k]
		acc += d * d
	}
	return math.Sqrt(acc)
}

func checkCoords(coords [][]float64) error {
	if len(coords) < 1 {
		return errors.Errorf("No coordinates supplied")
	}
	dim := len(coords[0])
	if dim < 1 {
		return errors.Errorf("Coordinates must have at least one dimension")
	}
	for i, c := range coords {
		if len(c) != dim {
			return errors.Errorf("Unit %d has %d coordinates, expected %d", i, len(c), dim)
		}
		for _, v := range c {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Errorf("Unit %d has a non-finite coordinate", i)
			}
		}
	}
	return nil
}

// AlphaGrid returns size evenly spaced range values from 0 to the largest
// pairwise distance, with prior weight 1/2 on alpha=0 (no spatial signal)
// and the remaining mass spread uniformly.
func AlphaGrid(coords [][]float64, size int) (alpha, prior []float64, err error) {
	if err := checkCoords(coords); err != nil {
		return nil, nil, err
	}
	if size < 2 {
		return nil, nil, errors.Errorf("Alpha grid needs at least 2 points, got %d", size)
	}

	maxD := 0.0
	for i := range coords {
		for j := 0; j < i; j++ {
			maxD = math.Max(maxD, Distance(coords[i], coords[j]))
		}
	}
	if maxD <= 0 {
		return nil, nil, errors.Errorf("All units share one location; spatial grid is empty")
	}

	alpha = make([]float64, size)
	prior = make([]float64, size)
	for g := range alpha {
		alpha[g] = maxD * float64(g) / float64(size-1)
		prior[g] = 0.5 / float64(size-1)
	}
	prior[0] = 0.5
	return alpha, prior, nil
}

func covariance(d, alpha float64) float64 {
	if alpha <= 0 {
		if d == 0 {
			return 1
		}
		return 0
	}
	return math.Exp(-d / alpha)
}

// FullTable returns the dense precision matrices W(alpha)^-1 for each grid
// value along with their log-determinants.
func FullTable(coords [][]float64, alpha []float64) ([]*mat.SymDense, []float64, error) {
	if err := checkCoords(coords); err != nil {
		return nil, nil, err
	}
	n := len(coords)

	table := make([]*mat.SymDense, len(alpha))
	logDet := make([]float64, len(alpha))
	for g, a := range alpha {
		w := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				w.SetSym(i, j, covariance(Distance(coords[i], coords[j]), a))
			}
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(w); !ok {
			return nil, nil, errors.Wrapf(linalg.ErrNumericalDegeneracy, "Covariance for alpha[%d]=%v is not positive definite", g, a)
		}
		iw := mat.NewSymDense(n, nil)
		if err := chol.InverseTo(iw); err != nil {
			return nil, nil, errors.Wrapf(err, "Could not invert covariance for alpha[%d]=%v", g, a)
		}
		table[g] = iw
		logDet[g] = -chol.LogDet()
	}
	return table, logDet, nil
}

// Neighbors returns, for each unit, the indices of up to k nearest units
// that precede it in the given ordering.
func Neighbors(coords [][]float64, k int) [][]int {
	nb := make([][]int, len(coords))
	for i := range coords {
		cand := make([]int, i)
		for j := range cand {
			cand[j] = j
		}
		sort.SliceStable(cand, func(a, b int) bool {
			return Distance(coords[i], coords[cand[a]]) < Distance(coords[i], coords[cand[b]])
		})
		if len(cand) > k {
			cand = cand[:k]
		}
		sort.Ints(cand)
		nb[i] = cand
	}
	return nb
}

// NNGPTable returns the sparse nearest-neighbor (Vecchia) precisions
// (I-B)^T F^-1 (I-B) for each grid value along with their log-determinants.
func NNGPTable(coords [][]float64, alpha []float64, k int) ([]*linalg.Sparse, []float64, error) {
	if err := checkCoords(coords); err != nil {
		return nil, nil, err
	}
	if k < 1 {
		return nil, nil, errors.Errorf("NNGP needs at least one neighbor, got %d", k)
	}

	n := len(coords)
	nb := Neighbors(coords, k)

	table := make([]*linalg.Sparse, len(alpha))
	logDet := make([]float64, len(alpha))
	for g, a := range alpha {
		iw := linalg.NewSparse(n)
		ld := 0.0

		for i := 0; i < n; i++ {
			idx := nb[i]
			b, f, err := conditional(coords, i, idx, a)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "NNGP unit %d, alpha[%d]=%v", i, g, a)
			}
			ld -= math.Log(f)

			// row i of (I - B): 1 at i, -b at the neighbors
			rowIdx := append([]int{i}, idx...)
			rowVal := make([]float64, len(rowIdx))
			rowVal[0] = 1
			for m := range idx {
				rowVal[m+1] = -b[m]
			}
			for p, ip := range rowIdx {
				for q, iq := range rowIdx {
					if v := rowVal[p] * rowVal[q] / f; v != 0 {
						iw.Add(ip, iq, v)
					}
				}
			}
		}

		table[g] = iw
		logDet[g] = ld
	}
	return table, logDet, nil
}

// conditional returns the kriging weights and conditional variance of unit i
// given its neighbors.
func conditional(coords [][]float64, i int, idx []int, alpha float64) ([]float64, float64, error) {
	if len(idx) == 0 || alpha <= 0 {
		return make([]float64, len(idx)), 1, nil
	}

	m := len(idx)
	cnn := mat.NewSymDense(m, nil)
	cni := mat.NewVecDense(m, nil)
	for p := 0; p < m; p++ {
		cni.SetVec(p, covariance(Distance(coords[i], coords[idx[p]]), alpha))
		for q := 0; q <= p; q++ {
			cnn.SetSym(p, q, covariance(Distance(coords[idx[p]], coords[idx[q]]), alpha))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(cnn); !ok {
		return nil, 0, errors.Wrapf(linalg.ErrNumericalDegeneracy, "Neighbor covariance is not positive definite")
	}
	var b mat.VecDense
	if err := chol.SolveVecTo(&b, cni); err != nil {
		return nil, 0, errors.Wrap(err, "Neighbor solve failed")
	}

	f := 1 - mat.Dot(cni, &b)
	if !(f > 0) {
		return nil, 0, errors.Wrapf(linalg.ErrNumericalDegeneracy, "Conditional variance %v is not positive", f)
	}

	out := make([]float64, m)
	for p := range out {
		out[p] = b.AtVec(p)
	}
	return out, f, nil
}

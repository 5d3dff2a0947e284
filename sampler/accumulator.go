package sampler

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/model"
)

// Samples are the retained draws of one chain. The leading index of every
// field is the sample; per-level fields are indexed [level][sample]. A level
// with no factors holds nil matrices.
type Samples struct {
	Iteration []int // raw iteration of each draw

	Beta   []*mat.Dense
	Gamma  []*mat.Dense
	V      []*mat.SymDense
	Sigma  [][]float64
	RhoInd []int

	Lambda [][]*mat.Dense
	Psi    [][]*mat.Dense
	Delta  [][][]float64
	Eta    [][]*mat.Dense
	Alpha  [][][]int

	// Only with latent tracking
	Z  []*mat.Dense
	ID []*mat.Dense
}

// Len is the number of retained draws
func (s *Samples) Len() int {
	return len(s.Beta)
}

// Accumulator collects retained draws in order. It copies everything it is
// given, so the chain is free to move on.
type Accumulator struct {
	size   int
	latent bool
	s      *Samples
}

// NewAccumulator prepares room for size draws of a model with nr levels
func NewAccumulator(nr, size int, latent bool) *Accumulator {
	s := &Samples{
		Iteration: make([]int, 0, size),
		Beta:      make([]*mat.Dense, 0, size),
		Gamma:     make([]*mat.Dense, 0, size),
		V:         make([]*mat.SymDense, 0, size),
		Sigma:     make([][]float64, 0, size),
		RhoInd:    make([]int, 0, size),
		Lambda:    make([][]*mat.Dense, nr),
		Psi:       make([][]*mat.Dense, nr),
		Delta:     make([][][]float64, nr),
		Eta:       make([][]*mat.Dense, nr),
		Alpha:     make([][][]int, nr),
	}
	for r := 0; r < nr; r++ {
		s.Lambda[r] = make([]*mat.Dense, 0, size)
		s.Psi[r] = make([]*mat.Dense, 0, size)
		s.Delta[r] = make([][]float64, 0, size)
		s.Eta[r] = make([]*mat.Dense, 0, size)
		s.Alpha[r] = make([][]int, 0, size)
	}
	if latent {
		s.Z = make([]*mat.Dense, 0, size)
		s.ID = make([]*mat.Dense, 0, size)
	}
	return &Accumulator{size: size, latent: latent, s: s}
}

// Len is the number of draws appended so far
func (a *Accumulator) Len() int {
	return a.s.Len()
}

// Append stores a deep copy of st in slot, which must be the next free slot
func (a *Accumulator) Append(slot, iter int, st *model.State) error {
	if slot != a.Len() {
		return errors.Errorf("Save slot %d out of order: %d draws held", slot, a.Len())
	}
	if slot >= a.size {
		return errors.Errorf("Save slot %d beyond the %d requested draws", slot, a.size)
	}
	if len(st.Lambda) != len(a.s.Lambda) {
		return errors.Wrapf(model.ErrShapeInconsistency, "State has %d levels, accumulator %d", len(st.Lambda), len(a.s.Lambda))
	}

	c := st.Clone()
	s := a.s
	s.Iteration = append(s.Iteration, iter)
	s.Beta = append(s.Beta, c.Beta)
	s.Gamma = append(s.Gamma, c.Gamma)
	s.V = append(s.V, c.V)
	s.Sigma = append(s.Sigma, c.Sigma)
	s.RhoInd = append(s.RhoInd, c.RhoInd)
	for r := range s.Lambda {
		s.Lambda[r] = append(s.Lambda[r], c.Lambda[r])
		s.Psi[r] = append(s.Psi[r], c.Psi[r])
		s.Delta[r] = append(s.Delta[r], c.Delta[r])
		s.Eta[r] = append(s.Eta[r], c.Eta[r])
		s.Alpha[r] = append(s.Alpha[r], c.Alpha[r])
	}
	if a.latent {
		s.Z = append(s.Z, c.Z)
		s.ID = append(s.ID, c.ID)
	}
	return nil
}

// Finalize hands over the draws held. The accumulator must not be used after.
func (a *Accumulator) Finalize() *Samples {
	s := a.s
	a.s = nil
	return s
}

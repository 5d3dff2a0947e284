package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/rand"
)

// State is the mutable parameter aggregate of one chain. A level with no
// factors has nil Lambda, Psi, Eta and empty Delta, Alpha.
type State struct {
	Z  *mat.Dense // ny×ns latent surrogate
	ID *mat.Dense // ny×ns per-observation precision

	Beta   *mat.Dense    // nc×ns
	Gamma  *mat.Dense    // nc×nt
	V      *mat.SymDense // nc×nc
	IV     *mat.SymDense // nc×nc, inverse of V
	Sigma  []float64     // ns residual standard deviations
	RhoInd int           // phylogenetic correlation index (0 when not modelled)

	Lambda []*mat.Dense // per level nf×ns loadings
	Psi    []*mat.Dense // per level nf×ns local shrinkage
	Delta  [][]float64  // per level nf global shrinkage
	Eta    []*mat.Dense // per level np×nf scores
	Alpha  [][]int      // per level nf indexes into the alpha grid

	// PoissonOmega is the Polya-Gamma weight of the last augmentation,
	// nil until the first Poisson draw.
	PoissonOmega *mat.Dense

	// optional reduced-rank regression and selection terms
	WRRR     *mat.Dense
	PsiRRR   *mat.Dense
	DeltaRRR []float64
	BetaSel  []bool
}

// NF is the current factor count of level r
func (s *State) NF(r int) int {
	if s.Lambda[r] == nil {
		return 0
	}
	rows, _ := s.Lambda[r].Dims()
	return rows
}

func cloneDense(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	return mat.DenseCopyOf(m)
}

func cloneSym(m *mat.SymDense) *mat.SymDense {
	if m == nil {
		return nil
	}
	cp := mat.NewSymDense(m.SymmetricDim(), nil)
	cp.CopySym(m)
	return cp
}

func cloneDenses(ms []*mat.Dense) []*mat.Dense {
	if ms == nil {
		return nil
	}
	cp := make([]*mat.Dense, len(ms))
	for i, m := range ms {
		cp[i] = cloneDense(m)
	}
	return cp
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}

// Clone returns a deep copy of the state
func (s *State) Clone() *State {
	cp := &State{
		Z:            cloneDense(s.Z),
		ID:           cloneDense(s.ID),
		Beta:         cloneDense(s.Beta),
		Gamma:        cloneDense(s.Gamma),
		V:            cloneSym(s.V),
		IV:           cloneSym(s.IV),
		Sigma:        cloneSlice(s.Sigma),
		RhoInd:       s.RhoInd,
		Lambda:       cloneDenses(s.Lambda),
		Psi:          cloneDenses(s.Psi),
		Eta:          cloneDenses(s.Eta),
		PoissonOmega: cloneDense(s.PoissonOmega),
		WRRR:         cloneDense(s.WRRR),
		PsiRRR:       cloneDense(s.PsiRRR),
		DeltaRRR:     cloneSlice(s.DeltaRRR),
		BetaSel:      cloneSlice(s.BetaSel),
	}
	if s.Delta != nil {
		cp.Delta = make([][]float64, len(s.Delta))
		for r, d := range s.Delta {
			cp.Delta[r] = cloneSlice(d)
		}
	}
	if s.Alpha != nil {
		cp.Alpha = make([][]int, len(s.Alpha))
		for r, a := range s.Alpha {
			cp.Alpha[r] = cloneSlice(a)
		}
	}
	return cp
}

func denseIs(x *mat.Dense, rows, cols int) bool {
	if x == nil {
		return false
	}
	r, c := x.Dims()
	return r == rows && c == cols
}

// CheckShapes verifies every field against the dimensions. A factor count
// disagreement inside a level is reported as ErrShapeInconsistency.
func (s *State) CheckShapes(d Dimensions) error {
	if !denseIs(s.Z, d.NY, d.NS) || !denseIs(s.ID, d.NY, d.NS) {
		return errors.Errorf("Z and iD must be %dx%d", d.NY, d.NS)
	}
	if !denseIs(s.Beta, d.NC, d.NS) {
		return errors.Errorf("Beta must be %dx%d", d.NC, d.NS)
	}
	if len(s.Sigma) != d.NS {
		return errors.Errorf("sigma has %d entries, expected %d", len(s.Sigma), d.NS)
	}
	if s.PoissonOmega != nil && !denseIs(s.PoissonOmega, d.NY, d.NS) {
		return errors.Errorf("Poisson weight must be %dx%d", d.NY, d.NS)
	}

	if len(s.Lambda) != d.NR || len(s.Psi) != d.NR || len(s.Delta) != d.NR ||
		len(s.Eta) != d.NR || len(s.Alpha) != d.NR {
		return inconsistent("State must carry %d levels in Lambda, Psi, Delta, Eta, Alpha", d.NR)
	}

	for r := 0; r < d.NR; r++ {
		nf := s.NF(r)
		if nf == 0 {
			if s.Eta[r] != nil || s.Psi[r] != nil || len(s.Delta[r]) != 0 || len(s.Alpha[r]) != 0 {
				return inconsistent("Level %d has no loadings but carries factor parameters", r)
			}
			continue
		}
		if _, c := s.Lambda[r].Dims(); c != d.NS {
			return inconsistent("Level %d Lambda has %d columns, expected %d", r, c, d.NS)
		}
		if s.Eta[r] == nil {
			return inconsistent("Level %d has %d loadings but no scores", r, nf)
		}
		if er, ec := s.Eta[r].Dims(); ec != nf || er != d.NP[r] {
			return inconsistent("Level %d Eta is %dx%d but Lambda has %d factors over %d units", r, er, ec, nf, d.NP[r])
		}
		if !denseIs(s.Psi[r], nf, d.NS) {
			return inconsistent("Level %d Psi does not match %d factors", r, nf)
		}
		if len(s.Delta[r]) != nf || len(s.Alpha[r]) != nf {
			return inconsistent("Level %d has %d Delta and %d Alpha for %d factors", r, len(s.Delta[r]), len(s.Alpha[r]), nf)
		}
	}
	return nil
}

// NewInitialState builds a starting point for a chain: latent values from
// the data, unit residual scale, prior means for the fixed effects and
// small random loadings and scores.
func NewInitialState(m *Model, gen *rand.Generator) (*State, error) {
	d := m.Dims

	s := &State{
		Z:     mat.NewDense(d.NY, d.NS, nil),
		ID:    mat.NewDense(d.NY, d.NS, nil),
		Beta:  mat.NewDense(d.NC, d.NS, nil),
		Gamma: mat.DenseCopyOf(m.Prior.MGamma),
		V:     cloneSym(m.Prior.V0),
		Sigma: make([]float64, d.NS),
	}

	for j := 0; j < d.NS; j++ {
		s.Sigma[j] = 1
		for i := 0; i < d.NY; i++ {
			y := m.Data.Y.At(i, j)
			if math.IsNaN(y) {
				continue
			}
			s.ID.Set(i, j, 1)
			switch m.Data.Distr[j] {
			case Normal:
				s.Z.Set(i, j, y)
			case Probit:
				s.Z.Set(i, j, y-0.5)
			case Poisson:
				s.Z.Set(i, j, math.Log(y+0.5))
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(s.V); !ok {
		return nil, errors.Wrapf(ErrNumericalDegeneracy, "Initial V is not positive definite")
	}
	s.IV = mat.NewSymDense(d.NC, nil)
	if err := chol.InverseTo(s.IV); err != nil {
		return nil, errors.Wrapf(err, "Could not invert initial V")
	}

	s.Lambda = make([]*mat.Dense, d.NR)
	s.Psi = make([]*mat.Dense, d.NR)
	s.Delta = make([][]float64, d.NR)
	s.Eta = make([]*mat.Dense, d.NR)
	s.Alpha = make([][]int, d.NR)
	for r, lvl := range m.Levels {
		nf := lvl.NfInit
		if nf < lvl.NfMin {
			nf = lvl.NfMin
		}
		if nf > lvl.NfMax {
			nf = lvl.NfMax
		}
		s.Delta[r] = []float64{}
		s.Alpha[r] = []int{}
		if nf == 0 {
			continue
		}

		lam := gen.Normals(make([]float64, nf*d.NS))
		for k := range lam {
			lam[k] *= 0.1
		}
		s.Lambda[r] = mat.NewDense(nf, d.NS, lam)

		psi := make([]float64, nf*d.NS)
		for k := range psi {
			psi[k] = 1
		}
		s.Psi[r] = mat.NewDense(nf, d.NS, psi)

		s.Eta[r] = mat.NewDense(lvl.NP, nf, gen.Normals(make([]float64, lvl.NP*nf)))

		s.Delta[r] = make([]float64, nf)
		for h := range s.Delta[r] {
			s.Delta[r][h] = 1
		}
		s.Alpha[r] = make([]int, nf)
	}

	return s, nil
}

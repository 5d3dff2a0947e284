// Package update holds the per-iteration conditional updates of the Gibbs
// sweep. UpdateZ and UpdateEta are the latent-response augmentation and the
// latent-factor draw; the remaining parameter blocks are behind small
// updater interfaces with conjugate default implementations.
//
// Every update reads the current *model.State and returns new values
// without mutating it; the sampler decides when to write them back.
package update

import (
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/model"
)

// FixedPredictor returns X·Beta (ny×ns), using the per-species design when
// the model has one.
func FixedPredictor(st *model.State, m *model.Model) *mat.Dense {
	d := m.Dims
	out := mat.NewDense(d.NY, d.NS, nil)
	if len(m.Data.XSpecies) == 0 {
		out.Mul(m.Data.X, st.Beta)
		return out
	}
	for j := 0; j < d.NS; j++ {
		col := mat.NewVecDense(d.NY, nil)
		col.MulVec(m.XFor(j), st.Beta.ColView(j))
		out.SetCol(j, col.RawVector().Data)
	}
	return out
}

// LevelPredictor returns the unit-expanded contribution Eta[r][Pi[:,r]]·Lambda[r]
// of level r, or nil when the level has no factors.
func LevelPredictor(st *model.State, m *model.Model, r int) *mat.Dense {
	if st.NF(r) == 0 {
		return nil
	}
	var unit mat.Dense
	unit.Mul(st.Eta[r], st.Lambda[r])

	d := m.Dims
	out := mat.NewDense(d.NY, d.NS, nil)
	for i := 0; i < d.NY; i++ {
		out.SetRow(i, unit.RawRowView(m.Data.Pi[i][r]))
	}
	return out
}

// LinearPredictor returns L = X·Beta + sum over levels of their contribution
func LinearPredictor(st *model.State, m *model.Model) *mat.Dense {
	l := FixedPredictor(st, m)
	for r := 0; r < m.Dims.NR; r++ {
		if c := LevelPredictor(st, m, r); c != nil {
			l.Add(l, c)
		}
	}
	return l
}

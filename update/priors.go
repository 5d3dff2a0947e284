package update

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/linalg"
	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
)

// MGPLambdaPriors updates the multiplicative gamma process shrinkage of
// the loadings: local Psi given tau, then each Delta_h in turn.
type MGPLambdaPriors struct{}

// UpdateLambdaPriors implements LambdaPriorUpdater
func (MGPLambdaPriors) UpdateLambdaPriors(st *model.State, m *model.Model, gen *rand.Generator) ([]*mat.Dense, [][]float64, error) {
	d := m.Dims
	psi := make([]*mat.Dense, d.NR)
	delta := make([][]float64, d.NR)

	for r := 0; r < d.NR; r++ {
		lvl := &m.Levels[r]
		nf := st.NF(r)
		delta[r] = append([]float64{}, st.Delta[r]...)
		if nf == 0 {
			continue
		}
		lam := st.Lambda[r]
		tau := Tau(st.Delta[r])

		p := mat.NewDense(nf, d.NS, nil)
		for h := 0; h < nf; h++ {
			for j := 0; j < d.NS; j++ {
				l := lam.At(h, j)
				p.Set(h, j, gen.Gamma(lvl.Nu/2+0.5, lvl.Nu/2+0.5*tau[h]*l*l))
			}
		}
		psi[r] = p

		// M_h = sum_j Psi_hj Lambda_hj²
		mh := make([]float64, nf)
		for h := 0; h < nf; h++ {
			for j := 0; j < d.NS; j++ {
				l := lam.At(h, j)
				mh[h] += p.At(h, j) * l * l
			}
		}

		del := delta[r]
		for h := 0; h < nf; h++ {
			a, b := lvl.A2, lvl.B2
			if h == 0 {
				a, b = lvl.A1, lvl.B1
			}
			a += 0.5 * float64(d.NS*(nf-h))

			// tau without delta_h, for every l >= h
			acc := 0.0
			prod := 1.0
			for l := 0; l < nf; l++ {
				if l != h {
					prod *= del[l]
				}
				if l >= h {
					acc += prod * mh[l]
				}
			}
			b += 0.5 * acc

			del[h] = gen.Gamma(a, b)
			if !(del[h] > 0) || math.IsInf(del[h], 0) {
				return nil, nil, errors.Wrapf(model.ErrNumericalDegeneracy, "Level %d Delta[%d] draw %v", r, h, del[h])
			}
		}
	}
	return psi, delta, nil
}

// GridAlpha draws each spatial factor's range index from its discrete
// posterior over the level's alpha grid:
// log p(g) = log prior(g) + log|iW_g|/2 - eta_h^T iW_g eta_h / 2.
type GridAlpha struct{}

// UpdateAlpha implements AlphaUpdater
func (GridAlpha) UpdateAlpha(st *model.State, m *model.Model, gen *rand.Generator) ([][]int, error) {
	d := m.Dims
	alpha := make([][]int, d.NR)
	for r := 0; r < d.NR; r++ {
		alpha[r] = append([]int{}, st.Alpha[r]...)
		lvl := &m.Levels[r]
		nf := st.NF(r)
		if !lvl.Spatial() || nf == 0 {
			continue
		}

		ng := len(lvl.AlphaGrid)
		logW := make([]float64, ng)
		eta := make([]float64, lvl.NP)
		for h := 0; h < nf; h++ {
			mat.Col(eta, h, st.Eta[r])
			for g := 0; g < ng; g++ {
				var q float64
				switch lvl.Method {
				case model.SpatialFull:
					q = linalg.QuadForm(lvl.FullTable[g], eta)
				case model.SpatialNNGP:
					q = lvl.NNGPTable[g].QuadForm(eta)
				default:
					return nil, errors.Wrapf(model.ErrUnsupportedConfiguration, "Level %d spatial method %s", r, lvl.Method)
				}
				logW[g] = math.Log(lvl.AlphaPrior[g]) + 0.5*lvl.LogDet[g] - 0.5*q
			}
			idx, err := gen.Categorical(logW)
			if err != nil {
				return nil, errors.Wrapf(err, "Level %d factor %d alpha", r, h)
			}
			alpha[r][h] = idx
		}
	}
	return alpha, nil
}

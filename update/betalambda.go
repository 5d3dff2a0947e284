package update

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/linalg"
	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
)

// ConjugateBetaLambda regresses each column of Z on [X, Eta_1[Pi_1], ...]
// weighted by iD. The prior is Beta_j ~ N(Gamma·Tr_j, V) and
// Lambda_hj ~ N(0, 1/(Psi_hj tau_h)) with tau_h the running product of Delta.
type ConjugateBetaLambda struct{}

// Tau returns the cumulative products of delta
func Tau(delta []float64) []float64 {
	tau := make([]float64, len(delta))
	acc := 1.0
	for h, d := range delta {
		acc *= d
		tau[h] = acc
	}
	return tau
}

// UpdateBetaLambda implements BetaLambdaUpdater
func (ConjugateBetaLambda) UpdateBetaLambda(st *model.State, m *model.Model, gen *rand.Generator) (*mat.Dense, []*mat.Dense, error) {
	d := m.Dims

	// expanded scores and column offsets of each level in the design
	offset := make([]int, d.NR)
	expanded := make([]*mat.Dense, d.NR)
	tau := make([][]float64, d.NR)
	p := d.NC
	for r := 0; r < d.NR; r++ {
		offset[r] = p
		nf := st.NF(r)
		p += nf
		if nf == 0 {
			continue
		}
		tau[r] = Tau(st.Delta[r])
		e := mat.NewDense(d.NY, nf, nil)
		for i := 0; i < d.NY; i++ {
			e.SetRow(i, st.Eta[r].RawRowView(m.Data.Pi[i][r]))
		}
		expanded[r] = e
	}

	var priorMean mat.Dense
	priorMean.Mul(st.Gamma, m.Prior.Tr.T()) // nc×ns
	var ivMean mat.Dense
	ivMean.Mul(st.IV, &priorMean)

	beta := mat.NewDense(d.NC, d.NS, nil)
	lambda := make([]*mat.Dense, d.NR)
	for r := 0; r < d.NR; r++ {
		if nf := st.NF(r); nf > 0 {
			lambda[r] = mat.NewDense(nf, d.NS, nil)
		}
	}

	row := make([]float64, p)
	for j := 0; j < d.NS; j++ {
		x := m.XFor(j)
		q := mat.NewSymDense(p, nil)
		b := make([]float64, p)

		for a := 0; a < d.NC; a++ {
			b[a] = ivMean.At(a, j)
			for c := 0; c <= a; c++ {
				q.SetSym(a, c, st.IV.At(a, c))
			}
		}
		for r := 0; r < d.NR; r++ {
			for h := 0; h < st.NF(r); h++ {
				k := offset[r] + h
				q.SetSym(k, k, st.Psi[r].At(h, j)*tau[r][h])
			}
		}

		for i := 0; i < d.NY; i++ {
			w := st.ID.At(i, j)
			if w == 0 {
				continue
			}
			copy(row, x.RawRowView(i))
			for r := 0; r < d.NR; r++ {
				if expanded[r] != nil {
					copy(row[offset[r]:], expanded[r].RawRowView(i))
				}
			}
			z := st.Z.At(i, j)
			for a := 0; a < p; a++ {
				wa := w * row[a]
				b[a] += wa * z
				for c := 0; c <= a; c++ {
					q.SetSym(a, c, q.At(a, c)+wa*row[c])
				}
			}
		}

		coef, err := linalg.SampleCanonical(q, b, gen.Normals(make([]float64, p)))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "Species %d Beta/Lambda", j)
		}
		for a := 0; a < d.NC; a++ {
			beta.Set(a, j, coef[a])
		}
		for r := 0; r < d.NR; r++ {
			for h := 0; h < st.NF(r); h++ {
				lambda[r].Set(h, j, coef[offset[r]+h])
			}
		}
	}

	return beta, lambda, nil
}

// GammaSigma is the conjugate update of 1/sigma² for Normal species, and
// for Poisson species unless SkipPoisson. Probit scales stay at their
// current (identifying) value.
type GammaSigma struct {
	SkipPoisson bool
}

// UpdateSigma implements SigmaUpdater
func (gs GammaSigma) UpdateSigma(st *model.State, m *model.Model, gen *rand.Generator) ([]float64, error) {
	d := m.Dims
	sigma := append([]float64(nil), st.Sigma...)
	l := LinearPredictor(st, m)

	for j, f := range m.Data.Distr {
		if f == model.Probit || (f == model.Poisson && gs.SkipPoisson) {
			continue
		}
		shape := m.Prior.ASigma[j]
		rate := m.Prior.BSigma[j]
		for i := 0; i < d.NY; i++ {
			if math.IsNaN(m.Data.Y.At(i, j)) {
				continue
			}
			e := st.Z.At(i, j) - l.At(i, j)
			shape += 0.5
			rate += 0.5 * e * e
		}
		prec := gen.Gamma(shape, rate)
		if !(prec > 0) || math.IsInf(prec, 0) {
			return nil, errors.Wrapf(model.ErrNumericalDegeneracy, "Residual precision draw %v for species %d", prec, j)
		}
		sigma[j] = 1 / math.Sqrt(prec)
	}
	return sigma, nil
}

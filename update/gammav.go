package update

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmat"

	"github.com/CraigKelly/jsdm/linalg"
	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
)

// ConjugateGammaV draws V from its inverse-Wishart conditional given the
// current Gamma, then Gamma from its Gaussian conditional given the new V.
// vec(Gamma) stacks columns, matching the layout of the UGamma prior.
type ConjugateGammaV struct{}

// UpdateGammaV implements GammaVUpdater
func (ConjugateGammaV) UpdateGammaV(st *model.State, m *model.Model, gen *rand.Generator) (*mat.Dense, *mat.SymDense, *mat.SymDense, error) {
	d := m.Dims
	nc, nt := d.NC, d.NT
	tr := m.Prior.Tr

	// E = Beta - Gamma Tr^T
	var e mat.Dense
	e.Mul(st.Gamma, tr.T())
	e.Sub(st.Beta, &e)

	scale := mat.NewSymDense(nc, nil)
	scale.SymOuterK(1, &e)
	scale.AddSym(scale, m.Prior.V0)

	iv, err := wishartInverseScale(scale, m.Prior.F0+float64(d.NS), gen)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "V")
	}
	v, err := invertSym(iv)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "V")
	}

	iu, err := invertSym(m.Prior.UGamma)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "UGamma")
	}

	var trtr mat.SymDense
	trtr.SymOuterK(1, tr.T())

	n := nc * nt
	q := mat.NewSymDense(n, nil)
	q.CopySym(iu)
	for t := 0; t < nt; t++ {
		for t2 := 0; t2 <= t; t2++ {
			k := trtr.At(t, t2)
			for c := 0; c < nc; c++ {
				for c2 := 0; c2 < nc; c2++ {
					i, j := c+nc*t, c2+nc*t2
					if j > i {
						continue
					}
					q.SetSym(i, j, q.At(i, j)+k*iv.At(c, c2))
				}
			}
		}
	}

	var ivb, ivbt mat.Dense
	ivb.Mul(iv, st.Beta)
	ivbt.Mul(&ivb, tr)

	mvec := mat.NewVecDense(n, nil)
	for t := 0; t < nt; t++ {
		for c := 0; c < nc; c++ {
			mvec.SetVec(c+nc*t, m.Prior.MGamma.At(c, t))
		}
	}
	var bv mat.VecDense
	bv.MulVec(iu, mvec)
	b := bv.RawVector().Data
	for t := 0; t < nt; t++ {
		for c := 0; c < nc; c++ {
			b[c+nc*t] += ivbt.At(c, t)
		}
	}

	g, err := linalg.SampleCanonical(q, b, gen.Normals(make([]float64, n)))
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "Gamma")
	}
	gamma := mat.NewDense(nc, nt, nil)
	for t := 0; t < nt; t++ {
		for c := 0; c < nc; c++ {
			gamma.Set(c, t, g[c+nc*t])
		}
	}
	return gamma, v, iv, nil
}

// wishartInverseScale draws W ~ Wishart(S^-1, df), which is the precision
// of an inverse-Wishart(S, df) draw.
func wishartInverseScale(s *mat.SymDense, df float64, gen *rand.Generator) (*mat.SymDense, error) {
	n := s.SymmetricDim()
	if df <= float64(n-1) {
		return nil, errors.Errorf("Wishart degrees of freedom %v too small for dimension %d", df, n)
	}
	inv, err := invertSym(s)
	if err != nil {
		return nil, err
	}
	wish, ok := distmat.NewWishart(inv, df, gen.Source())
	if !ok {
		return nil, errors.Wrapf(model.ErrNumericalDegeneracy, "Wishart scale is not positive definite")
	}
	w := mat.NewSymDense(n, nil)
	wish.RandSymTo(w)
	return w, nil
}

func invertSym(s mat.Symmetric) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(s); !ok {
		return nil, errors.Wrapf(model.ErrNumericalDegeneracy, "Matrix of size %d is not positive definite", s.SymmetricDim())
	}
	inv := mat.NewSymDense(s.SymmetricDim(), nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, errors.Wrapf(model.ErrNumericalDegeneracy, "Inverse failed: %v", err)
	}
	return inv, nil
}

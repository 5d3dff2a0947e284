package update

import (
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/linalg"
	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
)

// unitStats are the sufficient statistics of one level aggregated over
// the observations of each unit.
type unitStats struct {
	prec []*mat.SymDense // per unit nf×nf: Lambda diag(w_u) Lambda^T
	mean [][]float64     // per unit nf: Lambda (iD⊙S)_u
}

// levelStats aggregates iD and iD⊙S through Pi and projects through Lambda
func levelStats(lambda, resid, id *mat.Dense, pi [][]int, r, np int) *unitStats {
	nf, ns := lambda.Dims()
	ny, _ := resid.Dims()

	w := mat.NewDense(np, ns, nil)
	t := mat.NewDense(np, ns, nil)
	for i := 0; i < ny; i++ {
		u := pi[i][r]
		wr := w.RawRowView(u)
		tr := t.RawRowView(u)
		for j := 0; j < ns; j++ {
			v := id.At(i, j)
			wr[j] += v
			tr[j] += v * resid.At(i, j)
		}
	}

	st := &unitStats{
		prec: make([]*mat.SymDense, np),
		mean: make([][]float64, np),
	}
	for u := 0; u < np; u++ {
		wr := w.RawRowView(u)
		q := mat.NewSymDense(nf, nil)
		for h := 0; h < nf; h++ {
			for k := 0; k <= h; k++ {
				acc := 0.0
				for j := 0; j < ns; j++ {
					acc += lambda.At(h, j) * wr[j] * lambda.At(k, j)
				}
				q.SetSym(h, k, acc)
			}
		}
		st.prec[u] = q

		mv := mat.NewVecDense(nf, nil)
		mv.MulVec(lambda, mat.NewVecDense(ns, t.RawRowView(u)))
		st.mean[u] = mv.RawVector().Data
	}
	return st
}

// UpdateEta draws new factor scores for every level in level order. The
// residual of level r uses the scores already drawn for earlier levels in
// this sweep. Levels with no factors keep their (nil) scores. The state is
// not modified; the returned slice holds one matrix per level.
func UpdateEta(st *model.State, m *model.Model, gen *rand.Generator) ([]*mat.Dense, error) {
	d := m.Dims
	eta := append([]*mat.Dense(nil), st.Eta...)

	cur := *st
	cur.Eta = eta

	contrib := make([]*mat.Dense, d.NR)
	total := FixedPredictor(st, m)
	for r := 0; r < d.NR; r++ {
		contrib[r] = LevelPredictor(&cur, m, r)
		if contrib[r] != nil {
			total.Add(total, contrib[r])
		}
	}

	for r := 0; r < d.NR; r++ {
		lvl := &m.Levels[r]
		if lvl.Method == model.SpatialGPP {
			return nil, errors.Wrapf(model.ErrUnsupportedConfiguration, "Level %d (%s): spatial method %s", r, lvl.Name, lvl.Method)
		}

		nf := st.NF(r)
		if nf == 0 {
			continue
		}

		// S = Z - (everything but level r)
		var resid mat.Dense
		resid.Sub(st.Z, total)
		resid.Add(&resid, contrib[r])

		stats := levelStats(st.Lambda[r], &resid, st.ID, m.Data.Pi, r, lvl.NP)

		var (
			next *mat.Dense
			err  error
		)
		switch lvl.Method {
		case model.SpatialNone:
			next, err = etaIndependent(stats, nf, gen)
		case model.SpatialFull:
			next, err = etaFull(stats, lvl, st.Alpha[r], nf, gen)
		case model.SpatialNNGP:
			next, err = etaNNGP(stats, lvl, st.Alpha[r], nf, gen)
		default:
			err = errors.Wrapf(model.ErrUnsupportedConfiguration, "Unknown spatial method %d", int(lvl.Method))
		}
		if err != nil {
			return nil, errors.Wrapf(err, "Level %d (%s) Eta", r, lvl.Name)
		}

		eta[r] = next
		if contrib[r] != nil {
			total.Sub(total, contrib[r])
		}
		contrib[r] = LevelPredictor(&cur, m, r)
		total.Add(total, contrib[r])
	}

	return eta, nil
}

// etaIndependent draws each unit from N(Q_u^-1 m_u, Q_u^-1) with
// Q_u = I + prec_u. Noise is drawn up front so the unit solves can run in
// parallel without touching the stream.
func etaIndependent(stats *unitStats, nf int, gen *rand.Generator) (*mat.Dense, error) {
	np := len(stats.prec)
	noise := gen.Normals(make([]float64, np*nf))
	out := mat.NewDense(np, nf, nil)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for u := 0; u < np; u++ {
		g.Go(func() error {
			q := mat.NewSymDense(nf, nil)
			q.CopySym(stats.prec[u])
			for h := 0; h < nf; h++ {
				q.SetSym(h, h, q.At(h, h)+1)
			}
			x, err := linalg.SampleCanonical(q, stats.mean[u], noise[u*nf:(u+1)*nf])
			if err != nil {
				return errors.Wrapf(err, "Unit %d", u)
			}
			out.SetRow(u, x)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func checkAlpha(lvl *model.Level, alpha []int, nf int) error {
	if len(alpha) != nf {
		return errors.Wrapf(model.ErrShapeInconsistency, "%d alpha indexes for %d factors", len(alpha), nf)
	}
	for h, a := range alpha {
		if a < 0 || a >= len(lvl.AlphaGrid) {
			return errors.Errorf("Alpha index %d of factor %d is outside the grid of %d", a, h, len(lvl.AlphaGrid))
		}
	}
	return nil
}

// etaFull solves the joint (np*nf)² system with a dense Cholesky. Unknowns
// are ordered unit-major: index u*nf+h.
func etaFull(stats *unitStats, lvl *model.Level, alpha []int, nf int, gen *rand.Generator) (*mat.Dense, error) {
	if err := checkAlpha(lvl, alpha, nf); err != nil {
		return nil, err
	}
	np := len(stats.prec)
	n := np * nf

	q := mat.NewSymDense(n, nil)
	for h := 0; h < nf; h++ {
		iw := lvl.FullTable[alpha[h]]
		for u := 0; u < np; u++ {
			for v := 0; v <= u; v++ {
				if x := iw.At(u, v); x != 0 {
					i, j := u*nf+h, v*nf+h
					q.SetSym(i, j, q.At(i, j)+x)
				}
			}
		}
	}

	b := make([]float64, n)
	for u := 0; u < np; u++ {
		pu := stats.prec[u]
		for h := 0; h < nf; h++ {
			b[u*nf+h] = stats.mean[u][h]
			for k := 0; k <= h; k++ {
				i, j := u*nf+h, u*nf+k
				q.SetSym(i, j, q.At(i, j)+pu.At(h, k))
			}
		}
	}

	x, err := linalg.SampleCanonical(q, b, gen.Normals(make([]float64, n)))
	if err != nil {
		return nil, err
	}
	return mat.NewDense(np, nf, x), nil
}

// etaNNGP is etaFull with the sparse neighbor precisions, solved through an
// envelope Cholesky on the same unit-major ordering.
func etaNNGP(stats *unitStats, lvl *model.Level, alpha []int, nf int, gen *rand.Generator) (*mat.Dense, error) {
	if err := checkAlpha(lvl, alpha, nf); err != nil {
		return nil, err
	}
	np := len(stats.prec)
	n := np * nf

	// row (u,h) reaches back to its own unit block and its spatial neighbors
	first := make([]int, n)
	for u := 0; u < np; u++ {
		for h := 0; h < nf; h++ {
			first[u*nf+h] = u * nf
		}
	}
	for h := 0; h < nf; h++ {
		lvl.NNGPTable[alpha[h]].Do(func(u, v int, _ float64) {
			if v < u && v*nf+h < first[u*nf+h] {
				first[u*nf+h] = v*nf + h
			}
		})
	}

	env, err := linalg.NewEnvelope(first)
	if err != nil {
		return nil, err
	}

	for h := 0; h < nf; h++ {
		lvl.NNGPTable[alpha[h]].Do(func(u, v int, x float64) {
			if v <= u && err == nil {
				err = env.Add(u*nf+h, v*nf+h, x)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	b := make([]float64, n)
	for u := 0; u < np; u++ {
		pu := stats.prec[u]
		for h := 0; h < nf; h++ {
			b[u*nf+h] = stats.mean[u][h]
			for k := 0; k <= h; k++ {
				if err := env.Add(u*nf+h, u*nf+k, pu.At(h, k)); err != nil {
					return nil, err
				}
			}
		}
	}

	x, err := env.SampleCanonical(b, gen.Normals(make([]float64, n)))
	if err != nil {
		return nil, err
	}
	return mat.NewDense(np, nf, x), nil
}

package update

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
)

// PoissonShape is the fixed negative-binomial shape r of the lognormal
// Poisson majorizer. Polya-Gamma shapes are Y+r, so never below r.
const PoissonShape = 1000.0

var logPoissonShape = math.Log(PoissonShape)

// ZOptions select the probit backend and the Poisson augmentation mode
type ZOptions struct {
	TruncatedNormal rand.TruncBackend

	// PoissonPreupdateZ redraws Z from its conditional given the previous
	// weight before the new weight is drawn.
	PoissonPreupdateZ bool

	// PoissonMarginalizeZ integrates Z out after the weight draw. Residual
	// scale updates must then skip Poisson species.
	PoissonMarginalizeZ bool
}

// ZResult is the outcome of one augmentation pass
type ZResult struct {
	Z  *mat.Dense
	ID *mat.Dense

	// Omega is the Polya-Gamma weight, nil when no species is Poisson
	Omega *mat.Dense
}

// familyOrder fixes the processing (and random stream) order of partitions
var familyOrder = []model.Family{model.Normal, model.Probit, model.Poisson}

// PartitionByFamily returns the species columns of each family, in
// familyOrder, each list ascending.
func PartitionByFamily(distr []model.Family) [][]int {
	parts := make([][]int, len(familyOrder))
	for j, f := range distr {
		for k, ff := range familyOrder {
			if f == ff {
				parts[k] = append(parts[k], j)
			}
		}
	}
	return parts
}

// zBlock is a family partition's result: columns cols of the full matrices
type zBlock struct {
	cols  []int
	z     [][]float64 // per column, ny values
	id    [][]float64
	omega [][]float64
}

func newBlock(cols []int, ny int, withOmega bool) *zBlock {
	b := &zBlock{
		cols: cols,
		z:    make([][]float64, len(cols)),
		id:   make([][]float64, len(cols)),
	}
	if withOmega {
		b.omega = make([][]float64, len(cols))
	}
	for c := range cols {
		b.z[c] = make([]float64, ny)
		b.id[c] = make([]float64, ny)
		if withOmega {
			b.omega[c] = make([]float64, ny)
		}
	}
	return b
}

// UpdateZ draws the latent surrogate Z and its precision iD from the
// current linear predictor. Each family partition gets its own child stream
// split off gen in a fixed order, so partitions run concurrently and the
// result still depends only on the seed.
func UpdateZ(st *model.State, m *model.Model, opts ZOptions, gen *rand.Generator) (*ZResult, error) {
	d := m.Dims
	for j, f := range m.Data.Distr {
		if !f.Valid() {
			return nil, errors.Wrapf(model.ErrUnsupportedConfiguration, "Species %d has family code %d", j, int(f))
		}
	}

	l := LinearPredictor(st, m)
	parts := PartitionByFamily(m.Data.Distr)

	gens := make([]*rand.Generator, len(familyOrder))
	for k := range gens {
		gens[k] = gen.Split()
	}

	blocks := make([]*zBlock, len(familyOrder))
	var g errgroup.Group
	for k, f := range familyOrder {
		cols := parts[k]
		if len(cols) == 0 {
			continue
		}
		g.Go(func() error {
			var err error
			switch f {
			case model.Normal:
				blocks[k] = normalBlock(cols, m.Data.Y, l, st.Sigma, gens[k])
			case model.Probit:
				blocks[k], err = probitBlock(cols, m.Data.Y, l, st.Sigma, opts.TruncatedNormal, gens[k])
			case model.Poisson:
				blocks[k], err = poissonBlock(cols, m.Data.Y, l, st, opts, gens[k])
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &ZResult{
		Z:  mat.NewDense(d.NY, d.NS, nil),
		ID: mat.NewDense(d.NY, d.NS, nil),
	}
	if len(parts[2]) > 0 {
		res.Omega = mat.NewDense(d.NY, d.NS, nil)
	}
	for _, b := range blocks {
		if b == nil {
			continue
		}
		for c, j := range b.cols {
			res.Z.SetCol(j, b.z[c])
			res.ID.SetCol(j, b.id[c])
			if b.omega != nil {
				res.Omega.SetCol(j, b.omega[c])
			}
		}
	}
	return res, nil
}

// normalBlock copies observed values through and fills missing entries
// from N(L, sigma).
func normalBlock(cols []int, y, l *mat.Dense, sigma []float64, gen *rand.Generator) *zBlock {
	ny, _ := y.Dims()
	b := newBlock(cols, ny, false)
	for c, j := range cols {
		s := sigma[j]
		prec := 1 / (s * s)
		for i := 0; i < ny; i++ {
			yv := y.At(i, j)
			if math.IsNaN(yv) {
				b.z[c][i] = l.At(i, j) + s*gen.NormFloat64()
				continue
			}
			b.z[c][i] = yv
			b.id[c][i] = prec
		}
	}
	return b
}

// probitBlock is the Albert-Chib step: Z is N(L, sigma) truncated to the
// half line that agrees with Y.
func probitBlock(cols []int, y, l *mat.Dense, sigma []float64, backend rand.TruncBackend, gen *rand.Generator) (*zBlock, error) {
	ny, _ := y.Dims()
	b := newBlock(cols, ny, false)
	for c, j := range cols {
		s := sigma[j]
		prec := 1 / (s * s)
		for i := 0; i < ny; i++ {
			yv := y.At(i, j)
			mu := l.At(i, j)
			if math.IsNaN(yv) {
				b.z[c][i] = mu + s*gen.NormFloat64()
				continue
			}

			lo, hi := math.Inf(-1), 0.0
			if yv == 1 {
				lo, hi = 0, math.Inf(1)
			}
			// Z must be finite and strictly on the side of zero Y asks for
			z := gen.TruncNormal(backend, mu, s, lo, hi)
			if math.IsNaN(z) || math.IsInf(z, 0) || z == 0 {
				return nil, errors.Wrapf(model.ErrNumericalDegeneracy, "Probit draw %v failed for species %d obs %d (L=%v sigma=%v)", z, j, i, mu, s)
			}
			b.z[c][i] = z
			b.id[c][i] = prec
		}
	}
	return b, nil
}

// poissonBlock is the lognormal Poisson step through Polya-Gamma
// augmentation of the negative-binomial majorizer.
func poissonBlock(cols []int, y, l *mat.Dense, st *model.State, opts ZOptions, gen *rand.Generator) (*zBlock, error) {
	ny, _ := y.Dims()
	b := newBlock(cols, ny, true)
	for c, j := range cols {
		s := st.Sigma[j]
		prec := 1 / (s * s)
		for i := 0; i < ny; i++ {
			yv := y.At(i, j)
			mu := l.At(i, j)
			if math.IsNaN(yv) {
				b.z[c][i] = mu + s*gen.NormFloat64()
				continue
			}

			z := st.Z.At(i, j)
			if opts.PoissonPreupdateZ && st.PoissonOmega != nil {
				if w := st.PoissonOmega.At(i, j); w > 0 {
					z = drawPoissonZ(yv, mu, prec, w, gen)
				}
			}

			w := gen.PolyaGammaApprox(yv+PoissonShape, z-logPoissonShape)
			if !(w > 0) || math.IsInf(w, 0) {
				return nil, errors.Wrapf(model.ErrNumericalDegeneracy, "Polya-Gamma weight %v for species %d obs %d", w, j, i)
			}
			b.omega[c][i] = w

			if opts.PoissonMarginalizeZ {
				b.z[c][i] = MarginalPoissonZ(yv, w)
				b.id[c][i] = 1 / (s*s + 1/w)
			} else {
				b.z[c][i] = drawPoissonZ(yv, mu, prec, w, gen)
				b.id[c][i] = prec
			}
		}
	}
	return b, nil
}

// PoissonConditional returns the mean and variance of Z given Y, the
// predictor mu, the residual precision and the weight w.
func PoissonConditional(y, mu, prec, w float64) (mean, variance float64) {
	variance = 1 / (prec + w)
	mean = variance * ((y-PoissonShape)/2 + w*logPoissonShape + prec*mu)
	return mean, variance
}

// MarginalPoissonZ is the point value used when Z is integrated out
func MarginalPoissonZ(y, w float64) float64 {
	return (y-PoissonShape)/(2*w) + logPoissonShape
}

func drawPoissonZ(y, mu, prec, w float64, gen *rand.Generator) float64 {
	mean, v := PoissonConditional(y, mu, prec, w)
	return mean + math.Sqrt(v)*gen.NormFloat64()
}

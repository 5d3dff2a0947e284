package sampler

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
)

// testModel has a Normal, a Probit and a Poisson species observed ny times,
// with one missing response each and observations spread over the units.
func testModel(ny int, np ...int) *model.Model {
	gen, _ := rand.NewGenerator(17)

	x := mat.NewDense(ny, 2, nil)
	y := mat.NewDense(ny, 3, nil)
	for i := 0; i < ny; i++ {
		cov := gen.NormFloat64()
		x.Set(i, 0, 1)
		x.Set(i, 1, cov)
		y.Set(i, 0, 0.5-cov+0.3*gen.NormFloat64())
		if cov+0.5*gen.NormFloat64() > 0 {
			y.Set(i, 1, 1)
		}
		y.Set(i, 2, math.Floor(3*gen.Float64()))
	}
	y.Set(0, 0, math.NaN())
	y.Set(1, 1, math.NaN())
	y.Set(2, 2, math.NaN())

	pi := make([][]int, ny)
	for i := range pi {
		pi[i] = make([]int, len(np))
		for r, n := range np {
			pi[i][r] = i % n
		}
	}

	dims := model.Dimensions{NS: 3, NY: ny, NR: len(np), NC: 2, NT: 1, NP: np}
	levels := make([]model.Level, len(np))
	for r, n := range np {
		levels[r] = model.NewLevel("level", n)
	}
	return &model.Model{
		Name: "test",
		Dims: dims,
		Data: model.Data{
			Y:     y,
			X:     x,
			Pi:    pi,
			Distr: []model.Family{model.Normal, model.Probit, model.Poisson},
		},
		Prior:  model.DefaultPrior(dims),
		Levels: levels,
	}
}

func seed(v int64) *int64 {
	return &v
}

func testConfig(burnIn, samples, thinning int) Config {
	cfg := DefaultConfig()
	cfg.BurnIn = burnIn
	cfg.NumSamples = samples
	cfg.Thinning = thinning
	cfg.VerboseEvery = 1
	cfg.Seed = seed(42)
	return cfg
}

func newTestChain(t *testing.T, m *model.Model, cfg Config, opts ...Option) *Chain {
	ch, err := NewChain(m, nil, cfg, opts...)
	require.NoError(t, err)
	return ch
}

// matrices compare by value; nil only equals nil
var matrixEqual = cmp.Options{
	cmp.Comparer(func(a, b *mat.Dense) bool {
		if a == nil || b == nil {
			return a == b
		}
		return mat.Equal(a, b)
	}),
	cmp.Comparer(func(a, b *mat.SymDense) bool {
		if a == nil || b == nil {
			return a == b
		}
		return mat.Equal(a, b)
	}),
}

func finite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// recorder remembers every progress report
type recorder struct {
	iters []int
	slots []int
	total int
	hook  func(iter int)
}

func (r *recorder) Progress(iter, total, slot int) {
	r.iters = append(r.iters, iter)
	r.slots = append(r.slots, slot)
	r.total = total
	if r.hook != nil {
		r.hook(iter)
	}
}

package update

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
)

// mixedModel has one species per family, ny observations spread over the
// units of each level, and a couple of missing responses.
func mixedModel(ny int, np ...int) *model.Model {
	gen, _ := rand.NewGenerator(99)

	x := mat.NewDense(ny, 2, nil)
	y := mat.NewDense(ny, 3, nil)
	for i := 0; i < ny; i++ {
		cov := gen.NormFloat64()
		x.Set(i, 0, 1)
		x.Set(i, 1, cov)
		y.Set(i, 0, 0.3+0.8*cov+0.5*gen.NormFloat64())
		if gen.Float64() < 0.5 {
			y.Set(i, 1, 1)
		}
		y.Set(i, 2, float64(int(5*gen.Float64())))
	}
	y.Set(1, 0, math.NaN())
	y.Set(2, 1, math.NaN())
	y.Set(3, 2, math.NaN())

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
		Name: "mixed",
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

func newState(t *testing.T, m *model.Model) *model.State {
	require.NoError(t, m.Check())
	gen, err := rand.NewGenerator(1234)
	require.NoError(t, err)
	st, err := model.NewInitialState(m, gen)
	require.NoError(t, err)
	return st
}

func newGen(t *testing.T, seed int64) *rand.Generator {
	gen, err := rand.NewGenerator(seed)
	require.NoError(t, err)
	return gen
}

func identity(n int) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		s.SetSym(i, i, 1)
	}
	return s
}

func allFinite(m *mat.Dense) bool {
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

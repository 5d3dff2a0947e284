package update

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
)

func TestTau(t *testing.T) {
	assert.Equal(t, []float64{2, 6, 3}, Tau([]float64{2, 3, 0.5}))
	assert.Empty(t, Tau(nil))
}

// regression with no random levels and plenty of clean data
func regressionModel(ny int) *model.Model {
	m := mixedModel(ny)
	m.Data.Distr = []model.Family{model.Normal, model.Normal, model.Normal}
	gen, _ := rand.NewGenerator(5)
	for i := 0; i < ny; i++ {
		x := m.Data.X.At(i, 1)
		m.Data.Y.Set(i, 0, 1+2*x+0.1*gen.NormFloat64())
		m.Data.Y.Set(i, 1, -1+0.5*x+0.1*gen.NormFloat64())
		m.Data.Y.Set(i, 2, 3*x+0.1*gen.NormFloat64())
	}
	return m
}

func TestConjugateBetaLambdaRecovers(t *testing.T) {
	assert := assert.New(t)

	m := regressionModel(2000)
	m.Prior.BSigma = []float64{1e-3, 1e-3, 1e-3}
	st := newState(t, m)
	for j := range st.Sigma {
		st.Sigma[j] = 0.1
	}
	res, err := UpdateZ(st, m, ZOptions{}, newGen(t, 1))
	require.NoError(t, err)
	st.Z, st.ID = res.Z, res.ID

	beta, lambda, err := ConjugateBetaLambda{}.UpdateBetaLambda(st, m, newGen(t, 2))
	require.NoError(t, err)
	assert.Empty(lambda)

	exp := [][]float64{{1, -1, 0}, {2, 0.5, 3}}
	for a := 0; a < 2; a++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(exp[a][j], beta.At(a, j), 0.02, "Beta[%d][%d]", a, j)
		}
	}

	sigma, err := GammaSigma{}.UpdateSigma(&model.State{
		Z: st.Z, ID: st.ID, Beta: beta, Sigma: st.Sigma,
		Lambda: st.Lambda, Eta: st.Eta,
	}, m, newGen(t, 3))
	require.NoError(t, err)
	for j := range sigma {
		assert.InDelta(0.1, sigma[j], 0.01)
	}
}

func TestConjugateBetaLambdaShapes(t *testing.T) {
	assert := assert.New(t)

	m := mixedModel(10, 4, 2)
	st := newState(t, m)
	beta, lambda, err := ConjugateBetaLambda{}.UpdateBetaLambda(st, m, newGen(t, 2))
	require.NoError(t, err)

	r, c := beta.Dims()
	assert.Equal([]int{2, 3}, []int{r, c})
	assert.Len(lambda, 2)
	for _, l := range lambda {
		r, c := l.Dims()
		assert.Equal([]int{2, 3}, []int{r, c})
		assert.True(allFinite(l))
	}
}

func TestGammaSigmaSkips(t *testing.T) {
	assert := assert.New(t)

	m := mixedModel(10, 4)
	st := newState(t, m)
	st.Sigma = []float64{2, 3, 4}

	sigma, err := GammaSigma{SkipPoisson: true}.UpdateSigma(st, m, newGen(t, 1))
	require.NoError(t, err)
	assert.NotEqual(2.0, sigma[0])
	assert.Equal(3.0, sigma[1])
	assert.Equal(4.0, sigma[2])
	assert.Equal([]float64{2, 3, 4}, st.Sigma)

	sigma, err = GammaSigma{}.UpdateSigma(st, m, newGen(t, 1))
	require.NoError(t, err)
	assert.NotEqual(4.0, sigma[2])
}

func TestConjugateGammaV(t *testing.T) {
	assert := assert.New(t)

	m := mixedModel(10, 4)
	st := newState(t, m)
	gamma, v, iv, err := ConjugateGammaV{}.UpdateGammaV(st, m, newGen(t, 9))
	require.NoError(t, err)

	r, c := gamma.Dims()
	assert.Equal([]int{2, 1}, []int{r, c})
	var prod mat.Dense
	prod.Mul(v, iv)
	assert.True(mat.EqualApprox(&prod, identity(2), 1e-9))
}

func TestWishartMean(t *testing.T) {
	assert := assert.New(t)

	// E[W] = df * S^-1
	s := mat.NewSymDense(2, []float64{2, 0.5, 0.5, 1})
	inv, err := invertSym(s)
	require.NoError(t, err)

	gen := newGen(t, 31)
	const reps = 20000
	df := 6.0
	avg := mat.NewDense(2, 2, nil)
	for k := 0; k < reps; k++ {
		w, err := wishartInverseScale(s, df, gen)
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				avg.Set(i, j, avg.At(i, j)+w.At(i, j)/reps)
			}
		}
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(df*inv.At(i, j), avg.At(i, j), 0.1)
		}
	}

	_, err = wishartInverseScale(s, 0.5, gen)
	assert.Error(err)
}

func TestMGPLambdaPriors(t *testing.T) {
	assert := assert.New(t)

	m := mixedModel(10, 4, 3)
	m.Levels[1].NfInit, m.Levels[1].NfMin = 0, 0
	st := newState(t, m)

	psi, delta, err := MGPLambdaPriors{}.UpdateLambdaPriors(st, m, newGen(t, 4))
	require.NoError(t, err)
	require.Len(t, psi, 2)
	assert.Nil(psi[1])
	assert.Empty(delta[1])

	r, c := psi[0].Dims()
	assert.Equal([]int{2, 3}, []int{r, c})
	for h := 0; h < 2; h++ {
		assert.True(delta[0][h] > 0)
		for j := 0; j < 3; j++ {
			assert.True(psi[0].At(h, j) > 0)
		}
	}
	assert.Equal([]float64{1, 1}, st.Delta[0])
}

func TestGridAlpha(t *testing.T) {
	assert := assert.New(t)

	m := mixedModel(16, 4, 2)
	spatialLevel(t, m, model.SpatialNNGP)
	st := newState(t, m)

	// a smooth field prefers the long range
	for u, v := range []float64{1, 1.1, 1.05, 1.15} {
		st.Eta[0].Set(u, 0, 3*v)
	}

	counts := make([]int, 2)
	gen := newGen(t, 6)
	for k := 0; k < 200; k++ {
		alpha, err := GridAlpha{}.UpdateAlpha(st, m, gen)
		require.NoError(t, err)
		require.Len(t, alpha[0], 2)
		assert.Equal(st.Alpha[1], alpha[1])
		counts[alpha[0][0]]++
	}
	assert.True(counts[1] > counts[0], "counts %v", counts)
}

func TestAdaptNf(t *testing.T) {
	assert := assert.New(t)

	m := mixedModel(10, 4)
	m.Levels[0].NfMin = 1
	m.Levels[0].NfMax = 3
	st := newState(t, m)

	always := NewAdaptNf()
	always.B0 = -10

	// loadings of factor 0 vanish: it is dropped
	for j := 0; j < 3; j++ {
		st.Lambda[0].Set(0, j, 0)
		st.Lambda[0].Set(1, j, 1)
	}
	st.Alpha[0] = []int{0, 7}
	res, err := always.UpdateNf(st, m, 3, newGen(t, 1))
	require.NoError(t, err)
	assert.Equal([]int{0}, res.Changed)
	next := st.Clone()
	next.Lambda, next.Psi, next.Delta, next.Eta, next.Alpha = res.Lambda, res.Psi, res.Delta, res.Eta, res.Alpha
	assert.NoError(next.CheckShapes(m.Dims))
	assert.Equal(1, next.NF(0))
	assert.Equal([]int{7}, next.Alpha[0])
	assert.Equal(st.Eta[0].At(2, 1), next.Eta[0].At(2, 0))

	// nothing redundant: early on nothing happens, later a factor is added
	for j := 0; j < 3; j++ {
		st.Lambda[0].Set(0, j, 1)
	}
	res, err = always.UpdateNf(st, m, 10, newGen(t, 1))
	require.NoError(t, err)
	assert.Empty(res.Changed)
	res, err = always.UpdateNf(st, m, 30, newGen(t, 1))
	require.NoError(t, err)
	assert.Equal([]int{0}, res.Changed)
	next.Lambda, next.Psi, next.Delta, next.Eta, next.Alpha = res.Lambda, res.Psi, res.Delta, res.Eta, res.Alpha
	assert.NoError(next.CheckShapes(m.Dims))
	assert.Equal(3, next.NF(0))
	assert.Equal(0.0, next.Lambda[0].At(2, 1))
	assert.Equal(st.Eta[0].At(3, 1), next.Eta[0].At(3, 1))

	// never above NfMax
	m.Levels[0].NfMax = 2
	res, err = always.UpdateNf(st, m, 30, newGen(t, 1))
	require.NoError(t, err)
	assert.Empty(res.Changed)

	// rarely fires late in a long burn-in
	never := NewAdaptNf()
	never.B0 = 50
	res, err = never.UpdateNf(st, m, 30, newGen(t, 1))
	require.NoError(t, err)
	assert.Empty(res.Changed)
	assert.False(math.IsNaN(res.Delta[0][0]))
}

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/sampler"
)

// runChain samples a two species model with a factor level and an empty one
func runChain(t *testing.T, id int) *sampler.Samples {
	ny := 8
	x := mat.NewDense(ny, 2, nil)
	y := mat.NewDense(ny, 2, nil)
	pi := make([][]int, ny)
	for i := 0; i < ny; i++ {
		x.Set(i, 0, 1)
		x.Set(i, 1, float64(i)/4-1)
		y.Set(i, 0, float64(i%3))
		y.Set(i, 1, float64(i%2))
		pi[i] = []int{i % 4, i % 2}
	}
	dims := model.Dimensions{NS: 2, NY: ny, NR: 2, NC: 2, NT: 1, NP: []int{4, 2}}
	empty := model.NewLevel("empty", 2)
	empty.NfInit, empty.NfMin, empty.NfMax = 0, 0, 0
	m := &model.Model{
		Name:   "store",
		Dims:   dims,
		Data:   model.Data{Y: y, X: x, Pi: pi, Distr: []model.Family{model.Normal, model.Probit}},
		Prior:  model.DefaultPrior(dims),
		Levels: []model.Level{model.NewLevel("plot", 4), empty},
	}

	cfg := sampler.DefaultConfig()
	cfg.BurnIn, cfg.NumSamples, cfg.Thinning = 2, 3, 1
	s := int64(5)
	cfg.Seed = &s
	ch, err := sampler.NewChain(m, nil, cfg, sampler.WithChainID(id))
	require.NoError(t, err)
	out, err := ch.Run(context.Background())
	require.NoError(t, err)
	return out
}

func TestSQLiteRoundTrip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	db, err := Open(filepath.Join(t.TempDir(), "draws.db"))
	require.NoError(t, err)
	defer db.Close()

	smp := runChain(t, 0)
	run := NewRunID()
	_, err = uuid.Parse(run)
	assert.NoError(err)
	require.NoError(t, db.SaveChain(ctx, run, 0, smp))

	beta, err := db.LoadParam(ctx, run, 0, ParamBeta, GlobalLevel)
	require.NoError(t, err)
	require.Len(t, beta, 3)
	for k, d := range beta {
		assert.Equal(k, d.Sample)
		assert.Equal(smp.Iteration[k], d.Iteration)
		assert.True(mat.Equal(smp.Beta[k], d.Dense()))
	}

	eta, err := db.LoadParam(ctx, run, 0, ParamEta, 0)
	require.NoError(t, err)
	assert.True(mat.Equal(smp.Eta[0][2], eta[2].Dense()))

	alpha, err := db.LoadParam(ctx, run, 0, ParamAlpha, 0)
	require.NoError(t, err)
	assert.Equal(len(smp.Alpha[0][0]), alpha[0].Cols)

	// the empty level is stored as empty draws
	lambda, err := db.LoadParam(ctx, run, 0, ParamLambda, 1)
	require.NoError(t, err)
	require.Len(t, lambda, 3)
	assert.Nil(lambda[0].Dense())
	assert.Empty(lambda[0].Values)

	// nothing under another chain or run
	none, err := db.LoadParam(ctx, run, 1, ParamBeta, GlobalLevel)
	assert.NoError(err)
	assert.Empty(none)

	// a chain cannot be saved twice
	assert.Error(db.SaveChain(ctx, run, 0, smp))

	runs, err := db.Runs(ctx)
	assert.NoError(err)
	assert.Equal([]string{run}, runs)
}

func TestSQLiteErrors(t *testing.T) {
	assert := assert.New(t)

	_, err := Open("  ")
	assert.Error(err)

	db, err := Open(":memory:")
	require.NoError(t, err)
	assert.Error(db.SaveChain(context.Background(), "", 0, &sampler.Samples{}))
	assert.Error(db.SaveChain(context.Background(), "run", 0, nil))
	assert.NoError(db.Close())

	var nilStore *SQLite
	assert.NoError(nilStore.Close())
}

func TestWriteJSON(t *testing.T) {
	assert := assert.New(t)

	chains := []*sampler.Samples{runChain(t, 0), runChain(t, 1)}
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, chains))

	var got map[string]map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	require.Len(t, got["1"], 3)

	post := got["0"]["2"]
	assert.Equal("1", string(post["rhoInd"]))
	for _, f := range []string{"wRRR", "rho", "PsiRRR", "DeltaRRR"} {
		assert.Equal("null", string(post[f]), f)
	}

	var beta [][]float64
	require.NoError(t, json.Unmarshal(post["Beta"], &beta))
	assert.Equal(chains[0].Beta[2].RawRowView(1), beta[1])

	var eta [][][]float64
	require.NoError(t, json.Unmarshal(post["Eta"], &eta))
	require.Len(t, eta, 2)
	assert.Len(eta[0], 4)
	assert.Empty(eta[1])

	assert.Error(WriteJSON(&buf, []*sampler.Samples{nil}))
}

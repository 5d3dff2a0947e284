package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlExample = `
y:
  - [0.5, 1, 0]
  - [-1.2, 0, 3]
  - [null, 1, 7]
  - [2.0, null, 1]
x:
  - [1, 0.2]
  - [1, -0.4]
  - [1, 1.1]
  - [1, 0.0]
pi: [[0, 0], [0, 1], [1, 2], [1, 3]]
distr: [1, 2, 3]
prior:
  a_sigma: [2, 2, 2]
levels:
  - name: plot
    units: 2
    nf_init: 3
  - name: site
    method: nngp
    coords: [[0, 0], [1, 0], [0, 1], [1, 1]]
    neighbours: 2
    grid_size: 5
`

func TestYAMLExample(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	m, err := NewModelFromBuffer(YAMLReader{}, []byte(yamlExample))
	require.NoError(err)

	assert.Equal(Dimensions{NS: 3, NY: 4, NR: 2, NC: 2, NT: 1, NP: []int{2, 4}}, m.Dims)
	assert.True(math.IsNaN(m.Data.Y.At(2, 0)))
	assert.True(math.IsNaN(m.Data.Y.At(3, 1)))
	assert.Equal(7.0, m.Data.Y.At(2, 2))
	assert.Equal([]Family{Normal, Probit, Poisson}, m.Data.Distr)
	assert.Equal([]float64{2, 2, 2}, m.Prior.ASigma)
	assert.Equal([]float64{5, 5, 5}, m.Prior.BSigma)

	plot := m.Levels[0]
	assert.Equal(SpatialNone, plot.Method)
	assert.Equal(3, plot.NfInit)
	assert.Equal(3.0, plot.Nu)

	site := m.Levels[1]
	assert.Equal(SpatialNNGP, site.Method)
	assert.Len(site.AlphaGrid, 5)
	assert.Len(site.NNGPTable, 5)
	assert.Len(site.LogDet, 5)
	assert.InDelta(math.Sqrt2, site.AlphaGrid[4], 1e-12)
}

func TestYAMLErrors(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		name string
		text string
	}{
		{"empty", `y: []`},
		{"unknown field", "y: [[1]]\nx: [[1]]\npi: [[]]\ndistr: [1]\ncolour: red\n"},
		{"ragged y", "y: [[1, 2], [1]]\nx: [[1], [1]]\npi: [[], []]\ndistr: [1, 1]\n"},
		{"ragged x", "y: [[1], [1]]\nx: [[1, 2], [1]]\npi: [[], []]\ndistr: [1]\n"},
		{"bad family", "y: [[1]]\nx: [[1]]\npi: [[]]\ndistr: [5]\n"},
		{"bad pi", "y: [[1]]\nx: [[1]]\npi: [[2]]\ndistr: [1]\nlevels: [{name: a, units: 2}]\n"},
		{"asymmetric v0", "y: [[1]]\nx: [[1, 1]]\npi: [[]]\ndistr: [1]\nprior: {v0: [[1, 0.5], [0, 1]]}\n"},
		{"coords mismatch", "y: [[1]]\nx: [[1]]\npi: [[0]]\ndistr: [1]\nlevels: [{name: a, units: 2, method: full, coords: [[0, 0]]}]\n"},
	}

	for _, c := range cases {
		_, err := NewModelFromBuffer(YAMLReader{}, []byte(c.text))
		assert.Error(err, c.name)
	}

	gpp := "y: [[1]]\nx: [[1]]\npi: [[0]]\ndistr: [1]\nlevels: [{name: a, method: gpp, coords: [[0, 0]]}]\n"
	_, err := NewModelFromBuffer(YAMLReader{}, []byte(gpp))
	assert.True(errors.Is(err, ErrUnsupportedConfiguration))
}

func TestModelFromFile(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	dir := t.TempDir()
	fn := filepath.Join(dir, "birds.yaml")
	require.NoError(os.WriteFile(fn, []byte(yamlExample), 0o644))

	m, err := NewModelFromFile(YAMLReader{}, fn)
	require.NoError(err)
	assert.Equal("birds", m.Name)

	_, err = NewModelFromFile(YAMLReader{}, filepath.Join(dir, "missing.yaml"))
	assert.Error(err)
}

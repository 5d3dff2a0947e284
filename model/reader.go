package model

import (
	"bytes"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/CraigKelly/jsdm/spatial"
)

// YAMLReader reads the YAML (or JSON) model file format. Null entries in
// the response matrix are missing observations. Spatial levels give unit
// coordinates and their precision tables are built while reading.
type YAMLReader struct {
}

type fileModel struct {
	Name     string        `yaml:"name"`
	Y        [][]*float64  `yaml:"y"`
	X        [][]float64   `yaml:"x"`
	XSpecies [][][]float64 `yaml:"x_species"`
	Pi       [][]int       `yaml:"pi"`
	Distr    []int         `yaml:"distr"`
	Traits   [][]float64   `yaml:"traits"`
	Prior    *filePrior    `yaml:"prior"`
	Levels   []fileLevel   `yaml:"levels"`
}

type filePrior struct {
	MGamma [][]float64 `yaml:"m_gamma"`
	UGamma [][]float64 `yaml:"u_gamma"`
	V0     [][]float64 `yaml:"v0"`
	F0     *float64    `yaml:"f0"`
	ASigma []float64   `yaml:"a_sigma"`
	BSigma []float64   `yaml:"b_sigma"`
}

type fileLevel struct {
	Name       string      `yaml:"name"`
	Units      int         `yaml:"units"`
	Method     string      `yaml:"method"`
	Coords     [][]float64 `yaml:"coords"`
	Neighbours int         `yaml:"neighbours"`
	GridSize   int         `yaml:"grid_size"`
	Nu         *float64    `yaml:"nu"`
	A1         *float64    `yaml:"a1"`
	B1         *float64    `yaml:"b1"`
	A2         *float64    `yaml:"a2"`
	B2         *float64    `yaml:"b2"`
	NfInit     *int        `yaml:"nf_init"`
	NfMin      *int        `yaml:"nf_min"`
	NfMax      *int        `yaml:"nf_max"`
}

// DefaultNeighbours is the NNGP neighbour count when a level gives none
const DefaultNeighbours = 10

// ReadModel implements the model.Reader interface
func (r YAMLReader) ReadModel(data []byte) (*Model, error) {
	var fm fileModel
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fm); err != nil {
		return nil, errors.Wrap(err, "Invalid YAML model")
	}

	if len(fm.Y) < 1 || len(fm.Y[0]) < 1 {
		return nil, errors.Errorf("Model has an empty response matrix")
	}

	ny, ns := len(fm.Y), len(fm.Y[0])
	y := mat.NewDense(ny, ns, nil)
	for i, row := range fm.Y {
		if len(row) != ns {
			return nil, errors.Errorf("Row %d of y has %d entries, expected %d", i, len(row), ns)
		}
		for j, v := range row {
			if v == nil {
				y.Set(i, j, math.NaN())
			} else {
				y.Set(i, j, *v)
			}
		}
	}

	m := &Model{Name: fm.Name}
	m.Data.Y = y

	var err error
	var nc int
	if len(fm.XSpecies) > 0 {
		m.Data.XSpecies = make([]*mat.Dense, len(fm.XSpecies))
		for j, x := range fm.XSpecies {
			if m.Data.XSpecies[j], err = denseFrom(x); err != nil {
				return nil, errors.Wrapf(err, "x_species[%d]", j)
			}
		}
		_, nc = m.Data.XSpecies[0].Dims()
	} else {
		if m.Data.X, err = denseFrom(fm.X); err != nil {
			return nil, errors.Wrap(err, "x")
		}
		_, nc = m.Data.X.Dims()
	}

	m.Data.Pi = fm.Pi
	m.Data.Distr = make([]Family, len(fm.Distr))
	for j, code := range fm.Distr {
		m.Data.Distr[j] = Family(code)
	}

	m.Dims = Dimensions{
		NS: ns,
		NY: ny,
		NR: len(fm.Levels),
		NC: nc,
		NT: 1,
		NP: make([]int, len(fm.Levels)),
	}

	m.Levels = make([]Level, len(fm.Levels))
	for i, fl := range fm.Levels {
		lvl, err := fl.build()
		if err != nil {
			return nil, errors.Wrapf(err, "Level %d (%s)", i, fl.Name)
		}
		m.Levels[i] = lvl
		m.Dims.NP[i] = lvl.NP
	}

	if len(fm.Traits) > 0 {
		tr, err := denseFrom(fm.Traits)
		if err != nil {
			return nil, errors.Wrap(err, "traits")
		}
		_, m.Dims.NT = tr.Dims()
		m.Prior = DefaultPrior(m.Dims)
		m.Prior.Tr = tr
	} else {
		m.Prior = DefaultPrior(m.Dims)
	}

	if fm.Prior != nil {
		if err := fm.Prior.apply(&m.Prior); err != nil {
			return nil, errors.Wrap(err, "prior")
		}
	}

	return m, nil
}

func (fp *filePrior) apply(p *Prior) error {
	var err error
	if len(fp.MGamma) > 0 {
		if p.MGamma, err = denseFrom(fp.MGamma); err != nil {
			return errors.Wrap(err, "m_gamma")
		}
	}
	if len(fp.UGamma) > 0 {
		if p.UGamma, err = symFrom(fp.UGamma); err != nil {
			return errors.Wrap(err, "u_gamma")
		}
	}
	if len(fp.V0) > 0 {
		if p.V0, err = symFrom(fp.V0); err != nil {
			return errors.Wrap(err, "v0")
		}
	}
	if fp.F0 != nil {
		p.F0 = *fp.F0
	}
	if fp.ASigma != nil {
		p.ASigma = fp.ASigma
	}
	if fp.BSigma != nil {
		p.BSigma = fp.BSigma
	}
	return nil
}

func (fl *fileLevel) build() (Level, error) {
	np := fl.Units
	if np == 0 {
		np = len(fl.Coords)
	}
	lvl := NewLevel(fl.Name, np)

	setFloat(&lvl.Nu, fl.Nu)
	setFloat(&lvl.A1, fl.A1)
	setFloat(&lvl.B1, fl.B1)
	setFloat(&lvl.A2, fl.A2)
	setFloat(&lvl.B2, fl.B2)
	setInt(&lvl.NfInit, fl.NfInit)
	setInt(&lvl.NfMin, fl.NfMin)
	setInt(&lvl.NfMax, fl.NfMax)

	method, err := ParseSpatialMethod(fl.Method)
	if err != nil {
		return lvl, err
	}
	lvl.Method = method

	switch method {
	case SpatialNone:
		return lvl, nil
	case SpatialGPP:
		return lvl, unsupported("Spatial method %s is not implemented", method)
	}

	if len(fl.Coords) != np {
		return lvl, errors.Errorf("Spatial level has %d units but %d coordinates", np, len(fl.Coords))
	}

	size := fl.GridSize
	if size == 0 {
		size = spatial.DefaultGridSize
	}
	if lvl.AlphaGrid, lvl.AlphaPrior, err = spatial.AlphaGrid(fl.Coords, size); err != nil {
		return lvl, err
	}

	if method == SpatialFull {
		lvl.FullTable, lvl.LogDet, err = spatial.FullTable(fl.Coords, lvl.AlphaGrid)
	} else {
		k := fl.Neighbours
		if k == 0 {
			k = DefaultNeighbours
		}
		lvl.NNGPTable, lvl.LogDet, err = spatial.NNGPTable(fl.Coords, lvl.AlphaGrid, k)
	}
	return lvl, err
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func denseFrom(rows [][]float64) (*mat.Dense, error) {
	if len(rows) < 1 || len(rows[0]) < 1 {
		return nil, errors.Errorf("Matrix is empty")
	}
	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, errors.Errorf("Row %d has %d entries, expected %d", i, len(row), c)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), c, data), nil
}

func symFrom(rows [][]float64) (*mat.SymDense, error) {
	d, err := denseFrom(rows)
	if err != nil {
		return nil, err
	}
	r, c := d.Dims()
	if r != c {
		return nil, errors.Errorf("Matrix is %dx%d, expected square", r, c)
	}
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := 0; j <= i; j++ {
			if d.At(i, j) != d.At(j, i) {
				return nil, errors.Errorf("Matrix is not symmetric at (%d, %d)", i, j)
			}
			s.SetSym(i, j, d.At(i, j))
		}
	}
	return s, nil
}

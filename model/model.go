package model

import (
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/linalg"
)

// Reader implementors instantiate a model from a byte stream
type Reader interface {
	ReadModel(data []byte) (*Model, error)
}

// Dimensions are the fixed counts of a model run
type Dimensions struct {
	NS int   // species (response columns)
	NY int   // observations (rows)
	NR int   // random levels
	NC int   // fixed covariates
	NT int   // species traits
	NP []int // units per random level
}

// Data is the observed data. Missing responses are NaN in Y.
type Data struct {
	Y        *mat.Dense   // ny×ns
	X        *mat.Dense   // ny×nc, shared by every species
	XSpecies []*mat.Dense // optional: ns matrices of ny×nc, one per species
	Pi       [][]int      // ny×nr: Pi[i][r] is the unit of observation i at level r
	Distr    []Family     // ns
}

// Prior holds the fixed-effect and residual hyperparameters
type Prior struct {
	Tr     *mat.Dense    // ns×nt trait matrix
	MGamma *mat.Dense    // nc×nt prior mean of Gamma
	UGamma *mat.SymDense // (nc*nt)×(nc*nt) prior covariance of Gamma
	V0     *mat.SymDense // nc×nc inverse-Wishart scale for V
	F0     float64       // inverse-Wishart degrees of freedom
	ASigma []float64     // ns, gamma shape on sigma^-2
	BSigma []float64     // ns, gamma rate on sigma^-2
}

// Level is the static configuration of one random level. The spatial
// tables are read-only for the whole run and shared by all chains.
type Level struct {
	Name   string
	NP     int
	Method SpatialMethod

	AlphaGrid  []float64        // candidate spatial ranges
	AlphaPrior []float64        // prior weight per grid point
	FullTable  []*mat.SymDense  // SpatialFull: iW per grid point
	NNGPTable  []*linalg.Sparse // SpatialNNGP: sparse iW per grid point
	LogDet     []float64        // log|iW| per grid point

	// multiplicative gamma process shrinkage
	Nu, A1, B1, A2, B2 float64

	// factor count adaptation
	NfInit, NfMin, NfMax int
}

// NewLevel returns a non-spatial level with the usual shrinkage defaults
func NewLevel(name string, np int) Level {
	return Level{
		Name:   name,
		NP:     np,
		Method: SpatialNone,
		Nu:     3,
		A1:     50,
		B1:     1,
		A2:     50,
		B2:     1,
		NfInit: 2,
		NfMin:  2,
		NfMax:  math.MaxInt32,
	}
}

// Spatial is true when the level carries a spatial prior on its factors
func (l *Level) Spatial() bool {
	return l.Method != SpatialNone
}

// Model is everything about a run that does not change while sampling
type Model struct {
	Name   string
	Dims   Dimensions
	Data   Data
	Prior  Prior
	Levels []Level
}

// DefaultPrior returns vague hyperparameters for the given dimensions
func DefaultPrior(dims Dimensions) Prior {
	nt := dims.NT
	if nt < 1 {
		nt = 1
	}

	tr := mat.NewDense(dims.NS, nt, nil)
	for j := 0; j < dims.NS; j++ {
		tr.Set(j, 0, 1)
	}

	ug := mat.NewSymDense(dims.NC*nt, nil)
	for i := 0; i < dims.NC*nt; i++ {
		ug.SetSym(i, i, 1)
	}
	v0 := mat.NewSymDense(dims.NC, nil)
	for i := 0; i < dims.NC; i++ {
		v0.SetSym(i, i, 1)
	}

	aSigma := make([]float64, dims.NS)
	bSigma := make([]float64, dims.NS)
	for j := range aSigma {
		aSigma[j] = 1
		bSigma[j] = 5
	}

	return Prior{
		Tr:     tr,
		MGamma: mat.NewDense(dims.NC, nt, nil),
		UGamma: ug,
		V0:     v0,
		F0:     float64(dims.NC + 1),
		ASigma: aSigma,
		BSigma: bSigma,
	}
}

// NewModelFromFile initializes and creates a model from the specified source.
func NewModelFromFile(r Reader, filename string) (*Model, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not READ model from %s", filename)
	}

	m, err := NewModelFromBuffer(r, data)
	if err != nil {
		return nil, err
	}

	if m.Name == "" {
		ext := filepath.Ext(filename)
		m.Name = filepath.Base(filename[0 : len(filename)-len(ext)])
	}
	return m, nil
}

// NewModelFromBuffer creates a model from the given pre-read data
func NewModelFromBuffer(r Reader, data []byte) (*Model, error) {
	m, err := r.ReadModel(data)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not PARSE model")
	}

	err = m.Check()
	if err != nil {
		return nil, errors.Wrapf(err, "Parsed model is not valid")
	}

	return m, nil
}

// XFor returns the design matrix used for species j
func (m *Model) XFor(j int) *mat.Dense {
	if len(m.Data.XSpecies) > 0 {
		return m.Data.XSpecies[j]
	}
	return m.Data.X
}

// Check returns an error if there is a problem with the model
func (m *Model) Check() error {
	d := m.Dims
	if d.NS < 1 || d.NY < 1 || d.NC < 1 {
		return errors.Errorf("Model %s needs ns, ny, nc >= 1 (got %d, %d, %d)", m.Name, d.NS, d.NY, d.NC)
	}
	if d.NR != len(d.NP) || d.NR != len(m.Levels) {
		return errors.Errorf("Model %s has nr=%d but %d unit counts and %d levels", m.Name, d.NR, len(d.NP), len(m.Levels))
	}

	if m.Data.Y == nil {
		return errors.Errorf("Model %s has no response matrix", m.Name)
	}
	if r, c := m.Data.Y.Dims(); r != d.NY || c != d.NS {
		return errors.Errorf("Y is %dx%d, expected %dx%d", r, c, d.NY, d.NS)
	}

	if len(m.Data.XSpecies) > 0 {
		if len(m.Data.XSpecies) != d.NS {
			return errors.Errorf("Per-species X has %d entries, expected %d", len(m.Data.XSpecies), d.NS)
		}
		for j, x := range m.Data.XSpecies {
			if err := checkDims("XSpecies", x, d.NY, d.NC); err != nil {
				return errors.Wrapf(err, "Species %d", j)
			}
		}
	} else if err := checkDims("X", m.Data.X, d.NY, d.NC); err != nil {
		return err
	}

	if len(m.Data.Distr) != d.NS {
		return errors.Errorf("distr has %d entries, expected %d", len(m.Data.Distr), d.NS)
	}
	for j, f := range m.Data.Distr {
		if !f.Valid() {
			return unsupported("Species %d has family code %d", j, int(f))
		}
		if f == Probit || f == Poisson {
			if err := m.checkColumn(j, f); err != nil {
				return err
			}
		}
	}

	if len(m.Data.Pi) != d.NY {
		return errors.Errorf("Pi has %d rows, expected %d", len(m.Data.Pi), d.NY)
	}
	for i, row := range m.Data.Pi {
		if len(row) != d.NR {
			return errors.Errorf("Pi row %d has %d levels, expected %d", i, len(row), d.NR)
		}
		for r, u := range row {
			if u < 0 || u >= d.NP[r] {
				return errors.Errorf("Pi[%d][%d]=%d is outside [0, %d)", i, r, u, d.NP[r])
			}
		}
	}

	for r := range m.Levels {
		if err := m.checkLevel(r); err != nil {
			return errors.Wrapf(err, "Level %d (%s)", r, m.Levels[r].Name)
		}
	}

	return m.checkPrior()
}

func (m *Model) checkColumn(j int, f Family) error {
	for i := 0; i < m.Dims.NY; i++ {
		y := m.Data.Y.At(i, j)
		if math.IsNaN(y) {
			continue
		}
		switch f {
		case Probit:
			if y != 0 && y != 1 {
				return errors.Errorf("Probit species %d has Y[%d]=%v (want 0 or 1)", j, i, y)
			}
		case Poisson:
			if y < 0 || y != math.Floor(y) {
				return errors.Errorf("Poisson species %d has Y[%d]=%v (want a count)", j, i, y)
			}
		}
	}
	return nil
}

func (m *Model) checkLevel(r int) error {
	l := &m.Levels[r]
	if l.NP < 1 {
		return errors.Errorf("Level needs at least one unit")
	}
	if l.NP != m.Dims.NP[r] {
		return errors.Errorf("Level has %d units but dims say %d", l.NP, m.Dims.NP[r])
	}
	if l.NfMin < 0 || l.NfMax < l.NfMin || l.NfInit < 0 {
		return errors.Errorf("Invalid factor bounds init=%d min=%d max=%d", l.NfInit, l.NfMin, l.NfMax)
	}
	if l.Nu <= 0 || l.A1 <= 0 || l.B1 <= 0 || l.A2 <= 0 || l.B2 <= 0 {
		return errors.Errorf("Shrinkage hyperparameters must be positive")
	}

	switch l.Method {
	case SpatialNone:
		return nil
	case SpatialGPP:
		return unsupported("Spatial method %s is not implemented", l.Method)
	case SpatialFull, SpatialNNGP:
	default:
		return unsupported("Unknown spatial method %d", int(l.Method))
	}

	ng := len(l.AlphaGrid)
	if ng < 1 || len(l.AlphaPrior) != ng || len(l.LogDet) != ng {
		return errors.Errorf("Spatial level needs matching alpha grid, prior and log-det (got %d, %d, %d)", ng, len(l.AlphaPrior), len(l.LogDet))
	}
	if l.Method == SpatialFull {
		if len(l.FullTable) != ng {
			return errors.Errorf("Full table has %d entries, expected %d", len(l.FullTable), ng)
		}
		for g, w := range l.FullTable {
			if w == nil || w.SymmetricDim() != l.NP {
				return errors.Errorf("Full table entry %d is not %dx%d", g, l.NP, l.NP)
			}
		}
	} else {
		if len(l.NNGPTable) != ng {
			return errors.Errorf("NNGP table has %d entries, expected %d", len(l.NNGPTable), ng)
		}
		for g, w := range l.NNGPTable {
			if w == nil || w.Dim() != l.NP {
				return errors.Errorf("NNGP table entry %d is not %dx%d", g, l.NP, l.NP)
			}
		}
	}
	return nil
}

func (m *Model) checkPrior() error {
	p := m.Prior
	d := m.Dims
	nt := d.NT
	if nt < 1 {
		return errors.Errorf("Model needs at least one trait column (intercept)")
	}
	if err := checkDims("Tr", p.Tr, d.NS, nt); err != nil {
		return err
	}
	if err := checkDims("MGamma", p.MGamma, d.NC, nt); err != nil {
		return err
	}
	if p.UGamma == nil || p.UGamma.SymmetricDim() != d.NC*nt {
		return errors.Errorf("UGamma must be %dx%d", d.NC*nt, d.NC*nt)
	}
	if p.V0 == nil || p.V0.SymmetricDim() != d.NC {
		return errors.Errorf("V0 must be %dx%d", d.NC, d.NC)
	}
	if len(p.ASigma) != d.NS || len(p.BSigma) != d.NS {
		return errors.Errorf("Sigma prior needs %d shapes and rates", d.NS)
	}
	return nil
}

func checkDims(name string, x *mat.Dense, rows, cols int) error {
	if x == nil {
		return errors.Errorf("%s is missing", name)
	}
	if r, c := x.Dims(); r != rows || c != cols {
		return errors.Errorf("%s is %dx%d, expected %dx%d", name, r, c, rows, cols)
	}
	return nil
}

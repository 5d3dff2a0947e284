// Package store persists retained draws: a SQLite table of draws that can be
// read back one parameter at a time, and a JSON post-list export.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"

	"github.com/CraigKelly/jsdm/sampler"
)

// Parameter names used as keys in the draw table
const (
	ParamBeta   = "Beta"
	ParamGamma  = "Gamma"
	ParamV      = "V"
	ParamSigma  = "sigma"
	ParamRhoInd = "rhoInd"
	ParamLambda = "Lambda"
	ParamPsi    = "Psi"
	ParamDelta  = "Delta"
	ParamEta    = "Eta"
	ParamAlpha  = "Alpha"
	ParamZ      = "Z"
	ParamID     = "iD"
)

// GlobalLevel is the level recorded for parameters not tied to a level
const GlobalLevel = -1

const schema = `
CREATE TABLE IF NOT EXISTS draws (
	run_id    TEXT    NOT NULL,
	chain     INTEGER NOT NULL,
	sample    INTEGER NOT NULL,
	iteration INTEGER NOT NULL,
	param     TEXT    NOT NULL,
	level     INTEGER NOT NULL,
	rows      INTEGER NOT NULL,
	cols      INTEGER NOT NULL,
	vals      TEXT    NOT NULL,
	PRIMARY KEY (run_id, chain, param, level, sample)
);`

// NewRunID returns a fresh identifier for a sampling run
func NewRunID() string {
	return uuid.NewString()
}

// Draw is one stored value: a rows×cols matrix in row-major order. A level
// without factors stores an empty draw.
type Draw struct {
	Sample    int
	Iteration int
	Rows      int
	Cols      int
	Values    []float64
}

// Dense returns the draw as a matrix, nil when empty
func (d Draw) Dense() *mat.Dense {
	if d.Rows == 0 || d.Cols == 0 {
		return nil
	}
	return mat.NewDense(d.Rows, d.Cols, d.Values)
}

// SQLite is a draw store backed by a single SQLite file
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path. ":memory:" is allowed.
func Open(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("Store path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "Could not open draw store")
	}
	// one connection: an in-memory database lives per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "Could not reach draw store")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "Could not create draw table")
	}
	return &SQLite{db: db}, nil
}

// Close closes the database
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveChain writes every draw of one chain in a single transaction
func (s *SQLite) SaveChain(ctx context.Context, runID string, chain int, smp *sampler.Samples) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("Run id is required")
	}
	if smp == nil {
		return errors.New("No samples to save")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "Could not start transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO draws
		(run_id, chain, sample, iteration, param, level, rows, cols, vals)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "Could not prepare insert")
	}
	defer stmt.Close()

	put := func(k int, name string, level int, rows, cols int, vals []float64) error {
		enc, err := json.Marshal(vals)
		if err != nil {
			return errors.Wrapf(err, "Could not encode %s of sample %d", name, k)
		}
		_, err = stmt.ExecContext(ctx, runID, chain, k, smp.Iteration[k], name, level, rows, cols, string(enc))
		return errors.Wrapf(err, "Could not store %s of sample %d", name, k)
	}

	for k := 0; k < smp.Len(); k++ {
		for _, p := range globalParams(smp, k) {
			if err := put(k, p.name, GlobalLevel, p.rows, p.cols, p.vals); err != nil {
				return err
			}
		}
		for r := range smp.Lambda {
			for _, p := range levelParams(smp, r, k) {
				if err := put(k, p.name, r, p.rows, p.cols, p.vals); err != nil {
					return err
				}
			}
		}
	}

	return errors.Wrap(tx.Commit(), "Could not commit draws")
}

// LoadParam returns the draws of one parameter in sample order. Use
// GlobalLevel for parameters not tied to a level.
func (s *SQLite) LoadParam(ctx context.Context, runID string, chain int, name string, level int) ([]Draw, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sample, iteration, rows, cols, vals FROM draws
		WHERE run_id = ? AND chain = ? AND param = ? AND level = ?
		ORDER BY sample`, runID, chain, name, level)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not query %s", name)
	}
	defer rows.Close()

	var out []Draw
	for rows.Next() {
		var d Draw
		var enc string
		if err := rows.Scan(&d.Sample, &d.Iteration, &d.Rows, &d.Cols, &enc); err != nil {
			return nil, errors.Wrapf(err, "Could not read %s", name)
		}
		if err := json.Unmarshal([]byte(enc), &d.Values); err != nil {
			return nil, errors.Wrapf(err, "Could not decode %s of sample %d", name, d.Sample)
		}
		if len(d.Values) != d.Rows*d.Cols {
			return nil, errors.Errorf("Draw %s of sample %d holds %d values for %dx%d", name, d.Sample, len(d.Values), d.Rows, d.Cols)
		}
		out = append(out, d)
	}
	return out, errors.Wrapf(rows.Err(), "Could not read %s", name)
}

// Runs lists the stored run ids
func (s *SQLite) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT run_id FROM draws ORDER BY run_id`)
	if err != nil {
		return nil, errors.Wrap(err, "Could not list runs")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "Could not read run id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type param struct {
	name       string
	rows, cols int
	vals       []float64
}

func matrixParam(name string, m mat.Matrix) param {
	p := param{name: name, vals: []float64{}}
	switch t := m.(type) {
	case nil:
		return p
	case *mat.Dense:
		if t == nil {
			return p
		}
	case *mat.SymDense:
		if t == nil {
			return p
		}
	}
	p.rows, p.cols = m.Dims()
	p.vals = make([]float64, 0, p.rows*p.cols)
	for i := 0; i < p.rows; i++ {
		for j := 0; j < p.cols; j++ {
			p.vals = append(p.vals, m.At(i, j))
		}
	}
	return p
}

func vectorParam(name string, v []float64) param {
	if len(v) == 0 {
		return param{name: name, vals: []float64{}}
	}
	return param{name: name, rows: 1, cols: len(v), vals: v}
}

func intsParam(name string, v []int) param {
	f := make([]float64, len(v))
	for i, x := range v {
		f[i] = float64(x)
	}
	return vectorParam(name, f)
}

func globalParams(s *sampler.Samples, k int) []param {
	ps := []param{
		matrixParam(ParamBeta, s.Beta[k]),
		matrixParam(ParamGamma, s.Gamma[k]),
		matrixParam(ParamV, s.V[k]),
		vectorParam(ParamSigma, s.Sigma[k]),
		intsParam(ParamRhoInd, []int{s.RhoInd[k]}),
	}
	if len(s.Z) > k {
		ps = append(ps, matrixParam(ParamZ, s.Z[k]), matrixParam(ParamID, s.ID[k]))
	}
	return ps
}

func levelParams(s *sampler.Samples, r, k int) []param {
	return []param{
		matrixParam(ParamLambda, s.Lambda[r][k]),
		matrixParam(ParamPsi, s.Psi[r][k]),
		vectorParam(ParamDelta, s.Delta[r][k]),
		matrixParam(ParamEta, s.Eta[r][k]),
		intsParam(ParamAlpha, s.Alpha[r][k]),
	}
}

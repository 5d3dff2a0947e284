package store

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/sampler"
)

// postSample is one retained draw as read by downstream tooling. rhoInd is
// 1-based there; the reduced-rank fields are always null.
type postSample struct {
	Beta   [][]float64   `json:"Beta"`
	Gamma  [][]float64   `json:"Gamma"`
	V      [][]float64   `json:"V"`
	RhoInd int           `json:"rhoInd"`
	Sigma  []float64     `json:"sigma"`
	Lambda [][][]float64 `json:"Lambda"`
	Psi    [][][]float64 `json:"Psi"`
	Delta  [][]float64   `json:"Delta"`
	Eta    [][][]float64 `json:"Eta"`
	Alpha  [][]int       `json:"Alpha"`

	WRRR     *struct{} `json:"wRRR"`
	Rho      *struct{} `json:"rho"`
	PsiRRR   *struct{} `json:"PsiRRR"`
	DeltaRRR *struct{} `json:"DeltaRRR"`
}

// WriteJSON writes the draws of every chain as a post-list: an object keyed
// by chain index, each holding an object keyed by sample index.
func WriteJSON(w io.Writer, chains []*sampler.Samples) error {
	out := make(map[int]map[int]postSample, len(chains))
	for c, s := range chains {
		if s == nil {
			return errors.Errorf("Chain %d has no samples", c)
		}
		list := make(map[int]postSample, s.Len())
		for k := 0; k < s.Len(); k++ {
			list[k] = newPostSample(s, k)
		}
		out[c] = list
	}
	return errors.Wrap(json.NewEncoder(w).Encode(out), "Could not write post-list")
}

func newPostSample(s *sampler.Samples, k int) postSample {
	p := postSample{
		Beta:   rowsOf(s.Beta[k]),
		Gamma:  rowsOf(s.Gamma[k]),
		V:      rowsOf(s.V[k]),
		RhoInd: s.RhoInd[k] + 1,
		Sigma:  s.Sigma[k],
	}
	for r := range s.Lambda {
		p.Lambda = append(p.Lambda, rowsOf(s.Lambda[r][k]))
		p.Psi = append(p.Psi, rowsOf(s.Psi[r][k]))
		p.Delta = append(p.Delta, nonNil(s.Delta[r][k]))
		p.Eta = append(p.Eta, rowsOf(s.Eta[r][k]))
		p.Alpha = append(p.Alpha, nonNil(s.Alpha[r][k]))
	}
	return p
}

// rowsOf lists the rows of m; an absent matrix is an empty list
func rowsOf(m mat.Matrix) [][]float64 {
	p := matrixParam("", m)
	rows := make([][]float64, p.rows)
	for i := range rows {
		rows[i] = p.vals[i*p.cols : (i+1)*p.cols]
	}
	return rows
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

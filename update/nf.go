package update

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
)

// AdaptNf adapts the factor count during burn-in. With probability
// exp(-(B0 + B1*iter)) each level looks at the share of near-zero loadings
// per factor: factors at or above PropThreshold are dropped (never below
// NfMin), and when none are redundant after MinIter a new factor is added
// (never above NfMax).
type AdaptNf struct {
	B0, B1        float64
	Epsilon       float64
	PropThreshold float64
	MinIter       int
}

// NewAdaptNf returns the usual adaptation constants
func NewAdaptNf() AdaptNf {
	return AdaptNf{
		B0:            1,
		B1:            0.0005,
		Epsilon:       1e-3,
		PropThreshold: 0.6,
		MinIter:       20,
	}
}

// UpdateNf implements NfUpdater
func (a AdaptNf) UpdateNf(st *model.State, m *model.Model, iter int, gen *rand.Generator) (*NfResult, error) {
	d := m.Dims
	res := &NfResult{
		Lambda: append([]*mat.Dense(nil), st.Lambda...),
		Psi:    append([]*mat.Dense(nil), st.Psi...),
		Delta:  append([][]float64(nil), st.Delta...),
		Eta:    append([]*mat.Dense(nil), st.Eta...),
		Alpha:  append([][]int(nil), st.Alpha...),
	}

	prob := math.Exp(-(a.B0 + a.B1*float64(iter)))
	for r := 0; r < d.NR; r++ {
		if gen.Float64() >= prob {
			continue
		}
		lvl := &m.Levels[r]
		nf := st.NF(r)

		redundant := make([]bool, nf)
		numRedundant := 0
		allBelow := true
		for h := 0; h < nf; h++ {
			small := 0
			for j := 0; j < d.NS; j++ {
				if math.Abs(st.Lambda[r].At(h, j)) < a.Epsilon {
					small++
				}
			}
			prop := float64(small) / float64(d.NS)
			if prop >= a.PropThreshold {
				redundant[h] = true
				numRedundant++
			}
			if prop >= 0.995 {
				allBelow = false
			}
		}

		switch {
		case iter > a.MinIter && numRedundant == 0 && allBelow && nf < lvl.NfMax:
			a.grow(res, st, lvl, r, gen)
			res.Changed = append(res.Changed, r)
		case numRedundant > 0 && nf > lvl.NfMin:
			keep := make([]int, 0, nf)
			for h := 0; h < nf; h++ {
				if !redundant[h] {
					keep = append(keep, h)
				}
			}
			for h := 0; h < nf && len(keep) < lvl.NfMin; h++ {
				if redundant[h] {
					keep = append(keep, h)
				}
			}
			sort.Ints(keep)
			shrink(res, st, r, keep)
			res.Changed = append(res.Changed, r)
		}
	}
	return res, nil
}

// grow appends one factor with zero loadings and prior-drawn shrinkage
func (a AdaptNf) grow(res *NfResult, st *model.State, lvl *model.Level, r int, gen *rand.Generator) {
	nf := st.NF(r)
	_, ns := st.Beta.Dims()

	lam := mat.NewDense(nf+1, ns, nil)
	psi := mat.NewDense(nf+1, ns, nil)
	eta := mat.NewDense(lvl.NP, nf+1, nil)
	if nf > 0 {
		lam.Slice(0, nf, 0, ns).(*mat.Dense).Copy(st.Lambda[r])
		psi.Slice(0, nf, 0, ns).(*mat.Dense).Copy(st.Psi[r])
		eta.Slice(0, lvl.NP, 0, nf).(*mat.Dense).Copy(st.Eta[r])
	}
	for j := 0; j < ns; j++ {
		psi.Set(nf, j, gen.Gamma(lvl.Nu/2, lvl.Nu/2))
	}
	for u := 0; u < lvl.NP; u++ {
		eta.Set(u, nf, gen.NormFloat64())
	}

	res.Lambda[r] = lam
	res.Psi[r] = psi
	res.Eta[r] = eta
	res.Delta[r] = append(append([]float64{}, st.Delta[r]...), gen.Gamma(lvl.A2, lvl.B2))
	res.Alpha[r] = append(append([]int{}, st.Alpha[r]...), 0)
}

// shrink keeps only the listed factors of level r
func shrink(res *NfResult, st *model.State, r int, keep []int) {
	if len(keep) == 0 {
		res.Lambda[r], res.Psi[r], res.Eta[r] = nil, nil, nil
		res.Delta[r], res.Alpha[r] = []float64{}, []int{}
		return
	}

	_, ns := st.Lambda[r].Dims()
	np, _ := st.Eta[r].Dims()
	lam := mat.NewDense(len(keep), ns, nil)
	psi := mat.NewDense(len(keep), ns, nil)
	eta := mat.NewDense(np, len(keep), nil)
	delta := make([]float64, len(keep))
	alpha := make([]int, len(keep))
	col := make([]float64, np)
	for k, h := range keep {
		lam.SetRow(k, st.Lambda[r].RawRowView(h))
		psi.SetRow(k, st.Psi[r].RawRowView(h))
		eta.SetCol(k, mat.Col(col, h, st.Eta[r]))
		delta[k] = st.Delta[r][h]
		alpha[k] = st.Alpha[r][h]
	}
	res.Lambda[r], res.Psi[r], res.Eta[r] = lam, psi, eta
	res.Delta[r], res.Alpha[r] = delta, alpha
}

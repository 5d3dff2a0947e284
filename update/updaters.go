package update

import (
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
)

// BetaLambdaUpdater draws the fixed effects and the loadings of every level
type BetaLambdaUpdater interface {
	UpdateBetaLambda(st *model.State, m *model.Model, gen *rand.Generator) (beta *mat.Dense, lambda []*mat.Dense, err error)
}

// RRRUpdater draws the reduced-rank regression weights
type RRRUpdater interface {
	UpdateWRRR(st *model.State, m *model.Model, gen *rand.Generator) (*mat.Dense, error)
}

// RRRPriorUpdater draws the shrinkage of the reduced-rank weights
type RRRPriorUpdater interface {
	UpdateRRRPriors(st *model.State, m *model.Model, gen *rand.Generator) (psi *mat.Dense, delta []float64, err error)
}

// SelectionUpdater draws the covariate selection indicators
type SelectionUpdater interface {
	UpdateBetaSel(st *model.State, m *model.Model, gen *rand.Generator) ([]bool, error)
}

// GammaVUpdater draws the trait regression Gamma and the covariance V
type GammaVUpdater interface {
	UpdateGammaV(st *model.State, m *model.Model, gen *rand.Generator) (gamma *mat.Dense, v, iv *mat.SymDense, err error)
}

// RhoUpdater draws the phylogenetic correlation index
type RhoUpdater interface {
	UpdateRho(st *model.State, m *model.Model, gen *rand.Generator) (int, error)
}

// LambdaPriorUpdater draws the loading shrinkage Psi and Delta of each level
type LambdaPriorUpdater interface {
	UpdateLambdaPriors(st *model.State, m *model.Model, gen *rand.Generator) (psi []*mat.Dense, delta [][]float64, err error)
}

// AlphaUpdater draws the spatial range index of every factor
type AlphaUpdater interface {
	UpdateAlpha(st *model.State, m *model.Model, gen *rand.Generator) ([][]int, error)
}

// SigmaUpdater draws the residual standard deviations
type SigmaUpdater interface {
	UpdateSigma(st *model.State, m *model.Model, gen *rand.Generator) ([]float64, error)
}

// NfResult is a consistent set of per-level factor parameters
type NfResult struct {
	Lambda []*mat.Dense
	Psi    []*mat.Dense
	Delta  [][]float64
	Eta    []*mat.Dense
	Alpha  [][]int

	// Changed lists the levels whose factor count moved
	Changed []int
}

// NfUpdater adapts the number of factors during burn-in
type NfUpdater interface {
	UpdateNf(st *model.State, m *model.Model, iter int, gen *rand.Generator) (*NfResult, error)
}

// Updaters are the collaborators of the sweep. Optional members are nil
// when the model term is not present.
type Updaters struct {
	BetaLambda   BetaLambdaUpdater
	RRR          RRRUpdater       // optional
	RRRPriors    RRRPriorUpdater  // optional, run after RRR
	Selection    SelectionUpdater // optional
	GammaV       GammaVUpdater
	Rho          RhoUpdater // optional
	LambdaPriors LambdaPriorUpdater
	Alpha        AlphaUpdater
	Sigma        SigmaUpdater
	Nf           NfUpdater
}

// DefaultUpdaters returns the conjugate updates. Residual scales of Poisson
// species are held fixed when Z is marginalized.
func DefaultUpdaters(opts ZOptions) Updaters {
	return Updaters{
		BetaLambda:   ConjugateBetaLambda{},
		GammaV:       ConjugateGammaV{},
		LambdaPriors: MGPLambdaPriors{},
		Alpha:        GridAlpha{},
		Sigma:        GammaSigma{SkipPoisson: opts.PoissonMarginalizeZ},
		Nf:           NewAdaptNf(),
	}
}

package sampler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
	"github.com/CraigKelly/jsdm/update"
)

// Chain is one Gibbs chain over a model: a state, a random stream and the
// updates applied to it in a fixed order.
type Chain struct {
	ID       int
	Seed     int64
	Model    *model.Model
	State    *model.State
	Config   Config
	Updaters update.Updaters
	Reporter Reporter
	Log      *zap.Logger

	gen  *rand.Generator
	iter int
	ran  bool
}

// An Option changes a chain before it is checked
type Option func(*Chain)

// WithUpdaters replaces the default conjugate updates
func WithUpdaters(u update.Updaters) Option {
	return func(c *Chain) { c.Updaters = u }
}

// WithReporter sets the progress reporter
func WithReporter(r Reporter) Option {
	return func(c *Chain) { c.Reporter = r }
}

// WithLogger sets the logger; the default discards everything
func WithLogger(l *zap.Logger) Option {
	return func(c *Chain) { c.Log = l }
}

// WithChainID numbers the chain. Chains of one run share the seed and get
// independent streams from their IDs.
func WithChainID(id int) Option {
	return func(c *Chain) { c.ID = id }
}

// NewChain returns a chain ready to run. A nil st starts from a state drawn
// with the chain's own generator. The chain works on a copy of st.
func NewChain(m *model.Model, st *model.State, cfg Config, opts ...Option) (*Chain, error) {
	if m == nil {
		return nil, errors.New("No model supplied")
	}
	if err := cfg.Check(); err != nil {
		return nil, errors.Wrap(err, "Invalid chain configuration")
	}
	if err := m.Check(); err != nil {
		return nil, errors.Wrap(err, "Invalid model")
	}

	ch := &Chain{
		Model:    m,
		Config:   cfg,
		Updaters: update.DefaultUpdaters(cfg.ZOptions()),
		Log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ch)
	}
	if err := ch.checkUpdaters(); err != nil {
		return nil, err
	}

	if cfg.Seed != nil {
		ch.Seed = *cfg.Seed
	} else {
		seed, err := rand.NewSeed()
		if err != nil {
			return nil, err
		}
		ch.Seed = seed
	}
	gen, err := rand.NewChainGenerator(ch.Seed, ch.ID)
	if err != nil {
		return nil, errors.Wrap(err, "Could not create chain generator")
	}
	ch.gen = gen

	if st == nil {
		st, err = model.NewInitialState(m, gen)
		if err != nil {
			return nil, errors.Wrap(err, "Could not create initial state")
		}
	} else {
		st = st.Clone()
	}
	if err := st.CheckShapes(m.Dims); err != nil {
		return nil, errors.Wrap(err, "Initial state does not match the model")
	}
	ch.State = st

	return ch, nil
}

func (c *Chain) checkUpdaters() error {
	u := c.Updaters
	switch {
	case u.BetaLambda == nil:
		return errors.Wrap(model.ErrUnsupportedConfiguration, "Missing Beta/Lambda update")
	case u.GammaV == nil:
		return errors.Wrap(model.ErrUnsupportedConfiguration, "Missing Gamma/V update")
	case u.LambdaPriors == nil:
		return errors.Wrap(model.ErrUnsupportedConfiguration, "Missing Psi/Delta update")
	case u.Alpha == nil:
		return errors.Wrap(model.ErrUnsupportedConfiguration, "Missing Alpha update")
	case u.Sigma == nil:
		return errors.Wrap(model.ErrUnsupportedConfiguration, "Missing sigma update")
	case u.RRRPriors != nil && u.RRR == nil:
		return errors.Wrap(model.ErrUnsupportedConfiguration, "Reduced-rank priors without reduced-rank weights")
	}

	// A marginalised Z folds sigma into iD; sigma must then stay put
	if gs, ok := u.Sigma.(update.GammaSigma); ok && c.Config.PoissonMarginalizeZ && !gs.SkipPoisson {
		for _, f := range c.Model.Data.Distr {
			if f == model.Poisson {
				return errors.Wrap(model.ErrUnsupportedConfiguration, "Marginalised Poisson Z with a sigma update of Poisson species")
			}
		}
	}
	return nil
}

// Iteration is the number of completed iterations
func (c *Chain) Iteration() int {
	return c.iter
}

// Run performs every iteration of the chain and returns the retained draws.
// The context is checked between iterations. On cancellation or failure the
// draws retained so far are returned with the error; the failing iteration
// leaves the chain state as it was before it.
func (c *Chain) Run(ctx context.Context) (*Samples, error) {
	if c.ran {
		return nil, errors.Errorf("Chain %d has already run", c.ID)
	}
	c.ran = true

	cfg := c.Config
	total := cfg.Total()
	acc := NewAccumulator(c.Model.Dims.NR, cfg.NumSamples, cfg.SaveLatent)
	log := c.Log.With(zap.Int("chain", c.ID))
	log.Info("Chain starting",
		zap.String("model", c.Model.Name),
		zap.Int64("seed", c.Seed),
		zap.Int("burn_in", cfg.BurnIn),
		zap.Int("samples", cfg.NumSamples),
		zap.Int("thinning", cfg.Thinning),
	)
	start := time.Now()

	for n := 0; n < total; n++ {
		if err := ctx.Err(); err != nil {
			log.Warn("Chain stopped", zap.Int("iteration", n), zap.Int("retained", acc.Len()))
			return acc.Finalize(), errors.Wrapf(err, "Chain %d stopped at iteration %d", c.ID, n)
		}

		next, err := c.sweep(n, log)
		if err != nil {
			log.Error("Chain failed", zap.Int("iteration", n), zap.Int("retained", acc.Len()), zap.Error(err))
			return acc.Finalize(), errors.Wrapf(err, "Chain %d failed at iteration %d", c.ID, n)
		}
		c.State = next
		c.iter = n + 1

		slot := cfg.Slot(n)
		if c.Reporter != nil && (n+1)%cfg.VerboseEvery == 0 {
			c.Reporter.Progress(n, total, slot)
		}
		if slot != Transient {
			if err := acc.Append(slot, n, next); err != nil {
				return acc.Finalize(), errors.Wrapf(err, "Chain %d could not save iteration %d", c.ID, n)
			}
		}
	}

	log.Info("Chain finished",
		zap.Int("retained", acc.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return acc.Finalize(), nil
}

// sweep runs one Gibbs iteration. Updates never modify the state they read,
// so working on a shallow copy leaves c.State intact when a step fails.
func (c *Chain) sweep(n int, log *zap.Logger) (*model.State, error) {
	m, u, gen := c.Model, c.Updaters, c.gen
	next := *c.State
	st := &next

	z, err := update.UpdateZ(st, m, c.Config.ZOptions(), gen)
	if err != nil {
		return nil, errors.Wrap(err, "Could not update Z")
	}
	st.Z, st.ID = z.Z, z.ID
	if z.Omega != nil {
		st.PoissonOmega = z.Omega
	}

	if st.Beta, st.Lambda, err = u.BetaLambda.UpdateBetaLambda(st, m, gen); err != nil {
		return nil, errors.Wrap(err, "Could not update Beta and Lambda")
	}

	if u.RRR != nil {
		if st.WRRR, err = u.RRR.UpdateWRRR(st, m, gen); err != nil {
			return nil, errors.Wrap(err, "Could not update reduced-rank weights")
		}
		if u.RRRPriors != nil {
			if st.PsiRRR, st.DeltaRRR, err = u.RRRPriors.UpdateRRRPriors(st, m, gen); err != nil {
				return nil, errors.Wrap(err, "Could not update reduced-rank priors")
			}
		}
	}

	if u.Selection != nil {
		if st.BetaSel, err = u.Selection.UpdateBetaSel(st, m, gen); err != nil {
			return nil, errors.Wrap(err, "Could not update covariate selection")
		}
	}

	if st.Gamma, st.V, st.IV, err = u.GammaV.UpdateGammaV(st, m, gen); err != nil {
		return nil, errors.Wrap(err, "Could not update Gamma and V")
	}

	if u.Rho != nil {
		if st.RhoInd, err = u.Rho.UpdateRho(st, m, gen); err != nil {
			return nil, errors.Wrap(err, "Could not update rho")
		}
	}

	if st.Psi, st.Delta, err = u.LambdaPriors.UpdateLambdaPriors(st, m, gen); err != nil {
		return nil, errors.Wrap(err, "Could not update Psi and Delta")
	}

	if st.Eta, err = update.UpdateEta(st, m, gen); err != nil {
		return nil, errors.Wrap(err, "Could not update Eta")
	}

	if st.Alpha, err = u.Alpha.UpdateAlpha(st, m, gen); err != nil {
		return nil, errors.Wrap(err, "Could not update Alpha")
	}

	if st.Sigma, err = u.Sigma.UpdateSigma(st, m, gen); err != nil {
		return nil, errors.Wrap(err, "Could not update sigma")
	}

	if u.Nf != nil && n < c.Config.BurnIn {
		res, err := u.Nf.UpdateNf(st, m, n, gen)
		if err != nil {
			return nil, errors.Wrap(err, "Could not adapt the number of factors")
		}
		st.Lambda, st.Psi, st.Delta, st.Eta, st.Alpha = res.Lambda, res.Psi, res.Delta, res.Eta, res.Alpha
		for _, r := range res.Changed {
			log.Debug("Factor count adapted",
				zap.Int("iteration", n),
				zap.String("level", m.Levels[r].Name),
				zap.Int("from", c.State.NF(r)),
				zap.Int("to", st.NF(r)),
			)
		}
	}

	if err := st.CheckShapes(m.Dims); err != nil {
		if !errors.Is(err, model.ErrShapeInconsistency) {
			err = errors.Wrap(model.ErrShapeInconsistency, err.Error())
		}
		return nil, errors.Wrap(err, "Inconsistent state after the sweep")
	}

	return st, nil
}

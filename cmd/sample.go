package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
	"github.com/CraigKelly/jsdm/sampler"
	"github.com/CraigKelly/jsdm/store"
)

var sampleFlags struct {
	chains     int
	samples    int
	burnIn     int
	thinning   int
	every      int
	truncnorm  string
	preupdate  bool
	marginal   bool
	saveLatent bool
	db         string
	json       string
	monitor    string
	quiet      bool
}

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Run Gibbs chains on a model and store the draws",
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := newStartup(cmd)
		if err != nil {
			return err
		}
		defer sp.log.Sync() //nolint:errcheck
		if err := applySampleFlags(cmd, &sp.cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return Sample(ctx, sp)
	},
}

func init() {
	f := sampleCmd.Flags()
	f.IntVar(&sampleFlags.chains, "chains", 1, "Number of independent chains")
	f.IntVarP(&sampleFlags.samples, "samples", "n", 1000, "Draws to keep per chain")
	f.IntVarP(&sampleFlags.burnIn, "burn-in", "b", 1000, "Iterations discarded before the first kept draw")
	f.IntVarP(&sampleFlags.thinning, "thinning", "t", 1, "Iterations between kept draws")
	f.IntVar(&sampleFlags.every, "every", 100, "Report progress every this many iterations")
	f.StringVar(&sampleFlags.truncnorm, "truncnorm", "inverse", "Truncated normal method: inverse, rejection or erfc")
	f.BoolVar(&sampleFlags.preupdate, "poisson-preupdate", true, "Redraw Poisson Z before the auxiliary weights")
	f.BoolVar(&sampleFlags.marginal, "poisson-marginalize", false, "Marginalize the residual out of Poisson Z")
	f.BoolVar(&sampleFlags.saveLatent, "save-latent", false, "Also keep Z and iD for each draw")
	f.StringVar(&sampleFlags.db, "db", "", "SQLite file receiving the draws")
	f.StringVar(&sampleFlags.json, "json", "", "JSON post-list output file")
	f.StringVar(&sampleFlags.monitor, "monitor", "", "Serve prometheus metrics on this address (e.g. :8000)")
	f.BoolVarP(&sampleFlags.quiet, "quiet", "q", false, "No progress line on stderr")
}

// applySampleFlags lets flags given on the command line win over the run file
func applySampleFlags(cmd *cobra.Command, cfg *runConfig) error {
	f := cmd.Flags()
	if f.Changed("chains") {
		cfg.Chains = sampleFlags.chains
	}
	if f.Changed("samples") {
		cfg.NumSamples = sampleFlags.samples
	}
	if f.Changed("burn-in") {
		cfg.BurnIn = sampleFlags.burnIn
	}
	if f.Changed("thinning") {
		cfg.Thinning = sampleFlags.thinning
	}
	if f.Changed("every") {
		cfg.VerboseEvery = sampleFlags.every
	}
	if f.Changed("truncnorm") {
		b, err := rand.ParseTruncBackend(sampleFlags.truncnorm)
		if err != nil {
			return err
		}
		cfg.TruncatedNormal = b
	}
	if f.Changed("poisson-preupdate") {
		cfg.PoissonPreupdateZ = sampleFlags.preupdate
	}
	if f.Changed("poisson-marginalize") {
		cfg.PoissonMarginalizeZ = sampleFlags.marginal
	}
	if f.Changed("save-latent") {
		cfg.SaveLatent = sampleFlags.saveLatent
	}
	if f.Changed("db") {
		cfg.DB = sampleFlags.db
	}
	if f.Changed("json") {
		cfg.JSON = sampleFlags.json
	}
	if f.Changed("monitor") {
		cfg.Monitor = sampleFlags.monitor
	}
	if cfg.Chains < 1 {
		return errors.Errorf("Chain count must be positive, got %d", cfg.Chains)
	}
	return cfg.Check()
}

// Sample reads the model, runs the chains and writes the draws
func Sample(ctx context.Context, sp *startupParams) error {
	cfg := sp.cfg

	sp.log.Info("Reading model", zap.String("file", sp.modelFile))
	mod, err := model.NewModelFromFile(model.YAMLReader{}, sp.modelFile)
	if err != nil {
		return err
	}
	sp.log.Info("Model read",
		zap.String("name", mod.Name),
		zap.Int("species", mod.Dims.NS),
		zap.Int("observations", mod.Dims.NY),
		zap.Int("levels", mod.Dims.NR),
	)

	// chains of a run share one seed and differ by index
	if cfg.Seed == nil {
		seed, err := rand.NewSeed()
		if err != nil {
			return err
		}
		cfg.Seed = &seed
	}
	runID := store.NewRunID()
	log := sp.log.With(zap.String("run", runID))
	log.Info("Run starting", zap.Int64("seed", *cfg.Seed), zap.Int("chains", cfg.Chains))

	var mon *monitor
	if cfg.Monitor != "" {
		mon = newMonitor()
		if err := mon.Start(cfg.Monitor); err != nil {
			return err
		}
		defer mon.Stop()
	}

	chains := make([]sampler.Sampler, cfg.Chains)
	for c := range chains {
		reporters := sampler.MultiReporter{sampler.LogReporter{Log: log, Chain: c}}
		if mon != nil {
			reporters = append(reporters, mon.Reporter(c))
		}
		if !sampleFlags.quiet && c == 0 {
			reporters = append(reporters, sampler.NewTextReporter(os.Stderr, cfg.VerboseEvery, 10))
		}
		ch, err := sampler.NewChain(mod, nil, cfg.Config,
			sampler.WithChainID(c),
			sampler.WithLogger(log),
			sampler.WithReporter(reporters),
		)
		if err != nil {
			return errors.Wrapf(err, "Could not create chain %d", c)
		}
		chains[c] = ch
	}

	samples, runErr := sampler.RunChains(ctx, chains)
	if runErr != nil {
		if mon != nil {
			mon.Failures.Inc()
		}
		log.Error("Run stopped early", zap.Error(runErr))
	}

	// whatever was retained is still written out
	if err := writeDraws(ctx, log, cfg, runID, samples); err != nil {
		return err
	}
	return runErr
}

func writeDraws(ctx context.Context, log *zap.Logger, cfg runConfig, runID string, samples []*sampler.Samples) error {
	if cfg.DB != "" {
		db, err := store.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		for c, s := range samples {
			if s == nil {
				continue
			}
			// saving must not be cut short by the interrupt that stopped sampling
			if err := db.SaveChain(context.WithoutCancel(ctx), runID, c, s); err != nil {
				return errors.Wrapf(err, "Could not save chain %d", c)
			}
		}
		log.Info("Draws stored", zap.String("db", cfg.DB))
	}

	if cfg.JSON != "" {
		f, err := os.Create(cfg.JSON)
		if err != nil {
			return errors.Wrapf(err, "Could not create %s", cfg.JSON)
		}
		var kept []*sampler.Samples
		for _, s := range samples {
			if s != nil {
				kept = append(kept, s)
			}
		}
		if err := store.WriteJSON(f, kept); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return errors.Wrapf(err, "Could not close %s", cfg.JSON)
		}
		log.Info("Post-list written", zap.String("json", cfg.JSON))
	}
	return nil
}

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfgFile string
var verbose bool
var modelFile string
var randomSeed int64

// startupParams is what every command needs once flags are parsed
type startupParams struct {
	cfg       runConfig
	modelFile string
	log       *zap.Logger
	out       io.Writer
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jsdm",
	Short: "Gibbs sampling for hierarchical joint species distribution models",
	Long: `jsdm fits hierarchical joint species distribution models by Gibbs sampling.
Among other features:

  - Normal, probit and Poisson species in one community
  - Latent factors per random level, optionally spatial (full GP or NNGP)
  - Adaptive number of factors during burn-in
  - Draws stored in SQLite and exported as a JSON post-list
`,
	SilenceUsage: true,
}

// newStartup builds the logger and run configuration shared by commands
func newStartup(cmd *cobra.Command) (*startupParams, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	log, err := config.Build()
	if err != nil {
		return nil, errors.Wrap(err, "Could not initialize logger")
	}

	cfg, err := loadRunConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("seed") {
		seed := randomSeed
		cfg.Seed = &seed
	}

	return &startupParams{
		cfg:       cfg,
		modelFile: modelFile,
		log:       log,
		out:       cmd.OutOrStdout(),
	}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML run configuration (flags override it)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging (default is much more parsimonious)")
	rootCmd.PersistentFlags().StringVarP(&modelFile, "model", "m", "", "YAML model file to read")
	rootCmd.PersistentFlags().Int64VarP(&randomSeed, "seed", "r", 1, "Random seed to use (default is a fresh seed)")

	rootCmd.MarkPersistentFlagRequired("model")

	rootCmd.AddCommand(sampleCmd, checkCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

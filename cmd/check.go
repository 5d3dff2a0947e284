package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/CraigKelly/jsdm/model"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Read and validate a model file, then describe it",
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := newStartup(cmd)
		if err != nil {
			return err
		}
		defer sp.log.Sync() //nolint:errcheck
		return CheckModel(sp)
	},
}

// CheckModel reads the model and writes a short description of it
func CheckModel(sp *startupParams) error {
	fmt.Fprintf(sp.out, "Reading model from %s\n", sp.modelFile)
	mod, err := model.NewModelFromFile(model.YAMLReader{}, sp.modelFile)
	if err != nil {
		return err
	}
	describeModel(sp.out, mod)
	return nil
}

func describeModel(out io.Writer, mod *model.Model) {
	d := mod.Dims
	fmt.Fprintf(out, "Model %s has %d species, %d observations, %d covariates, %d traits\n",
		mod.Name, d.NS, d.NY, d.NC, d.NT)

	counts := make(map[model.Family]int)
	for _, f := range mod.Data.Distr {
		counts[f]++
	}
	for _, f := range []model.Family{model.Normal, model.Probit, model.Poisson} {
		if counts[f] > 0 {
			fmt.Fprintf(out, "    %-8s %d species\n", f, counts[f])
		}
	}

	for r := range mod.Levels {
		l := &mod.Levels[r]
		fmt.Fprintf(out, "Level %d %s: %d units, factors init=%d min=%d", r, l.Name, l.NP, l.NfInit, l.NfMin)
		if l.NfMax < maxFactorsShown {
			fmt.Fprintf(out, " max=%d", l.NfMax)
		}
		if l.Spatial() {
			fmt.Fprintf(out, ", %s spatial with %d range values", l.Method, len(l.AlphaGrid))
		}
		fmt.Fprintln(out)
	}
}

// bounds at or above this are shown as unbounded
const maxFactorsShown = 1 << 20

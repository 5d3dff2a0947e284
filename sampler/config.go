package sampler

import (
	"github.com/pkg/errors"

	"github.com/CraigKelly/jsdm/model"
	"github.com/CraigKelly/jsdm/rand"
	"github.com/CraigKelly/jsdm/update"
)

// Config holds the run settings of a single chain
type Config struct {
	NumSamples   int `yaml:"samples"`
	BurnIn       int `yaml:"burn_in"`
	Thinning     int `yaml:"thinning"`
	VerboseEvery int `yaml:"verbose"`

	// Seed fixes the random stream; nil draws one from the OS
	Seed *int64 `yaml:"seed"`

	TruncatedNormal     rand.TruncBackend `yaml:"truncated_normal"`
	PoissonPreupdateZ   bool              `yaml:"poisson_preupdate_z"`
	PoissonMarginalizeZ bool              `yaml:"poisson_marginalize_z"`

	// SaveLatent also keeps Z and iD for every retained draw
	SaveLatent bool `yaml:"save_latent"`
}

// DefaultConfig returns a short run: 1000 draws after 1000 burn-in iterations
func DefaultConfig() Config {
	return Config{
		NumSamples:   1000,
		BurnIn:       1000,
		Thinning:     1,
		VerboseEvery: 100,

		PoissonPreupdateZ: true,
	}
}

// Check returns an UnsupportedConfiguration error for invalid settings
func (c Config) Check() error {
	switch {
	case c.NumSamples < 1:
		return errors.Wrapf(model.ErrUnsupportedConfiguration, "Sample count must be positive, got %d", c.NumSamples)
	case c.BurnIn < 0:
		return errors.Wrapf(model.ErrUnsupportedConfiguration, "Burn-in must not be negative, got %d", c.BurnIn)
	case c.Thinning < 1:
		return errors.Wrapf(model.ErrUnsupportedConfiguration, "Thinning must be positive, got %d", c.Thinning)
	case c.VerboseEvery < 1:
		return errors.Wrapf(model.ErrUnsupportedConfiguration, "Report interval must be positive, got %d", c.VerboseEvery)
	}
	if _, err := rand.ParseTruncBackend(c.TruncatedNormal.String()); err != nil {
		return errors.Wrap(model.ErrUnsupportedConfiguration, err.Error())
	}
	return nil
}

// Total is the number of iterations the chain runs
func (c Config) Total() int {
	return c.BurnIn + c.NumSamples*c.Thinning
}

// Slot returns the save slot of iteration n, or Transient when n is not
// retained.
func (c Config) Slot(n int) int {
	if n < c.BurnIn || (n-c.BurnIn+1)%c.Thinning != 0 {
		return Transient
	}
	return (n-c.BurnIn+1)/c.Thinning - 1
}

// ZOptions are the augmentation switches passed to every UpdateZ call
func (c Config) ZOptions() update.ZOptions {
	return update.ZOptions{
		TruncatedNormal:     c.TruncatedNormal,
		PoissonPreupdateZ:   c.PoissonPreupdateZ,
		PoissonMarginalizeZ: c.PoissonMarginalizeZ,
	}
}

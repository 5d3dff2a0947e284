package cmd

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/CraigKelly/jsdm/sampler"
)

// runConfig is the YAML run file: chain settings plus what the CLI does
// around the chains.
type runConfig struct {
	sampler.Config `yaml:",inline"`

	Chains  int    `yaml:"chains"`
	DB      string `yaml:"db"`
	JSON    string `yaml:"json"`
	Monitor string `yaml:"monitor"`
}

func defaultRunConfig() runConfig {
	return runConfig{
		Config: sampler.DefaultConfig(),
		Chains: 1,
	}
}

// loadRunConfig reads the run file at path over the defaults. An empty path
// gives the defaults.
func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "Could not read run configuration %s", path)
	}
	if err := decodeRunConfig(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "Could not parse run configuration %s", path)
	}
	return cfg, nil
}

func decodeRunConfig(data []byte, cfg *runConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	if cfg.Chains < 1 {
		return errors.Errorf("Chain count must be positive, got %d", cfg.Chains)
	}
	return cfg.Check()
}

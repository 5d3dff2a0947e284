package sampler

import (
	"context"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// A Sampler runs to completion and returns its retained draws. On error the
// draws retained before the failure are still returned.
type Sampler interface {
	Run(ctx context.Context) (*Samples, error)
}

// RunChains runs independent samplers side by side, one goroutine each. A
// failing chain does not stop the others: only ctx does. Every chain's draws
// are returned in order along with the combined errors of the chains that
// failed.
func RunChains(ctx context.Context, chains []Sampler) ([]*Samples, error) {
	out := make([]*Samples, len(chains))
	errs := make([]error, len(chains))
	var g errgroup.Group
	for i, ch := range chains {
		g.Go(func() error {
			out[i], errs[i] = ch.Run(ctx)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return out, multierr.Combine(errs...)
}

package model

import (
	"github.com/pkg/errors"

	"github.com/CraigKelly/jsdm/linalg"
)

// Error taxonomy. Every failure is fatal for the chain that hits it; callers
// test with errors.Is after any amount of wrapping.
var (
	// ErrNumericalDegeneracy is a factorization target that is not positive
	// definite or contains non-finite values.
	ErrNumericalDegeneracy = linalg.ErrNumericalDegeneracy

	// ErrUnsupportedConfiguration is a requested spatial method or family
	// with no implemented algorithm. Raised when a model or chain is set up.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")

	// ErrShapeInconsistency is a level whose loading and score arrays
	// disagree on the factor count.
	ErrShapeInconsistency = errors.New("shape inconsistency")
)

func unsupported(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnsupportedConfiguration, format, args...)
}

func inconsistent(format string, args ...interface{}) error {
	return errors.Wrapf(ErrShapeInconsistency, format, args...)
}

package model

import (
	"strings"
)

// Family is the observation model of one species column
type Family int

// Family codes as they appear in model files
const (
	Normal  Family = 1
	Probit  Family = 2
	Poisson Family = 3
)

func (f Family) String() string {
	switch f {
	case Normal:
		return "normal"
	case Probit:
		return "probit"
	case Poisson:
		return "poisson"
	}
	return "unknown"
}

// Valid is true for the codes we have an augmentation step for
func (f Family) Valid() bool {
	return f == Normal || f == Probit || f == Poisson
}

// SpatialMethod tags how a random level's latent factors are correlated
// across its units.
type SpatialMethod int

// Spatial methods. GPP is recognised so it can be rejected by name.
const (
	SpatialNone SpatialMethod = iota
	SpatialFull
	SpatialNNGP
	SpatialGPP
)

var spatialNames = []string{"none", "full", "nngp", "gpp"}

func (s SpatialMethod) String() string {
	if s < 0 || int(s) >= len(spatialNames) {
		return "unknown"
	}
	return spatialNames[s]
}

// ParseSpatialMethod maps a method name (case insensitive) to its tag. An
// empty name means non-spatial.
func ParseSpatialMethod(name string) (SpatialMethod, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return SpatialNone, nil
	}
	for i, known := range spatialNames {
		if n == known {
			return SpatialMethod(i), nil
		}
	}
	return SpatialNone, unsupported("Unknown spatial method %q", name)
}

package rand

import "math"

// PolyaGammaApprox draws from PG(h, z) using the moment-matched normal
// approximation. It is only accurate for large shapes (h of a few hundred or
// more); callers are expected to guarantee that, there is no small-shape path.
func (g *Generator) PolyaGammaApprox(h, z float64) float64 {
	m, s := PolyaGammaMoments(h, z)
	return math.Abs(m + s*g.NormFloat64())
}

// PolyaGammaMoments returns the mean and standard deviation of PG(h, z).
func PolyaGammaMoments(h, z float64) (mean, sd float64) {
	z = math.Abs(z)
	if z < 1e-4 {
		return 0.25 * h, math.Sqrt(h / 24)
	}

	t := math.Tanh(0.5 * z)
	mean = 0.5 * h * t / z

	// (sinh z - z)(1 - tanh^2(z/2)) rewritten as 2 tanh(z/2) - z sech^2(z/2)
	// so large z does not overflow sinh.
	sech2 := 1 - t*t
	v := 0.25 * h * (2*t - z*sech2) / (z * z * z)
	if v < 0 {
		v = 0
	}
	return mean, math.Sqrt(v)
}

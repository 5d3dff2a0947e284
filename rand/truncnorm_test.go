package rand

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var allBackends = []TruncBackend{TruncInverse, TruncRejection, TruncErfc}

func TestParseTruncBackend(t *testing.T) {
	assert := assert.New(t)

	for _, b := range allBackends {
		parsed, err := ParseTruncBackend(b.String())
		assert.NoError(err)
		assert.Equal(b, parsed)
	}

	b, err := ParseTruncBackend("")
	assert.NoError(err)
	assert.Equal(TruncInverse, b)

	_, err = ParseTruncBackend("scipy")
	assert.Error(err)

	var u TruncBackend
	assert.NoError(u.UnmarshalText([]byte("Rejection")))
	assert.Equal(TruncRejection, u)
	assert.Equal("unknown", TruncBackend(9).String())
}

func TestTruncNormalBounds(t *testing.T) {
	assert := assert.New(t)
	inf := math.Inf(1)

	type bounds struct{ mu, sigma, lo, hi float64 }
	cases := []bounds{
		{0, 1, 0, inf},
		{0, 1, -inf, 0},
		{3, 1, -inf, 0},   // far tail on the left
		{-6, 1, 0, inf},   // far tail on the right
		{0.2, 2, -1, 0.5}, // straddles the mean
		{0, 1, 2, 2.1},    // narrow right interval
		{1, 0.5, -inf, inf},
		{10, 1, -inf, 0}, // beyond where inversion loses precision
		{40, 1, -inf, 0}, // beyond where the normal CDF underflows
		{-40, 2, 0, inf},
		{8.5, 0.5, 0, 4},
	}

	for _, b := range allBackends {
		gen, _ := NewGenerator(99)
		for _, c := range cases {
			for i := 0; i < 500; i++ {
				x := gen.TruncNormal(b, c.mu, c.sigma, c.lo, c.hi)
				assert.False(math.IsNaN(x), "%v %+v", b, c)
				assert.True(x >= c.lo && x <= c.hi, "%v %+v gave %v", b, c, x)
				if math.Abs(c.mu) >= 10 {
					// open bounds: never exactly on the truncation point
					assert.True(x > c.lo && x < c.hi, "%v %+v gave %v", b, c, x)
				}
			}
		}

		assert.True(math.IsNaN(gen.TruncNormal(b, 0, 1, 1, 1)))
		assert.True(math.IsNaN(gen.TruncNormal(b, 0, 0, 0, 1)))
	}
}

// All backends must agree on the moments of the truncated law. The mean of
// N(0,1) truncated to [0, inf) is sqrt(2/pi).
func TestTruncNormalBackendsAgree(t *testing.T) {
	assert := assert.New(t)
	const n = 40000
	expMean := math.Sqrt(2 / math.Pi)
	expVar := 1 - 2/math.Pi

	for _, b := range allBackends {
		gen, _ := NewGenerator(5)
		sum, sum2 := 0.0, 0.0
		for i := 0; i < n; i++ {
			x := gen.TruncNormal(b, 0, 1, 0, math.Inf(1))
			sum += x
			sum2 += x * x
		}
		mean := sum / n
		assert.InDelta(expMean, mean, 0.015, "backend %v", b)
		assert.InDelta(expVar, sum2/n-mean*mean, 0.02, "backend %v", b)

		// Tail: N(0,1) on [3, inf) has mean phi(3)/Q(3)
		gen, _ = NewGenerator(6)
		sum = 0
		for i := 0; i < n; i++ {
			sum += gen.TruncNormal(b, 0, 1, 3, math.Inf(1))
		}
		phi := math.Exp(-4.5) / math.Sqrt(2*math.Pi)
		q := 0.5 * math.Erfc(3/math.Sqrt2)
		assert.InDelta(phi/q, sum/n, 0.01, "backend %v", b)

		// Deep tail: N(10,1) on (-inf, 0]. The standardized mean is
		// -phi(10)/Phi(-10), so the mean is about -0.098.
		gen, _ = NewGenerator(7)
		sum = 0
		for i := 0; i < n; i++ {
			x := gen.TruncNormal(b, 10, 1, math.Inf(-1), 0)
			assert.True(x < 0 && !math.IsInf(x, 0), "backend %v gave %v", b, x)
			sum += x
		}
		phi = math.Exp(-50) / math.Sqrt(2*math.Pi)
		q = 0.5 * math.Erfc(10/math.Sqrt2)
		assert.InDelta(10-phi/q, sum/n, 0.005, "backend %v", b)
	}
}

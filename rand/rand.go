package rand

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	mrand "math/rand/v2"

	"github.com/pkg/errors"
	"github.com/seehuhn/mt19937"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// A Generator is a deterministic stream of random numbers backed by the
// 64-bit Mersenne twister. Every chain owns exactly one Generator: it is NOT
// safe for concurrent use, and a fixed seed reproduces the whole stream.
type Generator struct {
	mt *mt19937.MT19937
	r  *mrand.Rand
}

// NewGenerator creates a new PRNG based on the given seed
func NewGenerator(seed int64) (*Generator, error) {
	mt := mt19937.New()
	mt.Seed(seed)
	return wrap(mt), nil
}

// NewGeneratorSlice creates a new PRNG seeded with the MT19937-64
// init_by_array procedure. This is how independent chains get independent
// streams from one user seed: {seed, chain}.
func NewGeneratorSlice(key []uint64) (*Generator, error) {
	if len(key) < 1 {
		return nil, errors.Errorf("Seed slice must not be empty")
	}
	mt := mt19937.New()
	mt.SeedFromSlice(key)
	return wrap(mt), nil
}

// NewChainGenerator returns the generator for chain number chain of a run
// started with seed.
func NewChainGenerator(seed int64, chain int) (*Generator, error) {
	if chain < 0 {
		return nil, errors.Errorf("Invalid chain index %d", chain)
	}
	return NewGeneratorSlice([]uint64{uint64(seed), uint64(chain)})
}

// NewSeed returns a seed read from the operating system, used when a run
// does not fix one.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, errors.Wrap(err, "Could not read random seed")
	}
	return int64(binary.LittleEndian.Uint64(b[:]) >> 1), nil
}

func wrap(mt *mt19937.MT19937) *Generator {
	return &Generator{
		mt: mt,
		r:  mrand.New(mt),
	}
}

// Split returns a child generator seeded from the next two values of g. The
// child can run on another goroutine; g and the child stay reproducible.
func (g *Generator) Split() *Generator {
	mt := mt19937.New()
	mt.SeedFromSlice([]uint64{g.mt.Uint64(), g.mt.Uint64()})
	return wrap(mt)
}

// Source exposes g's stream to gonum's distributions. Draws made through it
// advance g exactly like draws made through g's own methods.
func (g *Generator) Source() exprand.Source {
	return source{g.mt}
}

type source struct {
	mt *mt19937.MT19937
}

func (s source) Uint64() uint64 { return s.mt.Uint64() }

// Seed is a no-op: a chain's stream is fixed when its Generator is created.
func (s source) Seed(uint64) {}

// Uint64 returns the next raw 64-bit value
func (g *Generator) Uint64() uint64 {
	return g.mt.Uint64()
}

// Int63 provides the same interface as Go's math/rand
func (g *Generator) Int63() int64 {
	return int64(g.mt.Uint64() & 0x7fffffffffffffff)
}

// Float64 returns a uniform draw in [0, 1)
func (g *Generator) Float64() float64 {
	return g.r.Float64()
}

// OpenFloat64 returns a uniform draw in (0, 1), handy for inverse-CDF work
// where 0 would map to -Inf.
func (g *Generator) OpenFloat64() float64 {
	for {
		u := g.r.Float64()
		if u > 0 {
			return u
		}
	}
}

// NormFloat64 returns a standard normal draw
func (g *Generator) NormFloat64() float64 {
	return g.r.NormFloat64()
}

// ExpFloat64 returns a rate 1 exponential draw
func (g *Generator) ExpFloat64() float64 {
	return g.r.ExpFloat64()
}

// Normals fills dst with standard normal draws and returns it
func (g *Generator) Normals(dst []float64) []float64 {
	for i := range dst {
		dst[i] = g.r.NormFloat64()
	}
	return dst
}

// Gamma returns a draw from Gamma(shape, rate), NaN for invalid parameters
func (g *Generator) Gamma(shape, rate float64) float64 {
	if !(shape > 0) || !(rate > 0) {
		return math.NaN()
	}
	return distuv.Gamma{Alpha: shape, Beta: rate, Src: g.Source()}.Rand()
}

// Categorical draws an index with probability proportional to exp(logW[i]).
func (g *Generator) Categorical(logW []float64) (int, error) {
	if len(logW) < 1 {
		return -1, errors.Errorf("Can not sample from an empty categorical")
	}

	mx := math.Inf(-1)
	for _, w := range logW {
		if w > mx {
			mx = w
		}
	}
	if math.IsInf(mx, -1) || math.IsNaN(mx) {
		return -1, errors.Errorf("Categorical weights are degenerate (max=%v)", mx)
	}

	tot := 0.0
	for _, w := range logW {
		tot += math.Exp(w - mx)
	}

	u := g.Float64() * tot
	acc := 0.0
	for i, w := range logW {
		acc += math.Exp(w - mx)
		if u < acc {
			return i, nil
		}
	}
	return len(logW) - 1, nil
}

package risk

import (
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// minUniform keeps ln(u1) finite in the Box–Muller transform.
const minUniform = 1e-12

// NormalSource produces standard-normal draws.
type NormalSource interface {
	NormFloat64() float64
}

// BoxMuller turns a uniform generator into standard-normal draws with
// Z = sqrt(-2 ln U1) * cos(2π U2). It is not safe for concurrent use.
type BoxMuller struct {
	rng *rand.Rand
}

// NewBoxMuller creates a source seeded deterministically from seed.
func NewBoxMuller(seed uint64) *BoxMuller {
	return &BoxMuller{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NormFloat64 returns the next standard-normal draw.
func (b *BoxMuller) NormFloat64() float64 {
	u1 := math.Max(b.rng.Float64(), minUniform)
	u2 := b.rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

var seedCounter atomic.Uint64

// timeSeed gives each unseeded simulation run its own stream.
func timeSeed() uint64 {
	return uint64(time.Now().UnixNano()) + seedCounter.Add(1)
}

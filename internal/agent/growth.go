package agent

import (
	"github.com/iti/rngstream"
)

// DefaultMaxGrowth is the upper bound of the per-poll load increase when none is configured.
const DefaultMaxGrowth = 5

// LoadGrowth draws the load increase applied after each poll.
type LoadGrowth interface {
	// Next returns a non-negative increment.
	Next() int
}

// UniformGrowth draws increments uniformly from [0, Max] on its own random stream.
// Each NewUniformGrowth call takes the next stream of the process and the name is only
// a label. Runs are reproducible within a fresh process because agents are created in
// topology order.
type UniformGrowth struct {
	Max    int
	stream *rngstream.RngStream
}

// NewUniformGrowth creates a UniformGrowth on a new stream labelled name.
// A negative max is treated as zero.
func NewUniformGrowth(name string, max int) *UniformGrowth {
	if max < 0 {
		max = 0
	}
	return &UniformGrowth{Max: max, stream: rngstream.New(name)}
}

// Next implements LoadGrowth.
func (g *UniformGrowth) Next() int {
	if g.Max == 0 {
		return 0
	}
	return g.stream.RandInt(0, g.Max)
}

// FixedGrowth always returns the same increment.
type FixedGrowth int

// Next implements LoadGrowth.
func (g FixedGrowth) Next() int {
	if g < 0 {
		return 0
	}
	return int(g)
}

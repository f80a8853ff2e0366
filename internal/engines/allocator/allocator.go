package allocator

import (
	"context"
	"fmt"
)

// Allocator distributes a fixed pool of channels among cells given their reported loads
type Allocator interface {
	// Allocate returns the channel count per cell, indexed like loads.
	// The result always sums to totalChannels and contains no negative entries.
	Allocate(ctx context.Context, loads []int, totalChannels int) ([]int, error)
}

// Strategy is an enumeration of the different strategies that can be used by the Allocator
type Strategy int

// enumeration of Strategy
const (
	EqualStrategy Strategy = iota
	ProportionalStrategy
)

func (s Strategy) String() string {
	switch s {
	case EqualStrategy:
		return "Equal"
	case ProportionalStrategy:
		return "Proportional"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// NewAllocator is a factory that creates a new Allocator based on the provided strategy
func NewAllocator(strategy Strategy) (Allocator, error) {
	switch strategy {
	case EqualStrategy:
		return NewEqualAllocator(), nil
	case ProportionalStrategy:
		return NewProportionalAllocator(), nil
	default:
		return nil, fmt.Errorf("unsupported allocator strategy: %v", strategy)
	}
}

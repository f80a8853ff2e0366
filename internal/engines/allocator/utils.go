package allocator

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is wrapped by every input validation error returned by an Allocator.
var ErrInvalidInput = errors.New("invalid allocation input")

// Sum returns the sum of the given non-negative values, saturating at math.MaxInt.
func Sum(values []int) int {
	total := 0
	for _, v := range values {
		if v > 0 && total > math.MaxInt-v {
			return math.MaxInt
		}
		total += v
	}
	return total
}

// EqualBaseline splits totalChannels over numCells cells: every cell gets totalChannels/numCells
// and the first totalChannels%numCells cells get one more.
func EqualBaseline(numCells, totalChannels int) []int {
	if numCells <= 0 {
		return nil
	}
	baseShare := totalChannels / numCells
	remainder := totalChannels % numCells
	channels := make([]int, numCells)
	for i := range channels {
		channels[i] = baseShare
		if i < remainder {
			channels[i]++
		}
	}
	return channels
}

func validate(loads []int, totalChannels int) error {
	if totalChannels <= 0 {
		return fmt.Errorf("%w: totalChannels must be positive, got %d", ErrInvalidInput, totalChannels)
	}
	if len(loads) == 0 {
		return fmt.Errorf("%w: no cells to allocate to", ErrInvalidInput)
	}
	for i, l := range loads {
		if l < 0 {
			return fmt.Errorf("%w: negative load %d at index %d", ErrInvalidInput, l, i)
		}
	}
	return nil
}

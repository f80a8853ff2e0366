package allocator

import (
	"context"
	"math"
	"math/big"
	"math/bits"
	"sort"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/hcran/rrh-channel-controller/internal/logging"
)

// ProportionalAllocator distributes channels proportionally to load using the
// largest remainder method. With zero total load it falls back to the equal baseline.
type ProportionalAllocator struct{}

// NewProportionalAllocator creates a new ProportionalAllocator instance.
func NewProportionalAllocator() *ProportionalAllocator {
	return &ProportionalAllocator{}
}

// Allocate implements Allocator.
func (a *ProportionalAllocator) Allocate(ctx context.Context, loads []int, totalChannels int) ([]int, error) {
	if err := validate(loads, totalChannels); err != nil {
		return nil, err
	}
	logger := ctrl.LoggerFrom(ctx)

	totalLoad := Sum(loads)
	if totalLoad == 0 {
		logger.V(logging.DEBUG).Info("Total load is zero, using equal baseline", "totalChannels", totalChannels)
		return EqualBaseline(len(loads), totalChannels), nil
	}

	// share_i = totalChannels*load_i/totalLoad is kept as an integer quotient plus a remainder
	// over totalLoad, so fractional parts compare exactly.
	var channels []int
	var compareRemainders func(i, j int) int
	if fitsInt(loads, totalChannels) {
		channels, compareRemainders = intShares(loads, totalChannels, totalLoad)
	} else {
		logger.V(logging.DEBUG).Info("Scaled loads overflow int, using arbitrary precision", "totalChannels", totalChannels)
		channels, compareRemainders = bigShares(loads, totalChannels)
	}
	assigned := 0
	for _, c := range channels {
		assigned += c
	}

	deficit := totalChannels - assigned
	if deficit > 0 {
		order := make([]int, len(loads))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(x, y int) bool {
			if c := compareRemainders(order[x], order[y]); c != 0 {
				return c > 0
			}
			return order[x] < order[y]
		})
		for _, i := range order[:deficit] {
			channels[i]++
		}
	}

	logger.V(logging.TRACE).Info("Proportional allocation",
		"totalChannels", totalChannels,
		"totalLoad", totalLoad,
		"deficit", deficit,
		"channels", channels)
	return channels, nil
}

// fitsInt reports whether totalChannels*load and the sum of loads fit in an int for every load.
func fitsInt(loads []int, totalChannels int) bool {
	if Sum(loads) == math.MaxInt {
		return false
	}
	for _, load := range loads {
		hi, lo := bits.Mul64(uint64(totalChannels), uint64(load))
		if hi != 0 || lo > math.MaxInt {
			return false
		}
	}
	return true
}

func intShares(loads []int, totalChannels, totalLoad int) ([]int, func(i, j int) int) {
	channels := make([]int, len(loads))
	remainders := make([]int, len(loads))
	for i, load := range loads {
		scaled := totalChannels * load
		channels[i] = scaled / totalLoad
		remainders[i] = scaled % totalLoad
	}
	return channels, func(i, j int) int {
		switch {
		case remainders[i] > remainders[j]:
			return 1
		case remainders[i] < remainders[j]:
			return -1
		}
		return 0
	}
}

func bigShares(loads []int, totalChannels int) ([]int, func(i, j int) int) {
	totalLoad := new(big.Int)
	for _, load := range loads {
		totalLoad.Add(totalLoad, big.NewInt(int64(load)))
	}
	scale := big.NewInt(int64(totalChannels))
	channels := make([]int, len(loads))
	remainders := make([]*big.Int, len(loads))
	for i, load := range loads {
		scaled := new(big.Int).Mul(scale, big.NewInt(int64(load)))
		quotient, remainder := new(big.Int).QuoRem(scaled, totalLoad, new(big.Int))
		// quotient <= totalChannels
		channels[i] = int(quotient.Int64())
		remainders[i] = remainder
	}
	return channels, func(i, j int) int {
		return remainders[i].Cmp(remainders[j])
	}
}

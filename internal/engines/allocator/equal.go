package allocator

import (
	"context"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/hcran/rrh-channel-controller/internal/logging"
)

// EqualAllocator ignores loads and splits the pool evenly, lowest indices first.
// It is the start-up distribution and the fallback when no cell reports load.
type EqualAllocator struct{}

// NewEqualAllocator creates a new EqualAllocator instance.
func NewEqualAllocator() *EqualAllocator {
	return &EqualAllocator{}
}

// Allocate implements Allocator.
func (a *EqualAllocator) Allocate(ctx context.Context, loads []int, totalChannels int) ([]int, error) {
	if err := validate(loads, totalChannels); err != nil {
		return nil, err
	}
	channels := EqualBaseline(len(loads), totalChannels)
	ctrl.LoggerFrom(ctx).V(logging.TRACE).Info("Equal allocation", "totalChannels", totalChannels, "channels", channels)
	return channels, nil
}

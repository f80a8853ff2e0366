// Package events publishes the controller rounds as a stream of structured events.
package events

import (
	"context"
	"time"

	"github.com/moby/pubsub"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
	"github.com/hcran/rrh-channel-controller/internal/protocol"
)

// Type names the kind of an Event.
type Type string

const (
	PollIssued        Type = "PollIssued"
	ReplyReceived     Type = "ReplyReceived"
	RoundCompleted    Type = "RoundCompleted"
	ViolationObserved Type = "ViolationObserved"
)

// Event is a single observation of a controller round. Fields not relevant to Type are zero.
type Event struct {
	Type  Type  `json:"type" yaml:"type"`
	Round int64 `json:"round" yaml:"round"`

	// Cells is the number of cells polled (PollIssued).
	Cells int `json:"cells,omitempty" yaml:"cells,omitempty"`

	// Cell, GlobalIndex and Load describe an accepted reply (ReplyReceived).
	Cell        *v1alpha1.CellRef `json:"cell,omitempty" yaml:"cell,omitempty"`
	GlobalIndex int               `json:"globalIndex,omitempty" yaml:"globalIndex,omitempty"`
	Load        int               `json:"load,omitempty" yaml:"load,omitempty"`

	// Status and Duration describe the completed round (RoundCompleted).
	Status   *v1alpha1.AllocationStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Duration time.Duration              `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Reason and From describe a discarded message or timer (ViolationObserved).
	Reason protocol.ViolationReason `json:"reason,omitempty" yaml:"reason,omitempty"`
	From   string                   `json:"from,omitempty" yaml:"from,omitempty"`
}

// Broadcaster fans events out to subscribers. It implements controller.Recorder.
// A subscriber that does not receive within the publish timeout misses the event.
// With a zero timeout publishing blocks until every subscriber has received it.
type Broadcaster struct {
	publisher *pubsub.Publisher
}

// NewBroadcaster creates a Broadcaster. buffer is the channel size of each subscriber.
func NewBroadcaster(timeout time.Duration, buffer int) *Broadcaster {
	return &Broadcaster{publisher: pubsub.NewPublisher(timeout, buffer)}
}

// Subscribe returns a channel receiving Event values of the given types, or of every type if none is given.
func (b *Broadcaster) Subscribe(types ...Type) chan interface{} {
	if len(types) == 0 {
		return b.publisher.Subscribe()
	}
	wanted := make(map[Type]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}
	return b.publisher.SubscribeTopic(func(v interface{}) bool {
		e, ok := v.(Event)
		if !ok {
			return false
		}
		_, ok = wanted[e.Type]
		return ok
	})
}

// Evict removes and closes a subscription.
func (b *Broadcaster) Evict(ch chan interface{}) {
	b.publisher.Evict(ch)
}

// Len returns the number of subscribers.
func (b *Broadcaster) Len() int {
	return b.publisher.Len()
}

// Close closes every subscription.
func (b *Broadcaster) Close() {
	b.publisher.Close()
}

// PollIssued implements controller.Recorder.
func (b *Broadcaster) PollIssued(_ context.Context, round int64, cells int) {
	b.publisher.Publish(Event{Type: PollIssued, Round: round, Cells: cells})
}

// ReplyReceived implements controller.Recorder.
func (b *Broadcaster) ReplyReceived(_ context.Context, round int64, cell v1alpha1.CellRef, globalIndex, load int) {
	b.publisher.Publish(Event{Type: ReplyReceived, Round: round, Cell: &cell, GlobalIndex: globalIndex, Load: load})
}

// RoundCompleted implements controller.Recorder.
func (b *Broadcaster) RoundCompleted(_ context.Context, status *v1alpha1.AllocationStatus, duration time.Duration) {
	b.publisher.Publish(Event{Type: RoundCompleted, Round: status.Round, Status: status.DeepCopy(), Duration: duration})
}

// ViolationObserved implements controller.Recorder.
func (b *Broadcaster) ViolationObserved(_ context.Context, v *protocol.ProtocolViolation) {
	b.publisher.Publish(Event{Type: ViolationObserved, Reason: v.Reason, From: v.From.String()})
}

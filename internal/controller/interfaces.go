package controller

import (
	"context"
	"time"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
	"github.com/hcran/rrh-channel-controller/internal/protocol"
)

// Scheduler is the timer capability the Controller consumes.
type Scheduler interface {
	// Now returns the current time of the host.
	Now() time.Time
	// ScheduleTimer arranges for the host to call OnTimer once, after d.
	ScheduleTimer(d time.Duration)
}

// Recorder observes the rounds of a Controller. Implementations must not call back
// into the Controller.
type Recorder interface {
	// PollIssued is called after PollRequests were sent to every cell.
	PollIssued(ctx context.Context, round int64, cells int)
	// ReplyReceived is called for every accepted LoadReply.
	ReplyReceived(ctx context.Context, round int64, cell v1alpha1.CellRef, globalIndex, load int)
	// RoundCompleted is called once per round with the resulting allocation.
	RoundCompleted(ctx context.Context, status *v1alpha1.AllocationStatus, duration time.Duration)
	// ViolationObserved is called for every discarded message or timer.
	ViolationObserved(ctx context.Context, violation *protocol.ProtocolViolation)
}

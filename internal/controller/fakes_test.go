package controller

import (
	"context"
	"time"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
	"github.com/hcran/rrh-channel-controller/internal/protocol"
)

type fakeSender struct {
	sent []protocol.Envelope
}

func (f *fakeSender) Send(_ context.Context, env protocol.Envelope) {
	f.sent = append(f.sent, env)
}

type fakeScheduler struct {
	now       time.Time
	scheduled []time.Duration
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeScheduler) Now() time.Time { return f.now }

func (f *fakeScheduler) ScheduleTimer(d time.Duration) {
	f.scheduled = append(f.scheduled, d)
}

type fakeRecorder struct {
	polls      []int64
	replies    []int
	completed  []*v1alpha1.AllocationStatus
	durations  []time.Duration
	violations []protocol.ViolationReason
}

func (f *fakeRecorder) PollIssued(_ context.Context, round int64, _ int) {
	f.polls = append(f.polls, round)
}

func (f *fakeRecorder) ReplyReceived(_ context.Context, _ int64, _ v1alpha1.CellRef, globalIndex, _ int) {
	f.replies = append(f.replies, globalIndex)
}

func (f *fakeRecorder) RoundCompleted(_ context.Context, status *v1alpha1.AllocationStatus, d time.Duration) {
	f.completed = append(f.completed, status)
	f.durations = append(f.durations, d)
}

func (f *fakeRecorder) ViolationObserved(_ context.Context, v *protocol.ProtocolViolation) {
	f.violations = append(f.violations, v.Reason)
}

// runRound fires the timer and delivers one reply per cell, in global index order.
func runRound(ctx context.Context, c *Controller, loads []int) error {
	if err := c.OnTimer(ctx); err != nil {
		return err
	}
	for i, ref := range c.Topology().Cells() {
		if err := c.OnMessage(ctx, protocol.CellEndpoint(ref), protocol.LoadReply{Load: loads[i]}); err != nil {
			return err
		}
	}
	return nil
}

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

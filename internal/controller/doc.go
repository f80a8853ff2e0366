// Package controller implements the resource controller that owns the shared channel pool.
//
// The Controller polls every cell agent on a fixed interval, aggregates the reported
// loads and, when dynamic allocation is enabled, redistributes the channel pool
// proportionally to load.
//
// # Capabilities
//
// The Controller never talks to a transport or a clock directly. A host provides:
//   - a protocol.Sender used to send PollRequests to cell agents
//   - a Scheduler used to read the current time and arrange the next poll timer
//
// The host delivers exactly one event at a time by calling OnTimer or OnMessage.
// The Controller holds no locks and must not be called concurrently.
//
// # Round State Machine
//
//  1. Start allocates the equal baseline and schedules the first timer (state Waiting)
//  2. OnTimer sends one PollRequest per cell in global index order (Waiting -> Polling)
//  3. OnMessage stores each LoadReply and counts down the outstanding replies
//  4. The last reply sums the loads, reallocates when dynamic, records the round and
//     schedules the next timer (Polling -> Waiting)
//
// # Error Handling
//
// Messages and timers that do not fit the current state are protocol violations:
// they are logged, reported to the recorders and discarded without changing state.
// A round waits for every reply; there is no reply deadline.
//
// # Usage
//
//	c, err := controller.New(ctx, spec, sender, scheduler,
//		controller.WithRecorders(collectors, broadcaster))
//	if err != nil {
//		return fmt.Errorf("creating controller: %w", err)
//	}
//	c.Start(ctx)
//
// See also:
//   - internal/engines/allocator: allocation strategies
//   - internal/runtime: real-time host
//   - internal/sim: virtual-time host
package controller

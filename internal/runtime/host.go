/*
Copyright 2025 The hcran Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package runtime hosts the controller and its cell agents in real time.
// A single goroutine drains a mailbox of timer, message and inspection events,
// so the hosted components never see two events at once.
package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
	"github.com/hcran/rrh-channel-controller/internal/agent"
	"github.com/hcran/rrh-channel-controller/internal/controller"
	"github.com/hcran/rrh-channel-controller/internal/logging"
	"github.com/hcran/rrh-channel-controller/internal/protocol"
)

// ErrStopped is returned by Inspect once the host has stopped.
var ErrStopped = errors.New("host is not running")

type eventKind int

const (
	timerEvent eventKind = iota
	messageEvent
	inspectEvent
)

type event struct {
	kind eventKind
	env  protocol.Envelope
	fn   func()
	done chan struct{}
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithClock sets the clock used for timers. Defaults to the real clock.
func WithClock(clk clock.WithDelayedExecution) HostOption {
	return func(h *Host) {
		if clk != nil {
			h.clock = clk
		}
	}
}

// Host implements protocol.Sender and controller.Scheduler on top of a clock and a mailbox.
type Host struct {
	clock clock.WithDelayedExecution

	mu      sync.Mutex
	queue   []event
	notify  chan struct{}
	stopped chan struct{}

	controller *controller.Controller
	agents     map[v1alpha1.CellRef]*agent.CellAgent
}

var _ protocol.Sender = &Host{}
var _ controller.Scheduler = &Host{}

// NewHost creates a Host. Attach the controller and the agents before calling Run.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		clock:   clock.RealClock{},
		notify:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
		agents:  make(map[v1alpha1.CellRef]*agent.CellAgent),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach sets the hosted controller and agents.
func (h *Host) Attach(c *controller.Controller, agents ...*agent.CellAgent) {
	h.controller = c
	for _, a := range agents {
		h.agents[a.Ref()] = a
	}
}

// Send implements protocol.Sender. Delivery happens later on the host goroutine.
func (h *Host) Send(_ context.Context, env protocol.Envelope) {
	h.enqueue(event{kind: messageEvent, env: env})
}

// Now implements controller.Scheduler.
func (h *Host) Now() time.Time {
	return h.clock.Now()
}

// ScheduleTimer implements controller.Scheduler.
func (h *Host) ScheduleTimer(d time.Duration) {
	h.clock.AfterFunc(d, func() {
		h.enqueue(event{kind: timerEvent})
	})
}

// Inspect runs fn on the host goroutine, between events, and waits for it to return.
func (h *Host) Inspect(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	h.enqueue(event{kind: inspectEvent, fn: fn, done: done})
	select {
	case <-done:
		return nil
	case <-h.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the hosted controller.
func (h *Host) Status(ctx context.Context) (*v1alpha1.AllocationStatus, error) {
	var status *v1alpha1.AllocationStatus
	if err := h.Inspect(ctx, func() { status = h.controller.Status() }); err != nil {
		return nil, err
	}
	return status, nil
}

func (h *Host) enqueue(e event) {
	h.mu.Lock()
	h.queue = append(h.queue, e)
	h.mu.Unlock()
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *Host) dequeue() (event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return event{}, false
	}
	e := h.queue[0]
	h.queue[0] = event{}
	h.queue = h.queue[1:]
	return e, true
}

// Run starts the controller and processes events until ctx is cancelled.
// Events are never interrupted; cancellation takes effect between events.
func (h *Host) Run(ctx context.Context) error {
	if h.controller == nil {
		return errors.New("no controller attached")
	}
	defer close(h.stopped)
	logger := ctrl.LoggerFrom(ctx)
	logger.Info("Starting real-time host", "agents", len(h.agents))

	h.controller.Start(ctx)
	for {
		for {
			if ctx.Err() != nil {
				break
			}
			e, ok := h.dequeue()
			if !ok {
				break
			}
			h.dispatch(ctx, e)
		}
		select {
		case <-ctx.Done():
			logger.Info("Stopping real-time host")
			return nil
		case <-h.notify:
		}
	}
}

func (h *Host) dispatch(ctx context.Context, e event) {
	switch e.kind {
	case timerEvent:
		// violations are logged and counted by the controller
		_ = h.controller.OnTimer(ctx)
	case messageEvent:
		h.deliver(ctx, e.env)
	case inspectEvent:
		e.fn()
		close(e.done)
	}
}

func (h *Host) deliver(ctx context.Context, env protocol.Envelope) {
	if env.To.Controller {
		_ = h.controller.OnMessage(ctx, env.From, env.Msg)
		return
	}
	a, ok := h.agents[env.To.Cell]
	if !ok {
		ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Dropping message for unknown cell", "envelope", env.String())
		return
	}
	a.HandleMessage(ctx, env.From, env.Msg)
}

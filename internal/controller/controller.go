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

package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation/field"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
	"github.com/hcran/rrh-channel-controller/internal/config"
	"github.com/hcran/rrh-channel-controller/internal/engines/allocator"
	"github.com/hcran/rrh-channel-controller/internal/logging"
	"github.com/hcran/rrh-channel-controller/internal/protocol"
	"github.com/hcran/rrh-channel-controller/internal/topology"
)

// State is the round state of the Controller.
type State string

const (
	// Waiting means no round is in progress and the next poll timer is pending.
	Waiting State = v1alpha1.StateWaiting
	// Polling means PollRequests were sent and replies are outstanding.
	Polling State = v1alpha1.StatePolling
)

// Option configures optional collaborators of a Controller.
type Option func(*Controller)

// WithRecorders adds recorders notified of every round.
func WithRecorders(recorders ...Recorder) Option {
	return func(c *Controller) {
		for _, r := range recorders {
			if r != nil {
				c.recorders = append(c.recorders, r)
			}
		}
	}
}

// WithAllocator replaces the allocator used for dynamic rounds.
func WithAllocator(a allocator.Allocator) Option {
	return func(c *Controller) {
		if a != nil {
			c.allocator = a
		}
	}
}

// WithInstanceID sets the id attached to every log line of the Controller.
func WithInstanceID(id string) Option {
	return func(c *Controller) {
		if id != "" {
			c.instanceID = id
		}
	}
}

// Controller owns the channel pool and runs the poll/aggregate/reallocate rounds.
type Controller struct {
	spec       v1alpha1.ControllerSpec
	topo       *topology.Topology
	sender     protocol.Sender
	scheduler  Scheduler
	allocator  allocator.Allocator
	recorders  []Recorder
	instanceID string

	state           State
	round           int64
	channels        []int
	loads           []int
	totalLoad       int
	repliesExpected int
	roundStart      time.Time
	lastRoundTime   time.Time
}

// New validates spec and builds a Controller holding the equal baseline allocation.
// An invalid spec yields a *config.ConfigError and no Controller.
func New(ctx context.Context, spec v1alpha1.ControllerSpec, sender protocol.Sender, scheduler Scheduler, opts ...Option) (*Controller, error) {
	errs := config.ValidateControllerSpec(spec, nil)
	if sender == nil {
		errs = append(errs, field.Required(field.NewPath("sender"), "a sender is required"))
	}
	if scheduler == nil {
		errs = append(errs, field.Required(field.NewPath("scheduler"), "a scheduler is required"))
	}
	if err := config.AsError(errs); err != nil {
		return nil, err
	}

	topo, err := topology.New(spec.Topology)
	if err != nil {
		return nil, fmt.Errorf("building topology: %w", err)
	}

	c := &Controller{
		spec:       spec,
		topo:       topo,
		sender:     sender,
		scheduler:  scheduler,
		allocator:  allocator.NewProportionalAllocator(),
		instanceID: uuid.NewString(),
		state:      Waiting,
		channels:   allocator.EqualBaseline(topo.Len(), spec.TotalChannels),
		loads:      make([]int, topo.Len()),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger(ctx).Info("Controller initialized",
		"totalChannels", spec.TotalChannels,
		"cells", topo.Len(),
		"macro", spec.Topology.Macro,
		"micro", spec.Topology.Micro,
		"pico", spec.Topology.Pico,
		"dynamicAllocation", spec.DynamicAllocation,
		"channels", c.channels)
	return c, nil
}

func (c *Controller) logger(ctx context.Context) logr.Logger {
	return ctrl.LoggerFrom(ctx).WithValues("controller", c.instanceID)
}

// Start schedules the first poll timer one interval from now.
func (c *Controller) Start(ctx context.Context) {
	c.logger(ctx).V(logging.DEBUG).Info("Scheduling first poll", "interval", c.spec.PollInterval())
	c.scheduler.ScheduleTimer(c.spec.PollInterval())
}

// OnTimer starts a new round by polling every cell in global index order.
// A timer firing while a round is in progress is a protocol violation and is ignored.
func (c *Controller) OnTimer(ctx context.Context) error {
	logger := c.logger(ctx)
	if c.state == Polling {
		v := &protocol.ProtocolViolation{Reason: protocol.ReasonTimerWhilePolling, From: protocol.ControllerEndpoint, Kind: "Timer"}
		return c.violation(ctx, v, "repliesExpected", c.repliesExpected)
	}

	c.round++
	c.state = Polling
	c.repliesExpected = c.topo.Len()
	c.roundStart = c.scheduler.Now()

	logger.Info("Polling all cells for load",
		"round", c.round,
		"cells", c.topo.Len(),
		"interval", c.spec.PollInterval())

	for _, ref := range c.topo.Cells() {
		c.sender.Send(ctx, protocol.Envelope{
			From: protocol.ControllerEndpoint,
			To:   protocol.CellEndpoint(ref),
			Msg:  protocol.PollRequest{},
		})
	}
	for _, r := range c.recorders {
		r.PollIssued(ctx, c.round, c.topo.Len())
	}
	return nil
}

// OnMessage handles a message delivered to the Controller.
// Only LoadReplies from cells of the topology are accepted while a round is in progress;
// anything else returns a *protocol.ProtocolViolation and leaves the state untouched.
func (c *Controller) OnMessage(ctx context.Context, from protocol.Endpoint, msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.LoadReply:
		return c.handleLoadReply(ctx, from, m)
	case *protocol.LoadReply:
		if m != nil {
			return c.handleLoadReply(ctx, from, *m)
		}
	}
	return c.violation(ctx, protocol.NewViolation(protocol.ReasonUnknownKind, from, msg))
}

func (c *Controller) handleLoadReply(ctx context.Context, from protocol.Endpoint, reply protocol.LoadReply) error {
	globalIndex := -1
	if !from.Controller {
		if i, err := c.topo.GlobalIndex(from.Cell); err == nil {
			globalIndex = i
		}
	}
	if globalIndex < 0 {
		return c.violation(ctx, protocol.NewViolation(protocol.ReasonUnknownSender, from, reply))
	}
	if c.repliesExpected == 0 {
		return c.violation(ctx, protocol.NewViolation(protocol.ReasonReplyAfterCompletion, from, reply),
			"globalIndex", globalIndex, "load", reply.Load)
	}
	if reply.Load < 0 {
		return c.violation(ctx, protocol.NewViolation(protocol.ReasonNegativeLoad, from, reply),
			"globalIndex", globalIndex, "load", reply.Load)
	}

	c.loads[globalIndex] = reply.Load
	c.repliesExpected--

	c.logger(ctx).V(logging.DEBUG).Info("Received load reply",
		"round", c.round,
		"cell", from.Cell.String(),
		"globalIndex", globalIndex,
		"load", reply.Load,
		"repliesExpected", c.repliesExpected)
	for _, r := range c.recorders {
		r.ReplyReceived(ctx, c.round, from.Cell, globalIndex, reply.Load)
	}

	if c.repliesExpected == 0 {
		c.completeRound(ctx)
	}
	return nil
}

// completeRound runs once per round, on the last reply.
func (c *Controller) completeRound(ctx context.Context) {
	logger := c.logger(ctx)
	c.totalLoad = allocator.Sum(c.loads)

	if c.spec.DynamicAllocation {
		channels, err := c.allocator.Allocate(ctx, c.loads, c.spec.TotalChannels)
		if err != nil {
			logger.Error(err, "Allocation failed, keeping previous channel assignments", "round", c.round)
		} else {
			c.channels = channels
		}
	} else {
		logger.V(logging.DEBUG).Info("Dynamic allocation disabled, keeping previous channel assignments", "round", c.round)
	}

	now := c.scheduler.Now()
	duration := now.Sub(c.roundStart)
	c.lastRoundTime = now
	c.state = Waiting

	logger.Info("Round completed",
		"round", c.round,
		"totalLoad", c.totalLoad,
		"loads", c.loads,
		"channels", c.channels,
		"duration", duration)

	if len(c.recorders) > 0 {
		status := c.Status()
		for _, r := range c.recorders {
			r.RoundCompleted(ctx, status, duration)
		}
	}
	c.scheduler.ScheduleTimer(c.spec.PollInterval())
}

func (c *Controller) violation(ctx context.Context, v *protocol.ProtocolViolation, keysAndValues ...any) error {
	kv := append([]any{"reason", v.Reason, "kind", v.Kind, "from", v.From.String(), "round", c.round}, keysAndValues...)
	c.logger(ctx).Info("Discarding protocol violation", kv...)
	for _, r := range c.recorders {
		r.ViolationObserved(ctx, v)
	}
	return v
}

// Spec returns the configuration of the Controller.
func (c *Controller) Spec() v1alpha1.ControllerSpec {
	return c.spec
}

// Topology returns the cell topology of the Controller.
func (c *Controller) Topology() *topology.Topology {
	return c.topo
}

// Channels returns a copy of the current allocation in global index order.
func (c *Controller) Channels() []int {
	return append([]int(nil), c.channels...)
}

// Loads returns a copy of the loads reported in the current or last round.
func (c *Controller) Loads() []int {
	return append([]int(nil), c.loads...)
}

// RepliesExpected returns the number of replies outstanding in the current round.
func (c *Controller) RepliesExpected() int {
	return c.repliesExpected
}

// State returns the round state.
func (c *Controller) State() State {
	return c.state
}

// Round returns the number of the most recently started round.
func (c *Controller) Round() int64 {
	return c.round
}

// Status returns a snapshot of the Controller.
func (c *Controller) Status() *v1alpha1.AllocationStatus {
	cells := c.topo.Cells()
	status := &v1alpha1.AllocationStatus{
		Round:           c.round,
		State:           string(c.state),
		TotalChannels:   c.spec.TotalChannels,
		TotalLoad:       c.totalLoad,
		RepliesExpected: c.repliesExpected,
		Cells:           make([]v1alpha1.CellAllocation, len(cells)),
	}
	if !c.lastRoundTime.IsZero() {
		status.LastRoundTime = metav1.NewTime(c.lastRoundTime)
	}
	for i, ref := range cells {
		status.Cells[i] = v1alpha1.CellAllocation{
			Cell:        ref,
			GlobalIndex: i,
			Channels:    c.channels[i],
			Load:        c.loads[i],
		}
	}
	return status
}

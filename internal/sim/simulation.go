// Package sim hosts the controller and its cell agents in virtual time on a discrete event manager.
// Every message crosses a link with a fixed one-way latency; handlers run one at a time.
package sim

import (
	"context"
	"errors"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
	"github.com/hcran/rrh-channel-controller/internal/agent"
	"github.com/hcran/rrh-channel-controller/internal/controller"
	"github.com/hcran/rrh-channel-controller/internal/logging"
	"github.com/hcran/rrh-channel-controller/internal/protocol"
)

// Epoch is the wall-clock time reported for virtual time zero.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Option configures a Simulation.
type Option func(*Simulation)

// WithLinkLatency sets the one-way latency of every controller to cell link.
func WithLinkLatency(d time.Duration) Option {
	return func(s *Simulation) {
		if d >= 0 {
			s.latency = d
		}
	}
}

// Simulation implements protocol.Sender and controller.Scheduler in virtual time.
type Simulation struct {
	evtMgr  *evtm.EventManager
	latency time.Duration

	// ctx is the context of the running Run call; event handlers carry no context of their own.
	ctx context.Context

	controller *controller.Controller
	agents     map[v1alpha1.CellRef]*agent.CellAgent
	delivered  int
}

var _ protocol.Sender = &Simulation{}
var _ controller.Scheduler = &Simulation{}

// New creates a Simulation. Attach the controller and the agents before calling Run.
func New(opts ...Option) *Simulation {
	s := &Simulation{
		evtMgr: evtm.New(),
		ctx:    context.Background(),
		agents: make(map[v1alpha1.CellRef]*agent.CellAgent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach sets the simulated controller and agents.
func (s *Simulation) Attach(c *controller.Controller, agents ...*agent.CellAgent) {
	s.controller = c
	for _, a := range agents {
		s.agents[a.Ref()] = a
	}
}

// Send implements protocol.Sender by scheduling delivery one link latency from now.
func (s *Simulation) Send(_ context.Context, env protocol.Envelope) {
	s.evtMgr.Schedule(s, env, deliverMessage, vrtime.SecondsToTime(s.latency.Seconds()))
}

// Now implements controller.Scheduler.
func (s *Simulation) Now() time.Time {
	return Epoch.Add(s.Elapsed())
}

// Elapsed returns the current virtual time.
func (s *Simulation) Elapsed() time.Duration {
	return time.Duration(s.evtMgr.CurrentSeconds() * float64(time.Second))
}

// ScheduleTimer implements controller.Scheduler.
func (s *Simulation) ScheduleTimer(d time.Duration) {
	s.evtMgr.Schedule(s, nil, fireTimer, vrtime.SecondsToTime(d.Seconds()))
}

// Delivered returns the number of messages delivered so far.
func (s *Simulation) Delivered() int {
	return s.delivered
}

// Run starts the controller and processes events until virtual time reaches until.
func (s *Simulation) Run(ctx context.Context, until time.Duration) error {
	if s.controller == nil {
		return errors.New("no controller attached")
	}
	s.ctx = ctx
	ctrl.LoggerFrom(ctx).Info("Starting simulation", "agents", len(s.agents), "until", until, "linkLatency", s.latency)

	s.controller.Start(ctx)
	s.evtMgr.Run(until.Seconds())

	ctrl.LoggerFrom(ctx).Info("Simulation finished", "elapsed", s.Elapsed(), "delivered", s.delivered)
	return nil
}

func fireTimer(_ *evtm.EventManager, cxt any, _ any) any {
	s := cxt.(*Simulation)
	// violations are logged and counted by the controller
	_ = s.controller.OnTimer(s.ctx)
	return nil
}

func deliverMessage(_ *evtm.EventManager, cxt any, data any) any {
	s := cxt.(*Simulation)
	env := data.(protocol.Envelope)
	s.delivered++

	if env.To.Controller {
		_ = s.controller.OnMessage(s.ctx, env.From, env.Msg)
		return nil
	}
	a, ok := s.agents[env.To.Cell]
	if !ok {
		ctrl.LoggerFrom(s.ctx).V(logging.DEBUG).Info("Dropping message for unknown cell", "envelope", env.String())
		return nil
	}
	a.HandleMessage(s.ctx, env.From, env.Msg)
	return nil
}

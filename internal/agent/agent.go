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

// Package agent implements the cell agent: a macro, micro or pico cell that reports its load
// to the resource controller when polled.
package agent

import (
	"context"
	"fmt"
	"math"

	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
	"github.com/hcran/rrh-channel-controller/internal/logging"
	"github.com/hcran/rrh-channel-controller/internal/protocol"
)

// CellAgent answers PollRequests with its current load and then grows that load.
// It is driven by one event at a time and holds no locks.
type CellAgent struct {
	ref             v1alpha1.CellRef
	currentLoad     int
	initialChannels int
	sender          protocol.Sender
	growth          LoadGrowth
}

// New creates a cell agent. The initial load must be non-negative.
// InitialChannels in spec is only logged; the controller's allocation is authoritative.
func New(ctx context.Context, ref v1alpha1.CellRef, spec v1alpha1.AgentSpec, sender protocol.Sender, growth LoadGrowth) (*CellAgent, error) {
	initialLoad := ptr.Deref(spec.InitialLoad, 0)
	if initialLoad < 0 {
		return nil, fmt.Errorf("cell %s: initial load must be non-negative, got %d", ref, initialLoad)
	}
	if sender == nil {
		return nil, fmt.Errorf("cell %s: sender cannot be nil", ref)
	}
	if growth == nil {
		growth = NewUniformGrowth(ref.String(), maxGrowth(spec))
	}
	a := &CellAgent{
		ref:             ref,
		currentLoad:     initialLoad,
		initialChannels: spec.InitialChannels,
		sender:          sender,
		growth:          growth,
	}
	ctrl.LoggerFrom(ctx).Info("Cell agent initialized",
		"cell", ref.String(),
		"initialChannels", spec.InitialChannels,
		"initialLoad", initialLoad)
	return a, nil
}

func maxGrowth(spec v1alpha1.AgentSpec) int {
	if spec.MaxGrowth == nil {
		return DefaultMaxGrowth
	}
	return *spec.MaxGrowth
}

// Ref returns the identity of the agent.
func (a *CellAgent) Ref() v1alpha1.CellRef {
	return a.ref
}

// Endpoint returns the protocol endpoint of the agent.
func (a *CellAgent) Endpoint() protocol.Endpoint {
	return protocol.CellEndpoint(a.ref)
}

// Load returns the current load.
func (a *CellAgent) Load() int {
	return a.currentLoad
}

// HandleMessage reacts to a message delivered to the agent.
// A PollRequest is answered with the load observed on receipt; the load grows afterwards.
// Anything else is logged and discarded.
func (a *CellAgent) HandleMessage(ctx context.Context, from protocol.Endpoint, msg protocol.Message) {
	logger := ctrl.LoggerFrom(ctx).WithValues("cell", a.ref.String())

	switch msg.(type) {
	case protocol.PollRequest, *protocol.PollRequest:
		observed := a.currentLoad
		logger.V(logging.DEBUG).Info("Received load request, sending reply", "load", observed)
		a.sender.Send(ctx, protocol.Envelope{
			From: a.Endpoint(),
			To:   from,
			Msg:  protocol.LoadReply{Load: observed},
		})
		if d := a.growth.Next(); observed > math.MaxInt-d {
			a.currentLoad = math.MaxInt
		} else {
			a.currentLoad = observed + d
		}
	default:
		kind := protocol.Kind("<nil>")
		if msg != nil {
			kind = msg.Kind()
		}
		logger.Info("Discarding unknown message", "kind", kind, "from", from.String())
	}
}

// NewFleet creates one agent per cell, in the given order, all replying through sender.
func NewFleet(ctx context.Context, cells []v1alpha1.CellRef, specFor func(v1alpha1.CellRef) v1alpha1.AgentSpec, sender protocol.Sender) ([]*CellAgent, error) {
	agents := make([]*CellAgent, 0, len(cells))
	for _, ref := range cells {
		a, err := New(ctx, ref, specFor(ref), sender, nil)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// Package protocol defines the messages exchanged between the resource controller and the
// cell agents. Message is a closed variant: only PollRequest and LoadReply implement it.
package protocol

import (
	"fmt"

	"github.com/hcran/rrh-channel-controller/api/v1alpha1"
)

// Kind names a message type in logs, metrics and events.
type Kind string

const (
	KindPollRequest Kind = "PollRequest"
	KindLoadReply   Kind = "LoadReply"
)

// Message is implemented by PollRequest and LoadReply only.
type Message interface {
	Kind() Kind
	isMessage()
}

// PollRequest asks a cell agent for its current load. It carries no payload.
type PollRequest struct{}

// Kind implements Message.
func (PollRequest) Kind() Kind { return KindPollRequest }
func (PollRequest) isMessage()  {}

// LoadReply carries the load a cell agent observed when the poll arrived.
type LoadReply struct {
	Load int `json:"load"`
}

// Kind implements Message.
func (LoadReply) Kind() Kind { return KindLoadReply }
func (LoadReply) isMessage()  {}

// Endpoint addresses either the controller or a cell agent.
type Endpoint struct {
	// Cell is the agent identity. Ignored when Controller is true.
	Cell v1alpha1.CellRef
	// Controller marks the resource controller endpoint.
	Controller bool
}

// ControllerEndpoint is the single controller endpoint.
var ControllerEndpoint = Endpoint{Controller: true}

// CellEndpoint returns the endpoint of a cell agent.
func CellEndpoint(ref v1alpha1.CellRef) Endpoint {
	return Endpoint{Cell: ref}
}

func (e Endpoint) String() string {
	if e.Controller {
		return "controller"
	}
	return e.Cell.String()
}

// Envelope is a message in flight between two endpoints.
type Envelope struct {
	From Endpoint
	To   Endpoint
	Msg  Message
}

func (e Envelope) String() string {
	kind := Kind("<nil>")
	if e.Msg != nil {
		kind = e.Msg.Kind()
	}
	return fmt.Sprintf("%s %s -> %s", kind, e.From, e.To)
}

package protocol

import (
	"errors"
	"fmt"
)

// ViolationReason classifies a ProtocolViolation.
type ViolationReason string

const (
	// ReasonUnknownKind is a message of a kind the receiver does not handle.
	ReasonUnknownKind ViolationReason = "UnknownKind"
	// ReasonUnknownSender is a reply from an endpoint outside the topology.
	ReasonUnknownSender ViolationReason = "UnknownSender"
	// ReasonReplyAfterCompletion is a reply received when no replies are outstanding.
	ReasonReplyAfterCompletion ViolationReason = "ReplyAfterCompletion"
	// ReasonNegativeLoad is a reply carrying a negative load.
	ReasonNegativeLoad ViolationReason = "NegativeLoad"
	// ReasonTimerWhilePolling is a poll timer firing while a round is still in progress.
	ReasonTimerWhilePolling ViolationReason = "TimerWhilePolling"
)

// ErrProtocolViolation is matched by every ProtocolViolation with errors.Is.
var ErrProtocolViolation = errors.New("protocol violation")

// ProtocolViolation describes a message or event that was discarded without changing state.
type ProtocolViolation struct {
	Reason ViolationReason
	From   Endpoint
	Kind   Kind
}

func (v *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s (kind=%s, from=%s)", v.Reason, v.Kind, v.From)
}

// Is reports ErrProtocolViolation as a match.
func (v *ProtocolViolation) Is(target error) bool {
	return target == ErrProtocolViolation
}

// NewViolation builds a ProtocolViolation for msg received from sender.
func NewViolation(reason ViolationReason, from Endpoint, msg Message) *ProtocolViolation {
	v := &ProtocolViolation{Reason: reason, From: from, Kind: "<nil>"}
	if msg != nil {
		v.Kind = msg.Kind()
	}
	return v
}

// ReasonOf extracts the violation reason from err, or "" if err is not a ProtocolViolation.
func ReasonOf(err error) ViolationReason {
	var v *ProtocolViolation
	if errors.As(err, &v) {
		return v.Reason
	}
	return ""
}

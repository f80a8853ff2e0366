package protocol

import "context"

// Sender delivers an envelope to its destination endpoint.
// Implementations must not deliver synchronously into the caller's handler;
// delivery happens as a separate event of the host.
type Sender interface {
	Send(ctx context.Context, env Envelope)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, env Envelope)

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, env Envelope) {
	f(ctx, env)
}

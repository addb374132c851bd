package push

import (
	"context"
	"fmt"
	"net"
)

// Dialer opens the encrypted stream to the gateway. Certificate loading and
// the handshake belong to the implementation.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (net.Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (net.Conn, error) { return f(ctx) }

// ConnectError is a failed attempt to open a generation. It is fatal to that
// attempt only; the client backs off and dials again.
type ConnectError struct {
	Attempt int
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect attempt %d: %v", e.Attempt, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

package zplbox

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// Default transport timeouts.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
)

// Transport delivers a finished label to a printer.
type Transport interface {
	Deliver(ctx context.Context, label *Label, ep Endpoint) error
}

// TCPTransport sends labels over a raw TCP connection: connect, write every
// byte, close. It never reads from the printer and never retries.
//
// The zero value is ready to use with the default timeouts.
type TCPTransport struct {
	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
	// WriteTimeout bounds writing the whole label.
	WriteTimeout time.Duration
}

// Deliver implements [Transport].
func (t *TCPTransport) Deliver(ctx context.Context, label *Label, ep Endpoint) error {
	if label == nil {
		return NewError(KindInvalidInput, "label is nil")
	}
	connectTimeout := t.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	writeTimeout := t.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	addr := ep.String()
	d := net.Dialer{Timeout: connectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return deliveryError(err, addr, "connecting to printer")
	}
	defer conn.Close()

	deadline := time.Now().Add(writeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return deliveryError(err, addr, "setting write deadline")
	}

	// Abort a blocked write when the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(label.Bytes()); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			err = ctxErr
		}
		return deliveryError(err, addr, "writing label")
	}
	if err := conn.Close(); err != nil {
		return deliveryError(err, addr, "closing connection")
	}
	return nil
}

// deliveryError classifies a transport error as a timeout or a failure.
func deliveryError(err error, addr, msg string) error {
	kind := KindDeliveryFailed
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		kind = KindDeliveryTimeout
	}
	return &Error{Kind: kind, Message: msg, Endpoint: addr, Cause: err}
}

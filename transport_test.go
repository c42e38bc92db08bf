package zplbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listenPrinter starts a fake printer that records everything sent to it.
func listenPrinter(t *testing.T) (Endpoint, <-chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		got <- data
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return Endpoint{Host: "127.0.0.1", Port: addr.Port}, got
}

func TestTCPTransport_Deliver(t *testing.T) {
	ep, got := listenPrinter(t)
	label := &Label{data: []byte("^XA^FO0,0^GFA,1,1,1,,^FS^XZ")}

	var tr TCPTransport
	require.NoError(t, tr.Deliver(context.Background(), label, ep))

	select {
	case data := <-got:
		assert.Equal(t, label.Bytes(), data)
	case <-time.After(5 * time.Second):
		t.Fatal("printer received nothing")
	}
}

func TestTCPTransport_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	tr := TCPTransport{ConnectTimeout: 2 * time.Second}
	ep := Endpoint{Host: "127.0.0.1", Port: port}

	start := time.Now()
	err = tr.Deliver(context.Background(), &Label{data: []byte("^XA^XZ")}, ep)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	var zerr *Error
	require.True(t, errors.As(err, &zerr))
	assert.Equal(t, KindDeliveryFailed, zerr.Kind)
	assert.Equal(t, fmt.Sprintf("127.0.0.1:%d", port), zerr.Endpoint)
	assert.NotNil(t, zerr.Cause)
}

func TestTCPTransport_WriteTimeout(t *testing.T) {
	// A printer that accepts but never reads fills the socket buffers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	conns := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conns <- conn
	}()
	t.Cleanup(func() {
		select {
		case conn := <-conns:
			conn.Close()
		default:
		}
	})

	tr := TCPTransport{ConnectTimeout: 2 * time.Second, WriteTimeout: 200 * time.Millisecond}
	ep := Endpoint{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}
	label := &Label{data: make([]byte, 64<<20)}

	start := time.Now()
	err = tr.Deliver(context.Background(), label, ep)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, KindDeliveryTimeout, KindOf(err))
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestTCPTransport_Canceled(t *testing.T) {
	ep, _ := listenPrinter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var tr TCPTransport
	err := tr.Deliver(ctx, &Label{data: []byte("^XA^XZ")}, ep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, KindDeliveryFailed, KindOf(err))
}

func TestTCPTransport_NilLabel(t *testing.T) {
	var tr TCPTransport
	err := tr.Deliver(context.Background(), nil, Endpoint{Host: "127.0.0.1", Port: 9100})
	assert.True(t, IsKind(err, KindInvalidInput))
}

func TestDeliveryError_Classification(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{context.DeadlineExceeded, KindDeliveryTimeout},
		{os.ErrDeadlineExceeded, KindDeliveryTimeout},
		{&net.OpError{Op: "dial", Err: os.ErrDeadlineExceeded}, KindDeliveryTimeout},
		{errors.New("connection reset by peer"), KindDeliveryFailed},
		{context.Canceled, KindDeliveryFailed},
	}
	for _, tt := range tests {
		err := deliveryError(tt.err, "printer:9100", "writing label")
		assert.Equal(t, tt.want, KindOf(err), "%v", tt.err)
		assert.ErrorIs(t, err, tt.err)
	}
}

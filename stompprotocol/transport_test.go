package stompprotocol

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPTransportFraming(t *testing.T) {
	client, server := net.Pipe()
	tr := newTCPTransport(client)
	defer tr.Close()

	go func() {
		// Heart-beat newlines before the second frame are skipped.
		server.Write([]byte("CONNECTED\nversion:1.2\n\n\n\x00\n\r\nRECEIPT\nreceipt-id:1\n\n\n\x00"))
	}()

	first, err := tr.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, "CONNECTED\nversion:1.2\n\n\n", first)

	second, err := tr.ReceiveFrame()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(second, "RECEIPT\n"))

	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		done <- string(buf[:n])
	}()
	require.NoError(t, tr.SendFrame("DISCONNECT\nreceipt:2\n\n\n"))
	assert.Equal(t, "DISCONNECT\nreceipt:2\n\n\n\x00", <-done)

	server.Close()
	_, err = tr.ReceiveFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTCPTransportCloseIsIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	tr := newTCPTransport(client)

	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())

	_, err := tr.ReceiveFrame()
	assert.Error(t, err)
}

func TestNetDialerTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("CONNECTED\n\n\n\x00"))
		conn.Close()
	}()

	tr, err := NetDialer{Timeout: time.Second}.Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer tr.Close()

	text, err := tr.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, "CONNECTED\n\n\n", text)
}

func TestNetDialerWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{Subprotocols: webSocketSubprotocols}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if strings.HasPrefix(string(data), "CONNECT\n") {
			conn.WriteMessage(websocket.TextMessage, []byte("CONNECTED\nversion:1.2\n\n\n\x00"))
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	addr := "ws" + strings.TrimPrefix(srv.URL, "http")
	tr, err := NetDialer{}.Dial(context.Background(), addr)
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.SendFrame(NewFrame(KindConnect, "", HeaderAcceptVersion, AcceptVersion).Encode()))

	text, err := tr.ReceiveFrame()
	require.NoError(t, err)
	f, err := DecodeFrame(text)
	require.NoError(t, err)
	assert.Equal(t, KindConnected, f.Kind)

	_, err = tr.ReceiveFrame()
	assert.ErrorIs(t, err, io.EOF)
}

type failingDialer struct {
	calls int
}

func (d *failingDialer) Dial(ctx context.Context, addr string) (Transport, error) {
	d.calls++
	return nil, errors.New("connection refused")
}

func TestBreakerDialerOpensAfterFailures(t *testing.T) {
	inner := &failingDialer{}
	d := NewBreakerDialer(inner, BreakerConfig{MaxFailures: 2, Timeout: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		_, err := d.Dial(context.Background(), "127.0.0.1:1")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, d.State())

	_, err := d.Dial(context.Background(), "127.0.0.1:1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "an open breaker must not dial")
}

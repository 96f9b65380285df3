package stompprotocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker/v2"
)

// Transport is a reliable, ordered frame channel to the broker. The
// transport owns the wire terminator: SendFrame appends it and ReceiveFrame
// strips it.
type Transport interface {
	// SendFrame writes one encoded frame.
	SendFrame(text string) error
	// ReceiveFrame blocks for the next frame. It returns an error wrapping
	// io.EOF when the broker closes the connection.
	ReceiveFrame() (string, error)
	// Close releases the connection and unblocks ReceiveFrame. It is safe to
	// call more than once.
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Transport, error)
}

// NetDialer dials plain TCP for "host:port" addresses and STOMP over
// WebSocket for ws:// and wss:// URLs.
type NetDialer struct {
	// Timeout bounds connection establishment. Zero means DialTimeout.
	Timeout time.Duration
}

// Dial implements Dialer.
func (d NetDialer) Dial(ctx context.Context, addr string) (Transport, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = DialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if isWebSocketAddr(addr) {
		return dialWebSocket(dialCtx, addr, timeout)
	}

	var nd net.Dialer
	conn, err := nd.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return newTCPTransport(conn), nil
}

// tcpTransport frames a byte stream with the NUL terminator.
type tcpTransport struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newTCPTransport(conn net.Conn) *tcpTransport {
	return &tcpTransport{conn: conn, reader: bufio.NewReader(conn)}
}

func (t *tcpTransport) SendFrame(text string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := io.WriteString(t.conn, text+string(FrameTerminator))
	return err
}

func (t *tcpTransport) ReceiveFrame() (string, error) {
	for {
		raw, err := t.reader.ReadString(FrameTerminator)
		if err != nil {
			return "", err
		}
		// Brokers may send heart-beat newlines between frames.
		text := strings.TrimLeft(strings.TrimSuffix(raw, string(FrameTerminator)), "\r\n")
		if text != "" {
			return text, nil
		}
	}
}

func (t *tcpTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// wsTransport carries one frame per WebSocket text message.
type wsTransport struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// webSocketSubprotocols are the STOMP subprotocols offered in the upgrade.
var webSocketSubprotocols = []string{"v12.stomp", "v11.stomp"}

func dialWebSocket(ctx context.Context, url string, timeout time.Duration) (*wsTransport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		Subprotocols:     webSocketSubprotocols,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) SendFrame(text string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, []byte(text+string(FrameTerminator)))
}

func (t *wsTransport) ReceiveFrame() (string, error) {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", fmt.Errorf("websocket closed: %w", io.EOF)
			}
			return "", err
		}
		text := strings.TrimLeft(strings.TrimSuffix(string(data), string(FrameTerminator)), "\r\n")
		if text != "" {
			return text, nil
		}
	}
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// Default breaker settings.
const (
	defaultBreakerFailures uint32 = 3
	defaultBreakerTimeout         = 30 * time.Second
)

// BreakerConfig configures BreakerDialer.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive dial failures that open the
	// breaker. Zero means 3.
	MaxFailures uint32
	// Timeout is how long the breaker stays open. Zero means 30s.
	Timeout time.Duration
}

// BreakerDialer wraps a Dialer with a circuit breaker so that logins against
// an unreachable broker fail fast once it has refused several dials in a row.
type BreakerDialer struct {
	inner   Dialer
	breaker *gobreaker.CircuitBreaker[Transport]
}

// NewBreakerDialer wraps inner.
func NewBreakerDialer(inner Dialer, cfg BreakerConfig, logger *slog.Logger) *BreakerDialer {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[Transport](gobreaker.Settings{
		Name:        "broker-dial",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &BreakerDialer{inner: inner, breaker: cb}
}

// Dial implements Dialer.
func (d *BreakerDialer) Dial(ctx context.Context, addr string) (Transport, error) {
	t, err := d.breaker.Execute(func() (Transport, error) {
		return d.inner.Dial(ctx, addr)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("broker %s unreachable: %w", addr, err)
	}
	return t, err
}

// State returns the breaker state for monitoring.
func (d *BreakerDialer) State() gobreaker.State {
	return d.breaker.State()
}

// Compile-time interface checks.
var (
	_ Transport = (*tcpTransport)(nil)
	_ Transport = (*wsTransport)(nil)
	_ Dialer    = NetDialer{}
	_ Dialer    = (*BreakerDialer)(nil)
)

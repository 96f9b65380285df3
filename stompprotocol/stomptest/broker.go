// Package stomptest provides an in-process broker for testing STOMP
// clients, in the spirit of net/http/httptest.
//
// A Broker listens on a loopback TCP port and speaks the NUL-terminated
// frame format. Each inbound frame is recorded and passed to a Handler,
// which answers through the Conn it was received on. Default implements a
// minimal topic broker: CONNECTED for every CONNECT, MESSAGE fan-out to
// subscribers, and RECEIPT for every receipted frame.
package stomptest

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stavmo/SPL-assignment3/stompprotocol"
)

// Handler handles one inbound frame.
type Handler func(c *Conn, f stompprotocol.Frame)

// Broker is a fake broker bound to a loopback address.
type Broker struct {
	// Addr is the "host:port" the broker listens on.
	Addr string

	listener net.Listener
	handler  Handler

	mu     sync.Mutex
	conns  []*Conn
	frames []stompprotocol.Frame

	nextMessageID atomic.Uint64

	wg sync.WaitGroup
}

// Conn is one client connection accepted by a Broker.
type Conn struct {
	broker *Broker
	conn   net.Conn

	writeMu sync.Mutex

	mu            sync.Mutex
	subscriptions map[string]string // destination -> subscription id
}

// NewBroker starts a broker that dispatches frames to handler, or to
// Default when handler is nil. The broker is stopped when the test ends.
func NewBroker(tb testing.TB, handler Handler) *Broker {
	tb.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("stomptest: failed to listen: %v", err)
	}
	if handler == nil {
		handler = Default
	}

	b := &Broker{
		Addr:     listener.Addr().String(),
		listener: listener,
		handler:  handler,
	}

	b.wg.Add(1)
	go b.acceptLoop()

	tb.Cleanup(b.Close)
	return b
}

func (b *Broker) acceptLoop() {
	defer b.wg.Done()

	for {
		nc, err := b.listener.Accept()
		if err != nil {
			return
		}

		c := &Conn{broker: b, conn: nc, subscriptions: make(map[string]string)}
		b.mu.Lock()
		b.conns = append(b.conns, c)
		b.mu.Unlock()

		b.wg.Add(1)
		go b.serve(c)
	}
}

func (b *Broker) serve(c *Conn) {
	defer b.wg.Done()
	defer b.drop(c)

	reader := bufio.NewReader(c.conn)
	for {
		raw, err := reader.ReadString(stompprotocol.FrameTerminator)
		if err != nil {
			return
		}
		text := strings.TrimLeft(strings.TrimSuffix(raw, string(stompprotocol.FrameTerminator)), "\r\n")
		if text == "" {
			continue
		}
		f, err := stompprotocol.DecodeFrame(text)
		if err != nil {
			continue
		}

		b.mu.Lock()
		b.frames = append(b.frames, f)
		b.mu.Unlock()

		b.handler(c, f)
	}
}

func (b *Broker) drop(c *Conn) {
	c.Close()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, other := range b.conns {
		if other == c {
			b.conns = append(b.conns[:i], b.conns[i+1:]...)
			return
		}
	}
}

// Frames returns a copy of every frame received so far, in arrival order.
func (b *Broker) Frames() []stompprotocol.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]stompprotocol.Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

// FramesOf returns the received frames of one kind.
func (b *Broker) FramesOf(kind stompprotocol.FrameKind) []stompprotocol.Frame {
	var out []stompprotocol.Frame
	for _, f := range b.Frames() {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Push sends f to every open connection.
func (b *Broker) Push(f stompprotocol.Frame) {
	for _, c := range b.snapshot() {
		c.Send(f)
	}
}

// CloseConns closes every open connection, leaving the listener running.
func (b *Broker) CloseConns() {
	for _, c := range b.snapshot() {
		c.Close()
	}
}

// Publish delivers body as a MESSAGE to every connection subscribed to
// destination.
func (b *Broker) Publish(destination, body string) {
	for _, c := range b.snapshot() {
		id, ok := c.Subscription(destination)
		if !ok {
			continue
		}
		c.Send(stompprotocol.NewFrame(stompprotocol.KindMessage, body,
			stompprotocol.HeaderSubscription, id,
			stompprotocol.HeaderMessageID, strconv.FormatUint(b.nextMessageID.Add(1), 10),
			stompprotocol.HeaderDestination, destination,
		))
	}
}

func (b *Broker) snapshot() []*Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Conn, len(b.conns))
	copy(out, b.conns)
	return out
}

// Close stops the listener, closes every connection and waits for the
// broker goroutines to exit.
func (b *Broker) Close() {
	b.listener.Close()
	b.CloseConns()
	b.wg.Wait()
}

// Send writes one frame to the client.
func (c *Conn) Send(f stompprotocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write([]byte(f.Encode() + string(stompprotocol.FrameTerminator)))
	return err
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Broker returns the broker that accepted the connection.
func (c *Conn) Broker() *Broker {
	return c.broker
}

// Subscription returns the subscription id this connection holds for
// destination.
func (c *Conn) Subscription(destination string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.subscriptions[destination]
	return id, ok
}

func (c *Conn) subscribe(destination, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[destination] = id
}

func (c *Conn) unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for dest, other := range c.subscriptions {
		if other == id {
			delete(c.subscriptions, dest)
		}
	}
}

// Receipt answers f with a RECEIPT if it asked for one.
func (c *Conn) Receipt(f stompprotocol.Frame) {
	if id := f.Header(stompprotocol.HeaderReceipt); id != "" {
		c.Send(stompprotocol.NewFrame(stompprotocol.KindReceipt, "", stompprotocol.HeaderReceiptID, id))
	}
}

// Default is a minimal topic broker.
func Default(c *Conn, f stompprotocol.Frame) {
	switch f.Kind {
	case stompprotocol.KindConnect:
		c.Send(stompprotocol.NewFrame(stompprotocol.KindConnected, "", "version", stompprotocol.AcceptVersion))
	case stompprotocol.KindSubscribe:
		c.subscribe(f.Header(stompprotocol.HeaderDestination), f.Header(stompprotocol.HeaderID))
		c.Receipt(f)
	case stompprotocol.KindUnsubscribe:
		c.unsubscribe(f.Header(stompprotocol.HeaderID))
		c.Receipt(f)
	case stompprotocol.KindSend:
		c.broker.Publish(f.Header(stompprotocol.HeaderDestination), f.Body)
		c.Receipt(f)
	case stompprotocol.KindDisconnect:
		c.Receipt(f)
		c.Close()
	}
}

// RejectLogin answers every CONNECT with an ERROR carrying reason and
// closes the connection. Other frames go to Default.
func RejectLogin(reason string) Handler {
	return func(c *Conn, f stompprotocol.Frame) {
		if f.Kind != stompprotocol.KindConnect {
			Default(c, f)
			return
		}
		c.Send(stompprotocol.NewFrame(stompprotocol.KindError, "", stompprotocol.HeaderMessage, reason))
		c.Close()
	}
}

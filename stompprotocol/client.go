package stompprotocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/stavmo/SPL-assignment3/gameevent"
)

const tracerName = "github.com/stavmo/SPL-assignment3/stompprotocol"

// EventStore receives every event carried by an inbound MESSAGE frame.
// Ingest is called from the receiver goroutine and must be safe for
// concurrent use with whatever else reads the store.
type EventStore interface {
	Ingest(game, user string, ev gameevent.Event)
}

// DisconnectHandler is called when the session ends on its own (the broker
// closed the connection, the transport failed or an ERROR frame arrived)
// and no command was waiting to receive that error. It runs on the
// receiver goroutine and must not call back into the Client.
type DisconnectHandler func(err error)

// Client is a game-events client for a STOMP broker.
//
// A Client runs two goroutines while connected: the caller's command
// goroutine, which issues Login, Join, Exit, Report and Logout, and a
// receiver goroutine that decodes inbound frames and dispatches them.
// Commands that need an acknowledgement (Login, each reported event,
// Logout) arm a one-shot reply slot before sending and block until the
// receiver resolves it. At most one such request is outstanding.
//
// Thread Safety:
// Command methods, Close included, must be called from a single goroutine.
// IsConnected, CurrentUser, Subscriptions and Abort may be called from
// anywhere.
type Client struct {
	mu sync.Mutex

	transport   Transport
	isConnected bool
	readerDone  chan struct{}
	// closing is set while the command goroutine tears the transport down,
	// so the receiver treats the resulting read error as expected.
	closing bool
	// sessionErr is the reason the receiver stopped on its own. A non-nil
	// value marks a session that the next command reaps.
	sessionErr error

	disconnectHandler DisconnectHandler

	// disconnecting is raised before DISCONNECT is sent; a read failure
	// while it is set counts as the receipt.
	disconnecting atomic.Bool

	handshake replySlot
	receipt   replySlot

	session *Session
	dialer  Dialer
	store   EventStore
	logger  *slog.Logger
	metrics *Metrics
	limiter *rate.Limiter
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithDialer sets the dialer used by Login. The default is NetDialer{}.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithEventStore sets the store fed by inbound MESSAGE frames.
func WithEventStore(store EventStore) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records protocol traffic into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithReportRate paces reported events to perSecond with the given burst.
// A non-positive rate leaves reports unpaced.
func WithReportRate(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTracer sets the tracer for command spans. The default comes from the
// global otel provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// NewClient creates a disconnected client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		session: NewSession(),
		dialer:  NetDialer{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// SetDisconnectHandler sets the callback for sessions that end on their own.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectHandler = handler
}

// IsConnected reports whether a session is established and still running.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected && c.sessionErr == nil && c.session.LoggedIn()
}

// CurrentUser returns the logged in user, or "".
func (c *Client) CurrentUser() string {
	return c.session.CurrentUser()
}

// Subscriptions returns the joined games, sorted.
func (c *Client) Subscriptions() []string {
	return c.session.Games()
}

// Login connects to the broker at addr and performs the CONNECT handshake.
// It blocks until the broker answers with CONNECTED or ERROR, or ctx is
// done. Any failure leaves the client disconnected; there is no retry.
func (c *Client) Login(ctx context.Context, addr, user, passcode string) (err error) {
	c.reap()

	c.mu.Lock()
	connected := c.isConnected
	c.mu.Unlock()
	if connected {
		return ErrAlreadyConnected
	}

	host, err := BrokerHost(addr)
	if err != nil {
		return err
	}

	ctx, span := c.tracer.Start(ctx, "stomp.login", trace.WithAttributes(
		attribute.String("stomp.broker", addr),
		attribute.String("stomp.user", user),
	))
	defer func() { endSpan(span, err) }()

	log := c.logger.With("attempt", ulid.Make().String(), "broker", addr, "user", user)
	log.Debug("dialing broker")

	t, err := c.dialer.Dial(ctx, addr)
	if err != nil {
		return NewConnectionError("could not connect to "+addr, err)
	}

	c.disconnecting.Store(false)
	waiter, err := c.handshake.arm(KindConnect.String())
	if err != nil {
		t.Close()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.transport = t
	c.isConnected = true
	c.readerDone = done
	c.sessionErr = nil
	c.mu.Unlock()

	go c.readerLoop(t, done)

	if err := c.send(c.session.BuildConnect(host, user, passcode)); err != nil {
		c.teardown()
		return err
	}

	if err := c.await(ctx, &c.handshake, waiter); err != nil {
		log.Info("login failed", "error", err)
		c.teardown()
		return err
	}

	c.session.SetLoggedIn(true, user)
	log.Info("logged in")
	return nil
}

// Join subscribes to a game's topic. It does not wait for the broker.
func (c *Client) Join(game string) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	if c.session.IsSubscribedTo(game) {
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, game)
	}

	f := c.session.BuildSubscribe(TopicFor(game))
	if err := c.send(f); err != nil {
		return err
	}
	c.session.AddSubscription(game, f.Header(HeaderID))
	return nil
}

// Exit unsubscribes from a game's topic. It does not wait for the broker.
func (c *Client) Exit(game string) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	id := c.session.SubscriptionIDFor(game)
	if id == "" {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, game)
	}

	if err := c.send(c.session.BuildUnsubscribe(id)); err != nil {
		return err
	}
	c.session.RemoveSubscription(game)
	return nil
}

// Report publishes each event of report to its game's topic, one at a time.
// Every SEND carries a fresh receipt and the next event is not sent until
// the broker acknowledged the previous one. filename is forwarded in the
// filename header when non-empty.
func (c *Client) Report(ctx context.Context, filename string, report gameevent.Report) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	if c.session.SubscriptionCount() == 0 {
		return ErrNoSubscriptions
	}
	game := report.GameName()
	if !c.session.IsSubscribedTo(game) {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, game)
	}

	user := c.session.CurrentUser()
	dest := TopicFor(game)
	for i, ev := range report.Events {
		if err := c.reportEvent(ctx, dest, filename, user, ev); err != nil {
			return fmt.Errorf("event %d (%s): %w", i+1, ev.Name, err)
		}
	}
	return nil
}

func (c *Client) reportEvent(ctx context.Context, dest, filename, user string, ev gameevent.Event) (err error) {
	ctx, span := c.tracer.Start(ctx, "stomp.report", trace.WithAttributes(
		attribute.String("stomp.destination", dest),
		attribute.String("game.event", ev.Name),
		attribute.Int("game.time", ev.Time),
	))
	defer func() { endSpan(span, err) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	receiptID := c.session.NextReceiptID()
	waiter, err := c.receipt.arm(receiptID)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := c.send(c.session.BuildSend(dest, ev.FormatBody(user), filename, receiptID)); err != nil {
		c.receipt.disarm()
		return err
	}
	if err := c.await(ctx, &c.receipt, waiter); err != nil {
		return err
	}
	c.metrics.observeReceiptWait(time.Since(start))
	return nil
}

// Logout unsubscribes from every game, sends DISCONNECT and waits for its
// receipt. A broker that closes the connection instead of answering also
// completes the logout. The client is disconnected afterwards whatever the
// outcome.
func (c *Client) Logout(ctx context.Context) (err error) {
	if err := c.requireSession(); err != nil {
		return err
	}

	ctx, span := c.tracer.Start(ctx, "stomp.logout", trace.WithAttributes(
		attribute.String("stomp.user", c.session.CurrentUser()),
	))
	defer func() { endSpan(span, err) }()
	defer c.teardown()

	c.disconnecting.Store(true)

	for _, game := range c.session.Games() {
		if err := c.send(c.session.BuildUnsubscribe(c.session.SubscriptionIDFor(game))); err != nil {
			return err
		}
	}
	c.session.ClearAll()

	receiptID := c.session.NextReceiptID()
	waiter, err := c.receipt.arm(receiptID)
	if err != nil {
		return err
	}
	if err := c.send(c.session.BuildDisconnect(receiptID)); err != nil {
		return err
	}
	if err := c.await(ctx, &c.receipt, waiter); err != nil {
		return err
	}

	c.logger.Info("logged out", "user", c.session.CurrentUser())
	return nil
}

// Close drops the connection without the DISCONNECT exchange. It is safe to
// call when not connected. Like the other commands it belongs to the command
// goroutine; use Abort from anywhere else.
func (c *Client) Close() {
	c.teardown()
}

// Abort closes the transport and waits for the receiver to stop. It may be
// called from any goroutine, such as a signal handler. The session is marked
// ended and the command goroutine resets it on its next command. The
// disconnect handler is not called.
func (c *Client) Abort() {
	c.mu.Lock()
	t := c.transport
	done := c.readerDone
	if t == nil {
		c.mu.Unlock()
		return
	}
	c.closing = true
	if c.sessionErr == nil {
		c.sessionErr = ErrSessionEnded
	}
	c.mu.Unlock()

	if err := t.Close(); err != nil {
		c.logger.Debug("transport close", "error", err)
	}
	if done != nil {
		<-done
	}
	c.logger.Info("connection aborted")
}

// requireSession reaps a session that ended on its own, then checks that
// one is active.
func (c *Client) requireSession() error {
	c.reap()
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) reap() {
	c.mu.Lock()
	ended := c.sessionErr != nil
	c.mu.Unlock()
	if ended {
		c.teardown()
	}
}

func (c *Client) send(f Frame) error {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return ErrNotConnected
	}

	if err := t.SendFrame(f.Encode()); err != nil {
		return NewConnectionError("failed to send "+f.Kind.String(), err)
	}
	c.metrics.frameSent(f.Kind)
	c.logger.Debug("frame sent", "frame", describeFrame(f))
	return nil
}

// await blocks until the waiter resolves, the receiver stops or ctx is
// done. On cancellation the slot is disarmed so a late reply is dropped.
func (c *Client) await(ctx context.Context, slot *replySlot, waiter <-chan error) error {
	c.mu.Lock()
	done := c.readerDone
	c.mu.Unlock()

	select {
	case err := <-waiter:
		return err
	case <-done:
		// The receiver resolves the slot before it exits, if it can.
		select {
		case err := <-waiter:
			return err
		default:
		}
		slot.disarm()
		if c.disconnecting.Load() {
			return nil
		}
		return ErrSessionEnded
	case <-ctx.Done():
		slot.disarm()
		return ctx.Err()
	}
}

// teardown closes the transport, joins the receiver and resets the session
// for the next login. The transport is closed before the join so that a
// broker that keeps the socket open cannot stall it.
func (c *Client) teardown() {
	c.mu.Lock()
	t := c.transport
	done := c.readerDone
	c.closing = true
	c.mu.Unlock()

	if t != nil {
		if err := t.Close(); err != nil {
			c.logger.Debug("transport close", "error", err)
		}
	}
	if done != nil {
		<-done
	}

	c.handshake.disarm()
	c.receipt.disarm()

	c.mu.Lock()
	c.transport = nil
	c.isConnected = false
	c.readerDone = nil
	c.closing = false
	c.sessionErr = nil
	c.mu.Unlock()

	c.session.ClearAll()
	c.session.SetLoggedIn(false, "")
	c.disconnecting.Store(false)
}

// readerLoop receives and dispatches frames until the transport fails or
// an ERROR frame ends the session.
func (c *Client) readerLoop(t Transport, done chan struct{}) {
	defer close(done)

	for {
		text, err := t.ReceiveFrame()
		if err != nil {
			c.handleReceiveError(err)
			return
		}

		f, err := DecodeFrame(text)
		if err != nil {
			c.metrics.malformedFrame()
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		c.metrics.frameReceived(f.Kind)

		if err := c.dispatch(f); err != nil {
			c.endSession(err)
			return
		}
	}
}

// dispatch handles one inbound frame. A non-nil error ends the session.
func (c *Client) dispatch(f Frame) error {
	switch f.Kind {
	case KindMessage:
		c.handleMessage(f)

	case KindReceipt:
		if !c.receipt.complete(f.Header(HeaderReceiptID), nil) {
			c.metrics.unmatchedReceipt()
		}

	case KindConnected:
		c.handshake.complete(KindConnect.String(), nil)

	case KindError:
		reason := f.Header(HeaderMessage)
		if reason == "" {
			reason = strings.TrimSpace(f.Body)
		}
		return &BrokerError{Reason: reason}

	default:
		c.logger.Debug("ignoring frame", "kind", f.Kind)
	}
	return nil
}

func (c *Client) handleMessage(f Frame) {
	if err := CheckMessageFrame(f); err != nil {
		c.logger.Debug("incomplete MESSAGE frame", "error", err)
	}
	dest := f.Header(HeaderDestination)
	if dest == "" {
		return
	}

	game := GameFromDestination(dest)
	user := gameevent.UserFromBody(f.Body, c.session.CurrentUser())
	if c.store != nil {
		c.store.Ingest(game, user, gameevent.ParseBody(f.Body))
	}
	c.metrics.eventIngested()
}

func (c *Client) handleReceiveError(err error) {
	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()
	if closing {
		return
	}

	if c.disconnecting.Load() {
		c.logger.Debug("connection closed during logout", "error", err)
		c.receipt.completeAny(nil)
		return
	}

	if errors.Is(err, io.EOF) {
		c.endSession(NewConnectionError("broker closed the connection", err))
		return
	}
	c.endSession(NewConnectionError("connection lost", err))
}

// endSession records why the receiver stopped and hands the error to a
// waiting command, or to the disconnect handler when nobody waits.
func (c *Client) endSession(err error) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.sessionErr = err
	handler := c.disconnectHandler
	c.mu.Unlock()

	c.logger.Warn("session ended", "error", err)

	delivered := c.handshake.completeAny(err)
	if c.receipt.completeAny(err) {
		delivered = true
	}
	if !delivered && handler != nil {
		handler(err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

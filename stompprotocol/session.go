package stompprotocol

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// Session is the client-side record of login identity, active subscriptions
// and id counters. It builds protocol-correct frames for each operation.
//
// The subscription table is changed only by the command goroutine. It is
// guarded by mu together with the login flag and user so that other
// goroutines can read it and a stray Close cannot corrupt it.
type Session struct {
	mu          sync.Mutex
	loggedIn    bool
	currentUser string

	subscriptions map[string]string

	// Counters hold the next value to hand out; both start at 1 and are
	// never reset, so ids are unique for the life of the Session.
	nextReceiptID      atomic.Uint64
	nextSubscriptionID atomic.Uint64
}

// NewSession creates an empty session.
func NewSession() *Session {
	s := &Session{subscriptions: make(map[string]string)}
	s.nextReceiptID.Store(1)
	s.nextSubscriptionID.Store(1)
	return s
}

// BuildConnect returns the CONNECT frame for a login attempt.
func (s *Session) BuildConnect(host, user, passcode string) Frame {
	return NewFrame(KindConnect, "",
		HeaderAcceptVersion, AcceptVersion,
		HeaderHost, host,
		HeaderLogin, user,
		HeaderPasscode, passcode,
	)
}

// BuildSend returns a SEND frame. The filename and receipt headers are only
// present when non-empty.
func (s *Session) BuildSend(destination, body, filename, receiptID string) Frame {
	f := NewFrame(KindSend, body, HeaderDestination, destination)
	if filename != "" {
		f.AddHeader(HeaderFilename, filename)
	}
	if receiptID != "" {
		f.AddHeader(HeaderReceipt, receiptID)
	}
	return f
}

// BuildSubscribe allocates a fresh subscription id and returns the
// SUBSCRIBE frame carrying it. The id is in the frame's id header.
func (s *Session) BuildSubscribe(destination string) Frame {
	return NewFrame(KindSubscribe, "",
		HeaderDestination, destination,
		HeaderID, s.NextSubscriptionID(),
	)
}

// BuildUnsubscribe returns the UNSUBSCRIBE frame for a subscription id.
func (s *Session) BuildUnsubscribe(subscriptionID string) Frame {
	return NewFrame(KindUnsubscribe, "", HeaderID, subscriptionID)
}

// BuildDisconnect returns the DISCONNECT frame asking for a receipt.
func (s *Session) BuildDisconnect(receiptID string) Frame {
	return NewFrame(KindDisconnect, "", HeaderReceipt, receiptID)
}

// AddSubscription records the subscription id for a game, replacing any
// previous one.
func (s *Session) AddSubscription(game, subscriptionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[game] = subscriptionID
}

// RemoveSubscription forgets a game. Unknown games are ignored.
func (s *Session) RemoveSubscription(game string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, game)
}

// IsSubscribedTo reports whether the game has an active subscription.
func (s *Session) IsSubscribedTo(game string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscriptions[game]
	return ok
}

// SubscriptionIDFor returns the subscription id for a game, or "".
func (s *Session) SubscriptionIDFor(game string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptions[game]
}

// SubscriptionCount returns the number of active subscriptions.
func (s *Session) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscriptions)
}

// Games returns the subscribed game names, sorted.
func (s *Session) Games() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	games := make([]string, 0, len(s.subscriptions))
	for g := range s.subscriptions {
		games = append(games, g)
	}
	sort.Strings(games)
	return games
}

// ClearAll drops every subscription.
func (s *Session) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.subscriptions)
}

// NextReceiptID returns the current receipt counter and advances it.
func (s *Session) NextReceiptID() string {
	return strconv.FormatUint(s.nextReceiptID.Add(1)-1, 10)
}

// NextSubscriptionID returns the current subscription counter and advances
// it.
func (s *Session) NextSubscriptionID() string {
	return strconv.FormatUint(s.nextSubscriptionID.Add(1)-1, 10)
}

// SetLoggedIn sets the login flag and the active user together. Logging out
// clears the user.
func (s *Session) SetLoggedIn(loggedIn bool, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = loggedIn
	if loggedIn {
		s.currentUser = user
	} else {
		s.currentUser = ""
	}
}

// LoggedIn reports the login flag.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// CurrentUser returns the active user, or "" when logged out.
func (s *Session) CurrentUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUser
}

// ValidateConnectResponse reports whether f can answer a CONNECT.
func ValidateConnectResponse(f Frame) bool {
	return f.Kind == KindConnected || f.Kind == KindError
}

// ValidateMessageFrame reports whether f is a MESSAGE with non-empty
// destination, subscription and message-id headers.
func ValidateMessageFrame(f Frame) bool {
	return CheckMessageFrame(f) == nil
}

// CheckMessageFrame is ValidateMessageFrame returning the reason.
func CheckMessageFrame(f Frame) error {
	if f.Kind != KindMessage {
		return &ProtocolError{Kind: f.Kind, Reason: "not a MESSAGE"}
	}
	for _, key := range []string{HeaderDestination, HeaderSubscription, HeaderMessageID} {
		if f.Header(key) == "" {
			return &ProtocolError{Kind: f.Kind, Reason: "missing " + key + " header"}
		}
	}
	return nil
}

// CheckConnectResponse is ValidateConnectResponse returning the reason.
func CheckConnectResponse(f Frame) error {
	if !ValidateConnectResponse(f) {
		return &ProtocolError{Kind: f.Kind, Reason: "expected CONNECTED or ERROR"}
	}
	return nil
}

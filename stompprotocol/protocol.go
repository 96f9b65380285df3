// Package stompprotocol implements the STOMP-style frame protocol spoken
// between the game-events client and the broker.
//
// Example Session:
//
//	CLI: CONNECT        accept-version:1.2 host:stomp.cs.bgu.ac.il login:alice passcode:films
//	SRV: CONNECTED      version:1.2
//	CLI: SUBSCRIBE      destination:/topic/Lions_Tigers id:1
//	CLI: SEND           destination:/topic/Lions_Tigers receipt:1
//	SRV: RECEIPT        receipt-id:1
//	SRV: MESSAGE        destination:/topic/Lions_Tigers subscription:1 message-id:7
//	CLI: DISCONNECT     receipt:2
//	SRV: RECEIPT        receipt-id:2
package stompprotocol

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Protocol constants.
const (
	// AcceptVersion is the protocol version offered in CONNECT.
	AcceptVersion = "1.2"

	// TopicPrefix is prepended to a game name to form its destination.
	TopicPrefix = "/topic/"

	// FrameTerminator delimits frames on the wire. Transports append and
	// strip it; encoded frame text never contains it.
	FrameTerminator = '\x00'

	// DialTimeout is the default timeout for establishing a transport.
	DialTimeout = 5 * time.Second
)

// Header keys consumed or produced by the client.
const (
	HeaderAcceptVersion = "accept-version"
	HeaderHost          = "host"
	HeaderLogin         = "login"
	HeaderPasscode      = "passcode"
	HeaderDestination   = "destination"
	HeaderID            = "id"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderSubscription  = "subscription"
	HeaderMessageID     = "message-id"
	HeaderMessage       = "message"
	HeaderFilename      = "filename"
)

// TopicFor returns the destination for a game.
func TopicFor(game string) string {
	return TopicPrefix + game
}

// GameFromDestination strips the topic prefix from a destination. A
// destination without the prefix is returned unchanged.
func GameFromDestination(dest string) string {
	return strings.TrimPrefix(dest, TopicPrefix)
}

// BrokerHost returns the host part of a broker address, which is what the
// CONNECT host header carries. Accepted forms are "host:port" and
// "ws://host:port/path" (or wss).
func BrokerHost(addr string) (string, error) {
	if isWebSocketAddr(addr) {
		u, err := url.Parse(addr)
		if err != nil || u.Hostname() == "" {
			return "", newInvalidAddressError(addr)
		}
		return u.Hostname(), nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil || host == "" || port == "" {
		return "", newInvalidAddressError(addr)
	}
	return host, nil
}

func isWebSocketAddr(addr string) bool {
	return strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://")
}

// describeFrame is used in log lines.
func describeFrame(f Frame) string {
	if id := f.Header(HeaderReceipt); id != "" {
		return fmt.Sprintf("%s receipt=%s", f.Kind, id)
	}
	return f.Kind.String()
}

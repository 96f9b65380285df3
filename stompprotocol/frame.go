package stompprotocol

import (
	"strings"
)

// FrameKind is the command line of a frame.
type FrameKind int

const (
	KindConnect FrameKind = iota
	KindConnected
	KindSend
	KindSubscribe
	KindUnsubscribe
	KindDisconnect
	KindMessage
	KindReceipt
	KindError
)

var kindNames = [...]string{
	KindConnect:     "CONNECT",
	KindConnected:   "CONNECTED",
	KindSend:        "SEND",
	KindSubscribe:   "SUBSCRIBE",
	KindUnsubscribe: "UNSUBSCRIBE",
	KindDisconnect:  "DISCONNECT",
	KindMessage:     "MESSAGE",
	KindReceipt:     "RECEIPT",
	KindError:       "ERROR",
}

// String returns the canonical wire name of the kind.
func (k FrameKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "UNKNOWN"
	}
	return kindNames[k]
}

// ParseFrameKind maps a canonical wire name back to its kind. Names are case
// sensitive.
func ParseFrameKind(name string) (FrameKind, error) {
	for k, n := range kindNames {
		if n == name {
			return FrameKind(k), nil
		}
	}
	return 0, newUnknownFrameError(name)
}

// Header is a single "key:value" frame header.
type Header struct {
	Key   string
	Value string
}

// Frame is one protocol message. Headers keep insertion order and may repeat
// a key; lookups return the first match.
type Frame struct {
	Kind    FrameKind
	Headers []Header
	Body    string
}

// NewFrame creates a frame from alternating key, value pairs. A trailing key
// without a value is ignored.
func NewFrame(kind FrameKind, body string, kv ...string) Frame {
	f := Frame{Kind: kind, Body: body}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers = append(f.Headers, Header{Key: kv[i], Value: kv[i+1]})
	}
	return f
}

// AddHeader appends a header.
func (f *Frame) AddHeader(key, value string) {
	f.Headers = append(f.Headers, Header{Key: key, Value: value})
}

// Lookup returns the value of the first header named key.
func (f Frame) Lookup(key string) (string, bool) {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// Header returns the value of the first header named key, or "".
func (f Frame) Header(key string) string {
	v, _ := f.Lookup(key)
	return v
}

// Encode renders the frame as wire text without the terminator: the kind
// line, one line per header, a blank line, the body and a newline.
func (f Frame) Encode() string {
	var b strings.Builder
	b.WriteString(f.Kind.String())
	b.WriteByte('\n')
	for _, h := range f.Headers {
		b.WriteString(h.Key)
		b.WriteByte(':')
		b.WriteString(h.Value)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(f.Body)
	b.WriteByte('\n')
	return b.String()
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	return f.Encode()
}

// DecodeFrame parses wire text. A trailing terminator is tolerated. The
// header section ends at the first empty line; header lines without a colon
// are dropped. The rest is the body, with at most one trailing newline
// removed. A frame whose kind line ends in CRLF is read with CRLF line
// endings throughout its header section. An unrecognized kind line returns a
// *ParseError matching ErrMalformedFrame.
func DecodeFrame(text string) (Frame, error) {
	text = strings.TrimSuffix(text, string(FrameTerminator))
	if text == "" {
		return Frame{}, &ParseError{Kind: ErrKindEmptyFrame}
	}

	kindLine, rest, _ := strings.Cut(text, "\n")
	crlf := strings.HasSuffix(kindLine, "\r")
	kind, err := ParseFrameKind(strings.TrimSuffix(kindLine, "\r"))
	if err != nil {
		return Frame{}, err
	}

	f := Frame{Kind: kind}
	for rest != "" {
		var line string
		line, rest, _ = strings.Cut(rest, "\n")
		if crlf {
			line = strings.TrimSuffix(line, "\r")
		}
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		f.Headers = append(f.Headers, Header{Key: key, Value: value})
	}

	if crlf && strings.HasSuffix(rest, "\r\n") {
		f.Body = strings.TrimSuffix(rest, "\r\n")
	} else {
		f.Body = strings.TrimSuffix(rest, "\n")
	}
	return f, nil
}

// Package stompprotocol provides the client side of the STOMP-style text
// protocol used to report and follow live game events through a broker.
//
// # Protocol Overview
//
// Every frame is a kind line, zero or more "key:value" header lines, a blank
// line and a body. Frames are delimited on the wire by a NUL byte, which the
// transport appends and strips; the codec never sees it.
//
//	SEND
//	destination:/topic/Lions_Tigers
//	receipt:3
//
//	user: alice
//	...
//	^@
//
// Header values are not escaped and a header line is split on its first
// colon only, so values may contain colons but never newlines.
//
// # Basic Usage
//
//	store := gamedb.New()
//	client := stompprotocol.NewClient(stompprotocol.WithEventStore(store))
//
//	if err := client.Login(ctx, "127.0.0.1:7777", "alice", "secret"); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Join("Lions_Tigers"); err != nil {
//	    log.Fatal(err)
//	}
//
//	report, _ := gameevent.LoadReportFile("events.json")
//	if err := client.Report(ctx, "events.json", report); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := client.Logout(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Concurrency Model
//
// A connected Client runs exactly two goroutines: the caller's command
// goroutine and a reader goroutine that decodes inbound frames. MESSAGE frames
// are handed to the EventStore from the reader goroutine. CONNECTED, RECEIPT
// and ERROR frames complete a single-occupancy reply slot armed by the command
// goroutine before it sends the matching request, so at most one correlated
// request is ever outstanding and a receipt id alone identifies its waiter.
//
// Client operations must be called from one goroutine at a time. Abort may be
// called from any goroutine, for example a signal handler; it stops the
// connection and leaves the reset to the next command.
package stompprotocol

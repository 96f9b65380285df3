// =============================================================================
// repl.go - REPL Loop
// =============================================================================
//
// The REPL is the client's command goroutine. It reads one command per line,
// runs it against the protocol client and prints the outcome. Everything the
// broker pushes (MESSAGE frames) is handled on the client's reader goroutine
// and lands in the game database, which "summary" reads from.
//
// User-facing results go to out and failures to errOut, one line each.
// Diagnostics go to the logger.
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/stavmo/SPL-assignment3/gamedb"
	"github.com/stavmo/SPL-assignment3/gameevent"
	"github.com/stavmo/SPL-assignment3/stompprotocol"
)

const (
	prompt = "> "

	// quitLogoutTimeout bounds the logout performed on quit and end of
	// input. An explicit "logout" waits as long as the broker needs.
	quitLogoutTimeout = 5 * time.Second
)

// lineReader is the input side of the REPL. LineEditor implements it.
type lineReader interface {
	GetLine(prompt string) (string, error)
}

// REPL runs commands read from a lineReader.
type REPL struct {
	client *stompprotocol.Client
	db     *gamedb.DB
	input  lineReader
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger

	// broker is used by "login {user} {password}".
	broker string
}

// NewREPL creates a REPL. A nil logger uses slog.Default.
func NewREPL(client *stompprotocol.Client, db *gamedb.DB, input lineReader, out, errOut io.Writer, broker string, logger *slog.Logger) *REPL {
	if logger == nil {
		logger = slog.Default()
	}
	return &REPL{
		client: client,
		db:     db,
		input:  input,
		out:    out,
		errOut: errOut,
		logger: logger,
		broker: broker,
	}
}

// Run reads and executes commands until "quit" or end of input, then logs
// out if a session is active. Read errors other than io.EOF are returned.
func (r *REPL) Run(ctx context.Context) error {
	defer r.shutdown(ctx)

	for {
		line, err := r.input.GetLine(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}

		cmd, ok, err := parseCommand(line)
		if err != nil {
			r.fail("%v", err)
			continue
		}
		if !ok {
			continue
		}
		if quit := r.execute(ctx, cmd); quit {
			return nil
		}
	}
}

// execute runs one command and reports whether the REPL should stop.
func (r *REPL) execute(ctx context.Context, cmd Command) bool {
	switch cmd.Kind {
	case CmdLogin:
		r.login(ctx, cmd)
	case CmdJoin:
		r.join(cmd.Game)
	case CmdExit:
		r.exit(cmd.Game)
	case CmdReport:
		r.report(ctx, cmd.File)
	case CmdSummary:
		r.summary(cmd.Game, cmd.User, cmd.File)
	case CmdLogout:
		r.logout(ctx)
	case CmdHelp:
		printHelp(r.out, cmd.Topic)
	case CmdQuit:
		return true
	}
	return false
}

func (r *REPL) login(ctx context.Context, cmd Command) {
	if r.client.IsConnected() {
		r.fail("The client is already logged in, log out before trying again")
		return
	}

	addr := cmd.Addr
	if addr == "" {
		addr = r.broker
	}
	if addr == "" {
		r.fail("%v", usageOf(CmdLogin))
		return
	}

	err := r.client.Login(ctx, addr, cmd.User, cmd.Password)

	var (
		parseErr  *stompprotocol.ParseError
		connErr   *stompprotocol.ConnectionError
		brokerErr *stompprotocol.BrokerError
	)
	switch {
	case err == nil:
		r.print("Login successful")
	case errors.Is(err, stompprotocol.ErrAlreadyConnected):
		r.fail("The client is already logged in, log out before trying again")
	case errors.As(err, &parseErr):
		r.fail("bad host:port")
	case errors.As(err, &brokerErr):
		r.fail("%s", brokerErr.Reason)
	case errors.As(err, &connErr):
		r.logger.Debug("login failed", "broker", addr, "error", err)
		r.fail("Could not connect to server")
	default:
		r.fail("%v", err)
	}
}

func (r *REPL) join(game string) {
	err := r.client.Join(game)
	switch {
	case err == nil:
		r.print("Joined channel %s", game)
	case errors.Is(err, stompprotocol.ErrAlreadySubscribed):
		r.fail("already subscribed to %s", game)
	default:
		r.commandFailed(err)
	}
}

func (r *REPL) exit(game string) {
	err := r.client.Exit(game)
	switch {
	case err == nil:
		r.print("Exited channel %s", game)
	case errors.Is(err, stompprotocol.ErrNotSubscribed):
		r.fail("not subscribed to %s", game)
	default:
		r.commandFailed(err)
	}
}

func (r *REPL) report(ctx context.Context, file string) {
	if !r.client.IsConnected() {
		r.fail("login first")
		return
	}
	// Checked before the file is read.
	if len(r.client.Subscriptions()) == 0 {
		r.fail("You must join a game before reporting.")
		return
	}

	report, err := gameevent.LoadReportFile(file)
	if err != nil {
		r.fail("%v", err)
		return
	}

	game := report.GameName()
	err = r.client.Report(ctx, file, report)
	switch {
	case err == nil:
		r.print("Sent reports to %s game", game)
	case errors.Is(err, stompprotocol.ErrNotSubscribed):
		r.fail("You must join %s before reporting.", game)
	case errors.Is(err, stompprotocol.ErrNoSubscriptions):
		r.fail("You must join a game before reporting.")
	default:
		r.commandFailed(err)
	}
}

func (r *REPL) summary(game, user, file string) {
	err := r.db.WriteSummaryFile(game, user, file)
	switch {
	case err == nil:
		r.print("wrote summary to %s", file)
	case errors.Is(err, gamedb.ErrNoSummary):
		r.fail("no info for game=%s user=%s", game, user)
	default:
		r.fail("%v", err)
	}
}

func (r *REPL) logout(ctx context.Context) {
	if err := r.client.Logout(ctx); err != nil {
		r.commandFailed(err)
		return
	}
	r.print("Disconnected")
}

// shutdown logs out of an active session with a bounded wait and drops the
// connection.
func (r *REPL) shutdown(ctx context.Context) {
	if r.client.IsConnected() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), quitLogoutTimeout)
		defer cancel()
		if err := r.client.Logout(ctx); err != nil {
			r.logger.Warn("logout on exit failed", "error", err)
		}
	}
	r.client.Close()
}

// commandFailed prints err for a command that needs a session.
func (r *REPL) commandFailed(err error) {
	var brokerErr *stompprotocol.BrokerError
	switch {
	case errors.Is(err, stompprotocol.ErrNotConnected):
		r.fail("login first")
	case errors.As(err, &brokerErr):
		r.fail("%s", brokerErr.Reason)
	default:
		r.fail("%v", err)
	}
}

func (r *REPL) print(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *REPL) fail(format string, args ...any) {
	fmt.Fprintf(r.errOut, format+"\n", args...)
}

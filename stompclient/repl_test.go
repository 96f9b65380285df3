// =============================================================================
// repl_test.go - Tests for the REPL (repl.go)
// =============================================================================
//
// These tests run the REPL against an in-process broker from stomptest. The
// REPL reads a fixed script through scriptedInput and writes into buffers,
// so every test sees exactly what a user would have seen on stdout and
// stderr.
//
// =============================================================================

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stavmo/SPL-assignment3/gamedb"
	"github.com/stavmo/SPL-assignment3/stompprotocol"
	"github.com/stavmo/SPL-assignment3/stompprotocol/stomptest"
)

// scriptedInput returns its lines one by one, then io.EOF.
type scriptedInput struct {
	lines []string
}

func (s *scriptedInput) GetLine(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

type replRun struct {
	db     *gamedb.DB
	client *stompprotocol.Client
	stdout string
	stderr string
}

// runREPL runs script through a fresh REPL and client and returns what was
// printed.
func runREPL(t *testing.T, broker string, script ...string) replRun {
	t.Helper()

	db := gamedb.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := stompprotocol.NewClient(
		stompprotocol.WithEventStore(db),
		stompprotocol.WithLogger(logger),
	)
	t.Cleanup(client.Close)

	var stdout, stderr bytes.Buffer
	repl := NewREPL(client, db, &scriptedInput{lines: script}, &stdout, &stderr, broker, logger)
	require.NoError(t, repl.Run(context.Background()))

	return replRun{db: db, client: client, stdout: stdout.String(), stderr: stderr.String()}
}

func outputLines(s string) []string {
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

const sampleReportJSON = `{
  "team a": "Lions",
  "team b": "Tigers",
  "events": [
    {
      "event name": "kickoff",
      "time": 0,
      "general game updates": {"active": true},
      "team a updates": {},
      "team b updates": {},
      "description": "And we're off!"
    },
    {
      "event name": "goal!!!!",
      "time": 1980,
      "general game updates": {},
      "team a updates": {"goals": "1"},
      "team b updates": {"goals": "0"},
      "description": "Lions score"
    }
  ]
}`

func writeReportFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleReportJSON), 0o600))
	return path
}

func TestREPLFullSession(t *testing.T) {
	b := stomptest.NewBroker(t, nil)
	report := writeReportFile(t)
	summary := filepath.Join(t.TempDir(), "summary.txt")

	run := runREPL(t, "",
		"login "+b.Addr+" meni films",
		"join Lions_Tigers",
		"report "+report,
		"summary Lions_Tigers meni "+summary,
		"exit Lions_Tigers",
		"logout",
		"quit",
	)

	assert.Empty(t, run.stderr)
	assert.Equal(t, []string{
		"Login successful",
		"Joined channel Lions_Tigers",
		"Sent reports to Lions_Tigers game",
		"wrote summary to " + summary,
		"Exited channel Lions_Tigers",
		"Disconnected",
	}, outputLines(run.stdout))

	data, err := os.ReadFile(summary)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "Lions vs Tigers\nGame stats:\n"))
	assert.Contains(t, text, "General stats:\nactive: true\n")
	assert.Contains(t, text, "Lions stats:\ngoals: 1\n")
	assert.Contains(t, text, "0 - kickoff:\nAnd we're off!\n")
	assert.Contains(t, text, "1980 - goal!!!!:\nLions score\n")

	sends := b.FramesOf(stompprotocol.KindSend)
	require.Len(t, sends, 2)
	assert.Equal(t, report, sends[0].Header(stompprotocol.HeaderFilename))
	assert.Equal(t, "/topic/Lions_Tigers", sends[1].Header(stompprotocol.HeaderDestination))
	assert.False(t, run.client.IsConnected())
}

func TestREPLLoginWithConfiguredBroker(t *testing.T) {
	b := stomptest.NewBroker(t, nil)

	run := runREPL(t, b.Addr, "login meni films")

	assert.Equal(t, "Login successful\n", run.stdout)
	connects := b.FramesOf(stompprotocol.KindConnect)
	require.Len(t, connects, 1)
	assert.Equal(t, "meni", connects[0].Header(stompprotocol.HeaderLogin))
}

func TestREPLLoginWithoutBroker(t *testing.T) {
	run := runREPL(t, "", "login meni films")
	assert.Equal(t, "usage: login {host:port} {username} {password}\n", run.stderr)
}

func TestREPLLoginTwice(t *testing.T) {
	b := stomptest.NewBroker(t, nil)

	run := runREPL(t, "",
		"login "+b.Addr+" meni films",
		"login "+b.Addr+" meni films",
	)

	assert.Equal(t, "Login successful\n", run.stdout)
	assert.Equal(t, "The client is already logged in, log out before trying again\n", run.stderr)
	assert.Len(t, b.FramesOf(stompprotocol.KindConnect), 1)
}

func TestREPLLoginFailures(t *testing.T) {
	rejecting := stomptest.NewBroker(t, stomptest.RejectLogin("Wrong password"))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedAddr := l.Addr().String()
	l.Close()

	tests := []struct {
		name string
		line string
		want string
	}{
		{"wrong password", "login " + rejecting.Addr + " meni wrong", "Wrong password"},
		{"bad address", "login localhost meni films", "bad host:port"},
		{"unreachable", "login " + closedAddr + " meni films", "Could not connect to server"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := runREPL(t, "", tt.line)
			assert.Empty(t, run.stdout)
			assert.Equal(t, tt.want+"\n", run.stderr)
			assert.False(t, run.client.IsConnected())
		})
	}
}

func TestREPLCommandsNeedLogin(t *testing.T) {
	run := runREPL(t, "",
		"join Lions_Tigers",
		"exit Lions_Tigers",
		"report events.json",
		"logout",
	)

	assert.Empty(t, run.stdout)
	assert.Equal(t, []string{"login first", "login first", "login first", "login first"}, outputLines(run.stderr))
}

func TestREPLReportPreconditions(t *testing.T) {
	b := stomptest.NewBroker(t, nil)
	report := writeReportFile(t)

	run := runREPL(t, "",
		"login "+b.Addr+" meni films",
		// The file does not exist; the join check comes first.
		"report /nonexistent/events.json",
		"join Other_Game",
		"report "+report,
	)

	assert.Equal(t, []string{
		"You must join a game before reporting.",
		"You must join Lions_Tigers before reporting.",
	}, outputLines(run.stderr))
	assert.Empty(t, b.FramesOf(stompprotocol.KindSend))
}

func TestREPLReportMissingFile(t *testing.T) {
	b := stomptest.NewBroker(t, nil)

	run := runREPL(t, "",
		"login "+b.Addr+" meni films",
		"join Lions_Tigers",
		"report /nonexistent/events.json",
	)

	assert.Contains(t, run.stderr, "open report file")
}

func TestREPLJoinExitErrors(t *testing.T) {
	b := stomptest.NewBroker(t, nil)

	run := runREPL(t, "",
		"login "+b.Addr+" meni films",
		"join Lions_Tigers",
		"join Lions_Tigers",
		"exit Other_Game",
	)

	assert.Equal(t, []string{
		"already subscribed to Lions_Tigers",
		"not subscribed to Other_Game",
	}, outputLines(run.stderr))
	assert.Len(t, b.FramesOf(stompprotocol.KindSubscribe), 1)
	assert.Len(t, b.FramesOf(stompprotocol.KindUnsubscribe), 1, "only the logout on exit unsubscribes")
}

func TestREPLSummaryOffline(t *testing.T) {
	out := filepath.Join(t.TempDir(), "summary.txt")

	run := runREPL(t, "", "summary Lions_Tigers meni "+out)

	assert.Equal(t, "no info for game=Lions_Tigers user=meni\n", run.stderr)
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestREPLEndOfInputLogsOut(t *testing.T) {
	b := stomptest.NewBroker(t, nil)

	run := runREPL(t, "",
		"login "+b.Addr+" meni films",
		"join Lions_Tigers",
	)

	assert.False(t, run.client.IsConnected())
	assert.Len(t, b.FramesOf(stompprotocol.KindUnsubscribe), 1)
	assert.Len(t, b.FramesOf(stompprotocol.KindDisconnect), 1)
}

func TestREPLQuitStopsReading(t *testing.T) {
	run := runREPL(t, "", "quit", "help")
	assert.Empty(t, run.stdout)
}

func TestREPLParseErrors(t *testing.T) {
	run := runREPL(t, "", "", "dance", "join")

	assert.Equal(t, []string{
		"unknown command: dance",
		"usage: join {game_name}",
	}, outputLines(run.stderr))
}

func TestREPLHelp(t *testing.T) {
	run := runREPL(t, "", "help", "help report", "help dance")

	assert.Contains(t, run.stdout, "Commands:\n")
	assert.Contains(t, run.stdout, "report {file}\n    Read a JSON report file")
	assert.Contains(t, run.stdout, "No help for 'dance'")
}

func TestREPLBrokerErrorEndsSession(t *testing.T) {
	b := stomptest.NewBroker(t, nil)

	db := gamedb.New()
	client := stompprotocol.NewClient(stompprotocol.WithEventStore(db))
	t.Cleanup(client.Close)
	ended := make(chan error, 1)
	client.SetDisconnectHandler(func(err error) { ended <- err })

	require.NoError(t, client.Login(context.Background(), b.Addr, "meni", "films"))
	b.Push(stompprotocol.NewFrame(stompprotocol.KindError, "", stompprotocol.HeaderMessage, "kicked"))
	<-ended

	var stdout, stderr bytes.Buffer
	input := &scriptedInput{lines: []string{"join Lions_Tigers", "login " + b.Addr + " meni films"}}
	repl := NewREPL(client, db, input, &stdout, &stderr, "", nil)
	require.NoError(t, repl.Run(context.Background()))

	assert.Equal(t, "login first\n", stderr.String())
	assert.Equal(t, "Login successful\n", stdout.String())
}

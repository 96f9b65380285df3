// =============================================================================
// command_test.go - Tests for REPL Command Parsing (command.go)
// =============================================================================

package main

import (
	"errors"
	"testing"
)

// TestParseCommand covers every command in its accepted forms.
//
// GO CONCEPT: Table-Driven Tests
// ------------------------------
// Each row is one input line and the Command it should produce. t.Run gives
// every row its own name in the test output, so a failure points straight
// at the offending line.
func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"login 127.0.0.1:7777 meni films", Command{Kind: CmdLogin, Addr: "127.0.0.1:7777", User: "meni", Password: "films"}},
		{"login meni films", Command{Kind: CmdLogin, User: "meni", Password: "films"}},
		{"login ws://localhost:7777/ws meni films", Command{Kind: CmdLogin, Addr: "ws://localhost:7777/ws", User: "meni", Password: "films"}},
		{"join germany_japan", Command{Kind: CmdJoin, Game: "germany_japan"}},
		{"exit germany_japan", Command{Kind: CmdExit, Game: "germany_japan"}},
		{"report data/events1.json", Command{Kind: CmdReport, File: "data/events1.json"}},
		{"summary germany_japan meni out.txt", Command{Kind: CmdSummary, Game: "germany_japan", User: "meni", File: "out.txt"}},
		{"logout", Command{Kind: CmdLogout}},
		{"help", Command{Kind: CmdHelp}},
		{"help REPORT", Command{Kind: CmdHelp, Topic: "report"}},
		{"quit", Command{Kind: CmdQuit}},
		{"  JOIN   a_b  ", Command{Kind: CmdJoin, Game: "a_b"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok, err := parseCommand(tt.line)
			if err != nil {
				t.Fatalf("parseCommand(%q) error: %v", tt.line, err)
			}
			if !ok {
				t.Fatalf("parseCommand(%q) ok = false", tt.line)
			}
			if got != tt.want {
				t.Errorf("parseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

// TestParseCommandBlankLine verifies that blank input is skipped quietly.
func TestParseCommandBlankLine(t *testing.T) {
	for _, line := range []string{"", "   ", "\t"} {
		_, ok, err := parseCommand(line)
		if err != nil || ok {
			t.Errorf("parseCommand(%q) = ok %v, err %v; want ok false, no error", line, ok, err)
		}
	}
}

// TestParseCommandUsageErrors verifies wrong argument counts.
func TestParseCommandUsageErrors(t *testing.T) {
	tests := []struct {
		line  string
		usage string
	}{
		{"login", "login {host:port} {username} {password}"},
		{"login meni", "login {host:port} {username} {password}"},
		{"login a b c d", "login {host:port} {username} {password}"},
		{"join", "join {game_name}"},
		{"join a b", "join {game_name}"},
		{"exit", "exit {game_name}"},
		{"report", "report {file}"},
		{"summary g u", "summary {game_name} {user} {file}"},
		{"logout now", "logout"},
		{"help a b", "help [command]"},
		{"quit please", "quit"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, ok, err := parseCommand(tt.line)
			if ok {
				t.Fatalf("parseCommand(%q) ok = true, want false", tt.line)
			}
			var ue *UsageError
			if !errors.As(err, &ue) {
				t.Fatalf("parseCommand(%q) error = %v, want *UsageError", tt.line, err)
			}
			if ue.Usage != tt.usage {
				t.Errorf("usage = %q, want %q", ue.Usage, tt.usage)
			}
			if err.Error() != "usage: "+tt.usage {
				t.Errorf("Error() = %q", err.Error())
			}
		})
	}
}

// TestParseCommandUnknown verifies that unknown command words are reported
// by name.
func TestParseCommandUnknown(t *testing.T) {
	_, ok, err := parseCommand("subscribe a_b")
	if ok {
		t.Fatal("ok = true for unknown command")
	}
	var uce *UnknownCommandError
	if !errors.As(err, &uce) {
		t.Fatalf("error = %v, want *UnknownCommandError", err)
	}
	if got, want := err.Error(), "unknown command: subscribe"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// TestEveryCommandHasUsageAndHelp keeps the lookup tables in sync.
func TestEveryCommandHasUsageAndHelp(t *testing.T) {
	for name, kind := range commandNames {
		if commandUsage[kind] == "" {
			t.Errorf("command %q has no usage line", name)
		}
		if commandHelp[name] == "" {
			t.Errorf("command %q has no help text", name)
		}
	}
}

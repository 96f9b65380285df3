// =============================================================================
// command.go - REPL Command Parsing
// =============================================================================
//
// The REPL accepts one command per line. The first word selects the command
// and the remaining words are its arguments:
//
//   login {host:port} {username} {password}
//   login {username} {password}              (uses the configured broker)
//   join {game_name}
//   exit {game_name}
//   report {file}
//   summary {game_name} {user} {file}
//   logout
//   help [command]
//   quit
//
// Parsing is purely syntactic. Whether a command is allowed right now (for
// example "join" while logged out) is decided by the REPL.
//
// =============================================================================

package main

import "strings"

// CommandKind identifies a REPL command.
type CommandKind int

const (
	CmdLogin CommandKind = iota
	CmdJoin
	CmdExit
	CmdReport
	CmdSummary
	CmdLogout
	CmdHelp
	CmdQuit
)

var commandNames = map[string]CommandKind{
	"login":   CmdLogin,
	"join":    CmdJoin,
	"exit":    CmdExit,
	"report":  CmdReport,
	"summary": CmdSummary,
	"logout":  CmdLogout,
	"help":    CmdHelp,
	"quit":    CmdQuit,
}

// commandUsage holds the one-line usage shown for malformed commands.
var commandUsage = map[CommandKind]string{
	CmdLogin:   "login {host:port} {username} {password}",
	CmdJoin:    "join {game_name}",
	CmdExit:    "exit {game_name}",
	CmdReport:  "report {file}",
	CmdSummary: "summary {game_name} {user} {file}",
	CmdLogout:  "logout",
	CmdHelp:    "help [command]",
	CmdQuit:    "quit",
}

// Command is one parsed REPL line.
//
// Only the fields relevant to Kind are set. For "login" without an address
// Addr is empty and the REPL falls back to the configured broker.
type Command struct {
	Kind     CommandKind
	Addr     string
	User     string
	Password string
	Game     string
	File     string
	Topic    string
}

// UsageError reports a command with the wrong number of arguments.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "usage: " + e.Usage
}

// UnknownCommandError reports a command word the REPL does not know.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return "unknown command: " + e.Name
}

// GO CONCEPT: Multiple Return Values with a Zero Value
// ---------------------------------------------------
// parseCommand returns (Command, bool, error). On failure the Command is the
// zero value and callers look at the error first. An empty line is not an
// error; it reports ok=false so the REPL can simply re-prompt.

// parseCommand parses one input line.
func parseCommand(line string) (cmd Command, ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, false, nil
	}

	name := strings.ToLower(fields[0])
	args := fields[1:]

	kind, known := commandNames[name]
	if !known {
		return Command{}, false, &UnknownCommandError{Name: fields[0]}
	}

	cmd = Command{Kind: kind}
	switch kind {
	case CmdLogin:
		err = parseLogin(&cmd, args)
	case CmdJoin, CmdExit:
		if err = expectArgs(kind, args, 1); err == nil {
			cmd.Game = args[0]
		}
	case CmdReport:
		if err = expectArgs(kind, args, 1); err == nil {
			cmd.File = args[0]
		}
	case CmdSummary:
		if err = expectArgs(kind, args, 3); err == nil {
			cmd.Game, cmd.User, cmd.File = args[0], args[1], args[2]
		}
	case CmdHelp:
		if len(args) > 1 {
			err = usageOf(kind)
		} else if len(args) == 1 {
			cmd.Topic = strings.ToLower(args[0])
		}
	case CmdLogout, CmdQuit:
		err = expectArgs(kind, args, 0)
	}
	if err != nil {
		return Command{}, false, err
	}
	return cmd, true, nil
}

func parseLogin(cmd *Command, args []string) error {
	switch len(args) {
	case 3:
		cmd.Addr, cmd.User, cmd.Password = args[0], args[1], args[2]
	case 2:
		cmd.User, cmd.Password = args[0], args[1]
	default:
		return usageOf(CmdLogin)
	}
	return nil
}

func expectArgs(kind CommandKind, args []string, n int) error {
	if len(args) != n {
		return usageOf(kind)
	}
	return nil
}

func usageOf(kind CommandKind) error {
	return &UsageError{Usage: commandUsage[kind]}
}

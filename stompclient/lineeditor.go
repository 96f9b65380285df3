// =============================================================================
// lineeditor.go - Command Input
// =============================================================================
//
// Commands are read through a LineEditor in one of two modes, chosen once at
// startup:
//
//   - Terminal mode: ergochat/readline with history, Ctrl-R search and tab
//     completion of command words, joined games, reporting users and
//     report files.
//   - Plain mode: lines read from a bufio.Reader with the prompt printed by
//     hand. Used for scripts, pipes, Emacs shells and --plain.
//
// Login lines carry a password, so only their address and user part is
// written to the history file.
//
// =============================================================================

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const (
	// historyFileName is the default history file in the home directory.
	historyFileName = ".stomp_history"

	// historySize is the maximum number of history entries kept.
	historySize = 500
)

// EditorConfig selects how commands are read.
type EditorConfig struct {
	// Plain disables terminal mode even on a terminal.
	Plain bool

	// HistoryFile persists terminal-mode history. Empty keeps history in
	// memory only.
	HistoryFile string

	// Completer drives tab completion in terminal mode.
	Completer *readline.PrefixCompleter

	// In and Out replace stdin and stdout. Setting In forces plain mode.
	In  io.Reader
	Out io.Writer
}

// LineEditor reads REPL commands.
type LineEditor struct {
	// rl is set in terminal mode only.
	rl        *readline.Instance
	closeOnce sync.Once

	in  *bufio.Reader
	out io.Writer
}

// NewLineEditor creates a LineEditor. If readline cannot take over the
// terminal the editor falls back to plain mode with a warning.
func NewLineEditor(cfg EditorConfig) *LineEditor {
	in, out := cfg.In, cfg.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	le := &LineEditor{in: bufio.NewReader(in), out: out}

	if !wantsTerminal(cfg) {
		return le
	}

	rlCfg := &readline.Config{
		HistoryFile:            cfg.HistoryFile,
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
	}
	if cfg.Completer != nil {
		rlCfg.AutoComplete = cfg.Completer
	}
	rl, err := readline.NewFromConfig(rlCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: line editing unavailable (%v), reading plain input\n", err)
		return le
	}
	le.rl = rl
	return le
}

// wantsTerminal reports whether readline should drive stdin. Emacs shells
// echo input themselves, so they get plain mode.
func wantsTerminal(cfg EditorConfig) bool {
	return !cfg.Plain &&
		cfg.In == nil &&
		term.IsTerminal(int(os.Stdin.Fd())) &&
		os.Getenv("INSIDE_EMACS") == ""
}

// defaultHistoryPath returns ~/.stomp_history, or "" without a home
// directory.
func defaultHistoryPath() string {
	home := homeDir()
	if home == "" {
		return ""
	}
	return filepath.Join(home, historyFileName)
}

// GetLine shows prompt and reads one line without its line ending. It
// returns io.EOF at the end of input, on Ctrl-D and on Ctrl-C.
func (le *LineEditor) GetLine(prompt string) (string, error) {
	if le.rl != nil {
		return le.readTerminal(prompt)
	}
	return le.readPlain(prompt)
}

func (le *LineEditor) readTerminal(prompt string) (string, error) {
	le.rl.SetPrompt(prompt)
	line, err := le.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}

	if entry := historyEntry(line); entry != "" {
		if err := le.rl.SaveToHistory(entry); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: history not saved: %v\n", err)
		}
	}
	return line, nil
}

// readPlain returns a final line that lacks a newline as a normal line and
// reports io.EOF on the next call.
func (le *LineEditor) readPlain(prompt string) (string, error) {
	fmt.Fprint(le.out, prompt)

	line, err := le.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// historyEntry returns what is recorded for line. Blank lines are not
// recorded, and a login keeps everything but its trailing password.
func historyEntry(line string) string {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	if strings.EqualFold(fields[0], "login") && len(fields) >= 3 {
		return strings.Join(fields[:len(fields)-1], " ")
	}
	return line
}

// Close flushes history and releases the terminal. A GetLine blocked in
// terminal mode returns io.EOF. Close may be called more than once and from
// any goroutine.
func (le *LineEditor) Close() {
	le.closeOnce.Do(func() {
		if le.rl != nil {
			le.rl.Close()
		}
	})
}

// IsInteractive reports whether readline is in use.
func (le *LineEditor) IsInteractive() bool {
	return le.rl != nil
}

// Package gamedb aggregates reported game events per game and per reporting
// user, and renders the per-user summary report.
package gamedb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sort"
	"sync"

	"github.com/stavmo/SPL-assignment3/gameevent"
)

// ErrNoSummary is returned when nothing was ingested for a (game, user)
// pair.
var ErrNoSummary = errors.New("no events for this game and user")

// EventLine is one entry of the event log kept for a summary.
type EventLine struct {
	Time        int
	Name        string
	Description string
}

// Summary is everything known about one game as reported by one user. Stat
// maps hold the latest value reported for each key.
type Summary struct {
	TeamA        string
	TeamB        string
	GeneralStats map[string]string
	TeamAStats   map[string]string
	TeamBStats   map[string]string
	Events       []EventLine
}

func newSummary() *Summary {
	return &Summary{
		GeneralStats: make(map[string]string),
		TeamAStats:   make(map[string]string),
		TeamBStats:   make(map[string]string),
	}
}

func (s *Summary) clone() Summary {
	return Summary{
		TeamA:        s.TeamA,
		TeamB:        s.TeamB,
		GeneralStats: maps.Clone(s.GeneralStats),
		TeamAStats:   maps.Clone(s.TeamAStats),
		TeamBStats:   maps.Clone(s.TeamBStats),
		Events:       slices.Clone(s.Events),
	}
}

type key struct {
	game string
	user string
}

// DB is an in-memory, concurrency-safe event store.
type DB struct {
	mu        sync.Mutex
	summaries map[key]*Summary
}

// New creates an empty DB.
func New() *DB {
	return &DB{summaries: make(map[key]*Summary)}
}

// Ingest merges ev into the summary for (game, user). The first event fixes
// the team names; stat keys are overwritten by later reports and events are
// appended in arrival order.
func (db *DB) Ingest(game, user string, ev gameevent.Event) {
	db.mu.Lock()
	defer db.mu.Unlock()

	k := key{game: game, user: user}
	s, ok := db.summaries[k]
	if !ok {
		s = newSummary()
		db.summaries[k] = s
	}
	if s.TeamA == "" && s.TeamB == "" {
		s.TeamA = ev.TeamA
		s.TeamB = ev.TeamB
	}

	maps.Copy(s.GeneralStats, ev.GeneralUpdates)
	maps.Copy(s.TeamAStats, ev.TeamAUpdates)
	maps.Copy(s.TeamBStats, ev.TeamBUpdates)

	s.Events = append(s.Events, EventLine{Time: ev.Time, Name: ev.Name, Description: ev.Description})
}

// Summary returns a copy of the summary for (game, user).
func (db *DB) Summary(game, user string) (Summary, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	s, ok := db.summaries[key{game: game, user: user}]
	if !ok {
		return Summary{}, false
	}
	return s.clone(), true
}

// Users returns the users that reported on game, sorted.
func (db *DB) Users(game string) []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	var users []string
	for k := range db.summaries {
		if k.game == game {
			users = append(users, k.user)
		}
	}
	sort.Strings(users)
	return users
}

// WriteSummary renders the summary for (game, user) to w. Events are
// listed by game time; events reported for the same time keep their
// arrival order.
func (db *DB) WriteSummary(w io.Writer, game, user string) error {
	s, ok := db.Summary(game, user)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNoSummary, game, user)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s vs %s\n", s.TeamA, s.TeamB)
	fmt.Fprintln(bw, "Game stats:")
	writeStats(bw, "General stats:", s.GeneralStats)
	writeStats(bw, s.TeamA+" stats:", s.TeamAStats)
	writeStats(bw, s.TeamB+" stats:", s.TeamBStats)

	fmt.Fprintln(bw, "Game event reports:")
	events := s.Events
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time < events[j].Time })
	for _, e := range events {
		fmt.Fprintf(bw, "%d - %s:\n%s\n\n", e.Time, e.Name, e.Description)
	}
	return bw.Flush()
}

func writeStats(w io.Writer, title string, stats map[string]string) {
	fmt.Fprintln(w, title)
	for _, k := range slices.Sorted(maps.Keys(stats)) {
		fmt.Fprintf(w, "%s: %s\n", k, stats[k])
	}
	fmt.Fprintln(w)
}

// WriteSummaryFile writes the summary for (game, user) to path, replacing
// any existing file. Nothing is written when there is no summary.
func (db *DB) WriteSummaryFile(game, user, path string) error {
	if _, ok := db.Summary(game, user); !ok {
		return fmt.Errorf("%w: %s/%s", ErrNoSummary, game, user)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	if err := db.WriteSummary(f, game, user); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package gamedb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestArchive(t *testing.T, path string) *Archive {
	t.Helper()
	a, err := OpenArchive(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchiveReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	a := openTestArchive(t, path)

	a.Ingest("Germany_Japan", "alice", event("kickoff", 0,
		map[string]string{"active": "true"}, map[string]string{"goals": "0"}))
	a.Ingest("Germany_Japan", "alice", event("goal", 1980,
		nil, map[string]string{"goals": "1"}))
	a.Ingest("Germany_Japan", "bob", event("kickoff", 0, nil, nil))
	require.NoError(t, a.Close())

	reopened := openTestArchive(t, path)
	db := New()
	n, err := reopened.Replay(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	s, ok := db.Summary("Germany_Japan", "alice")
	require.True(t, ok)
	assert.Equal(t, "Germany", s.TeamA)
	assert.Equal(t, map[string]string{"active": "true"}, s.GeneralStats)
	assert.Equal(t, map[string]string{"goals": "1"}, s.TeamAStats)
	require.Len(t, s.Events, 2)
	assert.Equal(t, "kickoff", s.Events[0].Name)
	assert.Equal(t, "goal", s.Events[1].Name)
	assert.Equal(t, "goal description", s.Events[1].Description)

	assert.Equal(t, []string{"alice", "bob"}, db.Users("Germany_Japan"))
}

func TestArchiveEmptyReplay(t *testing.T) {
	a := openTestArchive(t, filepath.Join(t.TempDir(), "empty.db"))
	n, err := a.Replay(context.Background(), New())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestArchiveWithFanout(t *testing.T) {
	a := openTestArchive(t, filepath.Join(t.TempDir(), "events.db"))
	live := New()
	f := NewFanout(live, a)

	f.Ingest("g", "u", event("a", 1, nil, nil))

	_, ok := live.Summary("g", "u")
	assert.True(t, ok)

	replayed := New()
	n, err := a.Replay(context.Background(), replayed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenArchiveBadPath(t *testing.T) {
	_, err := OpenArchive(filepath.Join(t.TempDir(), "missing", "dir", "events.db"), nil)
	assert.Error(t, err)
}

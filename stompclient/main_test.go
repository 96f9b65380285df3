package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stavmo/SPL-assignment3/gamedb"
	"github.com/stavmo/SPL-assignment3/gameevent"
)

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"short", []string{"version", "--short"}, version + "\n"},
		{"full", []string{"version"}, appName + " v" + version + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := newRootCmd()
			cmd.SetOut(&out)
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestRootRejectsArguments(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"unexpected"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}

func parseRootFlags(t *testing.T, args ...string) (*cobra.Command, *rootOptions) {
	t.Helper()
	opts := &rootOptions{}
	cmd := &cobra.Command{Use: appName}
	bindRootFlags(cmd.Flags(), opts)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, opts
}

func TestLoadRunConfigFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "broker: file:1\nlogger:\n  level: info\narchive:\n  path: file.db\n")
	t.Setenv("STOMP_METRICS_ADDR", "127.0.0.1:9000")

	cmd, opts := parseRootFlags(t,
		"--config", path,
		"--broker", "flag:2",
		"--log-level", "debug",
		"--plain",
	)

	cfg, err := loadRunConfig(cmd, opts)
	require.NoError(t, err)
	assert.Equal(t, "flag:2", cfg.Broker)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "file.db", cfg.Archive.Path, "unset flags keep the file value")
	assert.Equal(t, "127.0.0.1:9000", cfg.Metrics.Addr, "unset flags keep the env value")
	assert.True(t, opts.plain)
}

func TestLoadRunConfigValidates(t *testing.T) {
	cmd, opts := parseRootFlags(t,
		"--config", filepath.Join(t.TempDir(), "absent.yaml"),
		"--log-level", "chatty",
	)

	_, err := loadRunConfig(cmd, opts)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestOpenArchiveReplaysIntoDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	first, err := gamedb.OpenArchive(path, logger)
	require.NoError(t, err)
	first.Ingest("Lions_Tigers", "meni", gameevent.Event{
		TeamA: "Lions", TeamB: "Tigers", Name: "kickoff",
		TeamAUpdates: map[string]string{"goals": "0"},
	})
	require.NoError(t, first.Close())

	db := gamedb.New()
	archive, err := openArchive(ctx, path, db, logger)
	require.NoError(t, err)
	defer archive.Close()

	s, ok := db.Summary("Lions_Tigers", "meni")
	require.True(t, ok)
	assert.Equal(t, "0", s.TeamAStats["goals"])
	require.Len(t, s.Events, 1)
	assert.Equal(t, "kickoff", s.Events[0].Name)
}

func TestShutdownStepsRunOnceNewestFirst(t *testing.T) {
	var order []string
	steps := &shutdownSteps{}
	steps.add(func(context.Context) { order = append(order, "log") })
	steps.add(func(ctx context.Context) {
		_, ok := ctx.Deadline()
		assert.True(t, ok, "steps share a deadline")
		order = append(order, "tracer")
	})
	steps.add(func(context.Context) { order = append(order, "archive") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	steps.run(ctx, time.Second)
	steps.run(ctx, time.Second)

	assert.Equal(t, []string{"archive", "tracer", "log"}, order)
}

func TestSignalFlushesTracesBeforeExit(t *testing.T) {
	var spans bytes.Buffer
	tracer, shutdownTracing, err := setupTracing(context.Background(), TracerConfig{Enabled: true, Exporter: "stdout"}, &spans)
	require.NoError(t, err)

	logClosed := false
	steps := &shutdownSteps{}
	steps.add(func(context.Context) { logClosed = true })
	steps.add(func(ctx context.Context) { require.NoError(t, shutdownTracing(ctx)) })

	_, span := tracer.Start(context.Background(), "stomp.report")
	span.End()

	sigCh := make(chan os.Signal, 1)
	sigCh <- syscall.SIGTERM
	exitCode := -1
	handleSignal(sigCh, func() { steps.run(context.Background(), time.Second) }, func(code int) {
		assert.True(t, logClosed, "the log is closed before exit")
		assert.Contains(t, spans.String(), "stomp.report", "spans are flushed before exit")
		exitCode = code
	})

	assert.Equal(t, 0, exitCode)
}

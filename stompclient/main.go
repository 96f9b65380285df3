// =============================================================================
// main.go - stompclient Entry Point
// =============================================================================
//
// stompclient is an interactive client for the game-events broker. It logs
// in over a STOMP-style text protocol, subscribes to per-game channels,
// publishes event reports read from JSON files and keeps every event it
// receives so it can write per-user game summaries.
//
// Usage:
//
//	stompclient                           Start the REPL
//	stompclient --config ./client.yaml    Use a specific config file
//	stompclient --plain < commands.txt    Run a command script
//	stompclient version                   Print version information
//
// =============================================================================

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/stavmo/SPL-assignment3/gamedb"
	"github.com/stavmo/SPL-assignment3/stompprotocol"
)

const (
	// version is the current client version.
	version = "1.0.0"

	// appName is the application name.
	appName = "stompclient"

	// shutdownTimeout bounds flushing traces and stopping the metrics
	// endpoint on exit.
	shutdownTimeout = 5 * time.Second
)

func welcomeBanner() string {
	return fmt.Sprintf(`%s v%s - game events client

Type 'help' for available commands.
Type 'quit' to exit.
`, appName, version)
}

// rootOptions holds the command-line flags. Set flags override the config
// file and the environment.
type rootOptions struct {
	configPath  string
	broker      string
	logLevel    string
	metricsAddr string
	archivePath string
	plain       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Report and follow live game events over STOMP",
		Long: `stompclient connects to a game-events broker, joins game channels,
publishes event reports from JSON files and writes per-user game
summaries from the events it receives.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	bindRootFlags(cmd.Flags(), opts)
	cmd.AddCommand(versionCmd())
	return cmd
}

func bindRootFlags(flags *pflag.FlagSet, opts *rootOptions) {
	flags.StringVar(&opts.configPath, "config", defaultConfigPath(), "config file")
	flags.StringVar(&opts.broker, "broker", "", "default broker address for login")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&opts.archivePath, "archive", "", "SQLite file that archives received events")
	flags.BoolVar(&opts.plain, "plain", false, "read commands without line editing")
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version)
				return
			}
			fmt.Fprintf(out, "%s v%s\n", appName, version)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	return cmd
}

// loadRunConfig loads the configuration and applies the flags that were
// set on the command line.
func loadRunConfig(cmd *cobra.Command, opts *rootOptions) (*Config, error) {
	cfg, err := LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("broker") {
		cfg.Broker = opts.broker
	}
	if flags.Changed("log-level") {
		cfg.Logger.Level = opts.logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if flags.Changed("archive") {
		cfg.Archive.Path = opts.archivePath
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadRunConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg.Logger)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Runs when run returns, or from the signal handler right before the
	// process exits.
	steps := &shutdownSteps{}
	steps.add(func(context.Context) { closeLog() })
	finish := func() { steps.run(ctx, shutdownTimeout) }
	defer finish()

	tracer, shutdownTracing, err := setupTracing(ctx, cfg.Tracer, os.Stderr)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	steps.add(func(ctx context.Context) {
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	})

	registry := newMetricsRegistry()
	metrics := newClientMetrics(registry)
	if cfg.Metrics.Addr != "" {
		srv := startMetricsServer(cfg.Metrics.Addr, registry, logger)
		steps.add(func(ctx context.Context) {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("metrics endpoint shutdown failed", "error", err)
			}
		})
	}

	db := gamedb.New()
	var store stompprotocol.EventStore = db
	if cfg.Archive.Path != "" {
		archive, err := openArchive(ctx, cfg.Archive.Path, db, logger)
		if err != nil {
			return err
		}
		steps.add(func(context.Context) {
			if err := archive.Close(); err != nil {
				logger.Warn("archive close failed", "error", err)
			}
		})
		store = gamedb.NewFanout(db, archive)
	}

	dialer := stompprotocol.NewBreakerDialer(
		stompprotocol.NetDialer{Timeout: cfg.DialTimeout},
		stompprotocol.BreakerConfig{
			MaxFailures: cfg.Breaker.Failures,
			Timeout:     cfg.Breaker.Timeout,
		},
		logger,
	)

	client := stompprotocol.NewClient(
		stompprotocol.WithDialer(dialer),
		stompprotocol.WithEventStore(store),
		stompprotocol.WithLogger(logger),
		stompprotocol.WithMetrics(metrics),
		stompprotocol.WithTracer(tracer),
		stompprotocol.WithReportRate(cfg.Report.Rate, cfg.Report.Burst),
	)

	// Runs on the client's reader goroutine when the broker ends a session
	// no command was waiting on.
	client.SetDisconnectHandler(func(err error) {
		fmt.Fprintf(os.Stderr, "\nDisconnected from broker: %v\n", err)
	})

	editor := NewLineEditor(EditorConfig{
		Plain:       opts.plain,
		HistoryFile: cfg.HistoryFile,
		Completer: newCompleter(completionSource{
			games: client.Subscriptions,
			users: db.Users,
			root:  ".",
		}),
	})

	// The REPL goroutine may be inside a command, so the connection is
	// aborted rather than closed.
	setupSignalHandler(func() {
		client.Abort()
		editor.Close()
		finish()
	})

	if editor.IsInteractive() {
		fmt.Print(welcomeBanner())
	}

	repl := NewREPL(client, db, editor, os.Stdout, os.Stderr, cfg.Broker, logger)
	err = repl.Run(ctx)
	editor.Close()
	return err
}

// openArchive opens the event archive and replays it into db so summaries
// cover events received in earlier runs.
func openArchive(ctx context.Context, path string, db *gamedb.DB, logger *slog.Logger) (*gamedb.Archive, error) {
	archive, err := gamedb.OpenArchive(path, logger)
	if err != nil {
		return nil, err
	}
	n, err := archive.Replay(ctx, db)
	if err != nil {
		archive.Close()
		return nil, fmt.Errorf("replay archive: %w", err)
	}
	logger.Info("archive replayed", "path", path, "events", n)
	return archive, nil
}

// GO CONCEPT: Channels and Goroutines
// ------------------------------------
// signal.Notify delivers SIGINT/SIGTERM on a buffered channel instead of
// killing the process. The goroutine below blocks on that channel, runs
// cleanup and exits. The REPL keeps running in the meantime, blocked on
// input, so the signal is the only way out of a read in progress.

// setupSignalHandler runs cleanup and exits on SIGINT or SIGTERM.
func setupSignalHandler(cleanup func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go handleSignal(sigCh, cleanup, os.Exit)
}

func handleSignal(sigCh <-chan os.Signal, cleanup func(), exit func(int)) {
	<-sigCh
	fmt.Println()
	cleanup()
	exit(0)
}

// shutdownSteps releases what run set up. Steps run once, newest first.
type shutdownSteps struct {
	steps []func(context.Context)
	once  sync.Once
}

func (s *shutdownSteps) add(step func(context.Context)) {
	s.steps = append(s.steps, step)
}

// run executes the steps under a shared timeout. Later calls do nothing.
func (s *shutdownSteps) run(ctx context.Context, timeout time.Duration) {
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		for i := len(s.steps) - 1; i >= 0; i-- {
			s.steps[i](ctx)
		}
	})
}

// printError prints an error message to stderr.
func printError(message string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}

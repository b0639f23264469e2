package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/woxQAQ/plugin-bridge/internal/config"
	"github.com/woxQAQ/plugin-bridge/internal/history"
	"github.com/woxQAQ/plugin-bridge/internal/host"
	"github.com/woxQAQ/plugin-bridge/internal/plugins/echo"
	"github.com/woxQAQ/plugin-bridge/internal/wasm"
	"github.com/woxQAQ/plugin-bridge/pkg/protocol"
	"go.uber.org/zap"
)

type options struct {
	configPath string
	logLevel   string
}

func newRootCommand(version, commit, date string) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "pluginhost",
		Short: "Load plugins and exchange messages with them",
		Long: `pluginhost discovers native and Wasm plugins from the configured plugin
paths, instantiates them and drives their entry points from the command line.

Events the plugins send to the frontend are validated and printed after each
call.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")

	rootCmd.AddCommand(newListCommand(opts))
	rootCmd.AddCommand(newSendCommand(opts))
	rootCmd.AddCommand(newStreamCommand(opts))

	return rootCmd
}

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVERSION\tKIND\tHISTORY\tDISABLED")
			for _, p := range s.manager.Registry().List() {
				m := p.Manifest
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\n", m.ID, m.Name, m.Version, m.Kind, m.RequireHistory, m.Disabled)
			}
			return w.Flush()
		},
	}
}

func newSendCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send <plugin> <message>",
		Short: "Send one message to a new plugin instance",
		Example: `  # Echo a message
  pluginhost send echo "hello"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMessage(cmd, opts, args[0], args[1])
		},
	}
}

func newStreamCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "stream <plugin> <text>",
		Short:   "Ask a plugin to stream text back word by word",
		Example: `  pluginhost stream echo "one two three"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMessage(cmd, opts, args[0], echo.StreamPrefix+args[1])
		},
	}
}

// runMessage drives one instance through its lifecycle around a single
// message and prints the response and the frontend events.
func runMessage(cmd *cobra.Command, opts *options, pluginID, message string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	inst, err := s.manager.Instantiate(ctx, pluginID, "")
	if err != nil {
		return err
	}
	defer inst.Close(ctx)

	if err := inst.Mount(ctx); err != nil {
		return err
	}
	if err := inst.Connect(ctx); err != nil {
		return err
	}

	response, err := inst.HandleMessage(ctx, message)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, response)
	printEvents(out, inst.Events())

	if err := inst.Disconnect(ctx); err != nil {
		return err
	}
	return inst.Dispose(ctx)
}

func printEvents(out io.Writer, events []host.Event) {
	var streamed strings.Builder
	for _, ev := range events {
		fmt.Fprintf(out, "event %s %s\n", ev.Name, ev.Payload)
		if ev.Name != protocol.EventPluginStream {
			continue
		}
		var env protocol.StreamEnvelope
		if err := json.Unmarshal([]byte(ev.Payload), &env); err != nil {
			continue
		}
		if chunk, ok := env.Data.(protocol.ChunkData); ok {
			streamed.WriteString(chunk.Chunk)
		}
	}
	if streamed.Len() > 0 {
		fmt.Fprintf(out, "streamed: %s\n", streamed.String())
	}
}

// session is a loaded host for the duration of one command.
type session struct {
	logger  *zap.Logger
	manager *host.Manager
	history *history.Store
}

func openSession(ctx context.Context, opts *options) (*session, error) {
	cfg, err := config.LoadHostConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger, err := newLogger(level)
	if err != nil {
		return nil, err
	}

	runtime, err := wasm.NewRuntime(ctx, logger, host.RuntimeConfig(cfg.Wasm))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	s := &session{logger: logger}
	var managerOpts []host.Option
	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.History.DBPath, logger)
		if err != nil {
			runtime.Close(ctx)
			return nil, err
		}
		s.history = store
		managerOpts = append(managerOpts, host.WithHistory(store))
	}

	s.manager = host.NewManager(cfg, runtime, logger, managerOpts...)
	s.manager.RegisterNative(echo.ID, echo.Create)

	if err := s.manager.LoadAll(ctx); err != nil {
		s.close(ctx)
		return nil, err
	}

	// The echo plugin is built in; a manifest on disk takes precedence.
	if _, err := s.manager.GetPlugin(echo.ID); err != nil {
		builtin := &host.Manifest{
			ID:          echo.ID,
			Name:        "Echo",
			Description: "Built-in echo plugin",
			Version:     "1.0.0",
			Kind:        host.KindNative,
		}
		if err := s.manager.AddPlugin(builtin); err != nil {
			s.close(ctx)
			return nil, err
		}
	}

	return s, nil
}

func (s *session) close(ctx context.Context) {
	if err := s.manager.Shutdown(ctx); err != nil {
		s.logger.Error("Shutdown failed", zap.Error(err))
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Error("Failed to close history store", zap.Error(err))
		}
	}
	_ = s.logger.Sync()
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}

// Package main provides the deploybot binary entry point.
// Deploybot is a chat-driven release gate: users file deployment requests
// through a conversational form, approvers resolve them with inline buttons,
// and approved workflows fan out to the ticketing and build systems.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ebops/deploybot/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "deploybot"
)

// options collects the process-level flags. Everything else lives in the
// app-config table and is read through config.App at call time.
type options struct {
	dataDir     string
	optionsPath string
	logLevel    string
	opsAddr     string
}

// dbPath resolves the store file under the data directory.
func (o options) dbPath() string {
	dir := o.dataDir
	if dir == "" {
		dir = "data"
	}
	return filepath.Join(dir, "workflows.db")
}

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "deploybot",
		Short: "Deployment approval bot",
		Long: `Deploybot runs a chat bot that collects deployment requests through a
multi-step form, posts them to the configured approval groups, and on
approval files a release ticket and triggers the build jobs, reporting
progress back into the originating group threads.

Runtime configuration (bot token, approver, downstream credentials) lives
in the database; run "deploybot initdb" once to create it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "data", "Directory holding the database file")
	cmd.PersistentFlags().StringVar(&opts.optionsPath, "options", config.OptionsFile, "Project options file (imported by initdb)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.opsAddr, "ops-addr", "", "Listen address for the ops/metrics server (empty disables)")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	cmd.AddCommand(
		initDBCmd(&opts),
		queryDBCmd(&opts),
		workflowsCmd(&opts),
		updateTokenCmd(&opts),
		cleanupCmd(&opts),
		checkConfigCmd(&opts),
	)

	return cmd
}

// parseLevel maps the flag value onto a slog level, defaulting to info.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// setupLogging installs the process logger. It is called twice during boot:
// once before the store opens (stderr only), and again after app config is
// readable, when LOG_FILE may add a rotating file sink.
func setupLogging(level slog.Level, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// logWriter resolves the log destination from app config: stderr alone, or
// stderr teed into a size-rotated file.
func logWriter(ctx context.Context, cfg *config.App) io.Writer {
	file := cfg.LogFile(ctx)
	if file == "" {
		return os.Stderr
	}
	maxSizeMB, backups := cfg.LogRotation(ctx)
	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSizeMB,
		MaxBackups: backups,
	}
	return io.MultiWriter(os.Stderr, rotator)
}

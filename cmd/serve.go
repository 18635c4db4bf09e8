package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jcdickinson/kbpress/internal/config"
	"github.com/jcdickinson/kbpress/internal/daemon"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Generate, build, then serve the site and regenerate on webhooks",
	RunE:  runServe,
}

var (
	serveLogFile     bool
	serveSkipPrepare bool
)

func init() {
	serveCmd.Flags().BoolVar(&serveLogFile, "log-file", false, "log to the server log file instead of stderr")
	serveCmd.Flags().BoolVar(&serveSkipPrepare, "skip-prepare", false, "skip the environment check, theme and dependency install")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr)
	if serveLogFile {
		logPath := config.LogPath()
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer logFile.Close()
		logger = newLogger(logFile)
	}
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if !serveSkipPrepare {
		if err := a.site.Prepare(ctx); err != nil {
			return err
		}
	}
	if err := a.gen.GenerateAll(ctx); err != nil {
		return err
	}
	if err := a.site.Build(ctx); err != nil {
		return err
	}

	srv, err := daemon.NewServer(a.gen, daemon.Options{
		Addr:     cfg.Server.Addr,
		Mount:    cfg.Server.Mount,
		DistDir:  a.site.DistDir(),
		Schedule: cfg.Server.Schedule,
		Builder:  a.site,
		Runs:     a.db,
		Metrics:  a.metrics,
		Log:      logger,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	if err := waitForSignal(errCh); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

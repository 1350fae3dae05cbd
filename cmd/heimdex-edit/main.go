package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-edit/internal/api"
	"github.com/heimdex/heimdex-edit/internal/config"
	"github.com/heimdex/heimdex-edit/internal/logging"
	"github.com/heimdex/heimdex-edit/internal/metrics"
	"github.com/heimdex/heimdex-edit/internal/preview"
	"github.com/heimdex/heimdex-edit/internal/session"
	"github.com/heimdex/heimdex-edit/internal/upload"
)

const reapInterval = time.Minute

func main() {
	rootCmd := &cobra.Command{
		Use:           "heimdex-edit",
		Short:         "Upload a video and describe the edit in natural language",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	rootCmd.AddCommand(serveCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the upload page on localhost",
		Long: `Run the upload page on localhost.

Configuration is read from HEIMDEX_EDIT_* environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(config.Version)
				return
			}
			fmt.Printf("heimdex-edit %s\n", config.Version)
			fmt.Printf("  Commit:     %s\n", config.GitCommit)
			fmt.Printf("  Built:      %s\n", config.BuildTime)
			fmt.Printf("  Go version: %s\n", runtime.Version())
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.PreviewDir(), 0700); err != nil {
		return fmt.Errorf("failed to create preview dir: %w", err)
	}
	if err := os.MkdirAll(cfg.SpoolDir(), 0700); err != nil {
		return fmt.Errorf("failed to create spool dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting heimdex edit",
		"version", config.Version,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
		"max_upload", humanize.IBytes(uint64(cfg.MaxUploadBytes())),
	)

	previews, err := preview.NewRegistry(cfg.PreviewDir(), logging.WithComponent(logger, "preview"))
	if err != nil {
		return fmt.Errorf("failed to initialize previews: %w", err)
	}
	if n, err := previews.Purge(); err != nil {
		logger.Warn("failed to purge stale previews", "error", err)
	} else if n > 0 {
		logger.Info("purged stale previews", "count", n)
	}
	if n, err := upload.CleanSpool(cfg.SpoolDir()); err != nil {
		logger.Warn("failed to clean spool dir", "error", err)
	} else if n > 0 {
		logger.Info("removed stale spool files", "count", n)
	}

	var m *metrics.Metrics
	widgetLogger := logging.WithComponent(logger, "widget")

	sessions := session.NewManager(session.ManagerConfig{
		Factory: func(sessionID string) *upload.Widget {
			l := logging.WithSessionID(widgetLogger, sessionID)
			return upload.New(previews,
				upload.WithMaxSize(cfg.MaxUploadBytes()),
				upload.WithLogger(l),
				upload.WithOnUpload(func(c upload.Candidate) {
					l.Info("uploaded file",
						"name", c.Name(),
						"size", humanize.IBytes(uint64(c.Size())),
						"media_type", c.MediaType(),
					)
					m.AcceptedBytes.Add(float64(c.Size()))
				}),
			)
		},
		TTL:    cfg.SessionTTL(),
		Logger: logging.WithComponent(logger, "session"),
	})

	m = metrics.New(metrics.Gauges{
		ActivePreviews: previews.Active,
		ActiveSessions: sessions.Len,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessions.Run(ctx, reapInterval)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Sessions:       sessions,
		Previews:       previews,
		Metrics:        m,
		SpoolDir:       cfg.SpoolDir(),
		MaxUploadBytes: cfg.MaxUploadBytes(),
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	fmt.Println()
	fmt.Printf("  heimdex-edit %s\n", config.Version)
	fmt.Printf("  Open http://%s in your browser\n", apiServer.Addr())
	fmt.Println()

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("HTTP server error", "error", serveErr)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	sessions.CloseAll()
	if err := previews.Close(); err != nil {
		logger.Error("failed to remove previews", "error", err)
	}

	logger.Info("shutdown complete")
	return serveErr
}

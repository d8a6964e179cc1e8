package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veritas/internal/pipeline"
	"github.com/ppiankov/veritas/internal/server"
	"github.com/ppiankov/veritas/internal/worker"
)

var (
	serveAddr     string
	runRetention  time.Duration
	shutdownGrace time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve batch classification over HTTP",
	Long: `Serve exposes the pipeline over HTTP:
  POST /api/batches                 upload a manifest (raw body or multipart field "file")
  GET  /api/batches/:id             run state and items
  GET  /api/batches/:id/events      progress as server-sent events
  POST /api/batches/:id/cancel      stop after the item in flight
  GET  /api/batches/:id/report      CSV report
  POST /api/analyze                 classify one text or URL
  GET  /api/history                 stored verdicts (?label=&since=&limit=&format=csv)
  GET  /api/runs                    recorded run summaries

Callers are scoped by the X-User-ID header.

Example:
  veritas serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().DurationVar(&runRetention, "retention", time.Hour, "how long finished runs stay queryable")
	serveCmd.Flags().DurationVar(&shutdownGrace, "shutdown-timeout", 30*time.Second, "grace period for runs in flight on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(cfg, pipeline.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("close pipeline", "error", err)
		}
	}()

	if err := p.Ping(ctx); err != nil {
		logger.Warn("classification provider unreachable", "provider", p.ProviderName(), "error", err)
	}

	watchers := startWatchers(context.WithoutCancel(ctx), p.Broker(), cfg, logger, false)

	manager := worker.NewManager(p.Orchestrator(), p.RunOptions(""), runRetention)
	srv := server.New(server.Config{
		Manager:        manager,
		Broker:         p.Broker(),
		Exporter:       p.Exporter(),
		Analyzer:       p,
		History:        p,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		MaxItems:       cfg.Batch.MaxItems,
		Version:        Version,
		Logger:         logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "provider", p.ProviderName())
		errCh <- srv.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace", shutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	p.Broker().Close()
	watchers.Wait()
	return err
}

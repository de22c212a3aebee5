// =============================================================================
// Accounting Export Converter - Serve Command
// =============================================================================
//
// COMMAND USAGE:
//   converter serve [--listen :8080]
//
// STARTUP:
//   1. Load configuration, logger and document types
//   2. Remove upload artifacts left behind by a previous process
//   3. Open the download history database (when configured)
//   4. Start the job store janitor
//   5. Serve the API until SIGINT / SIGTERM
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ginjaninja78/accounting-export-converter/internal/api"
	"github.com/ginjaninja78/accounting-export-converter/internal/converter"
	"github.com/ginjaninja78/accounting-export-converter/internal/history"
	"github.com/ginjaninja78/accounting-export-converter/internal/session"
	"github.com/ginjaninja78/accounting-export-converter/pkg/utils"
	"github.com/spf13/cobra"
)

// listenAddr overrides server.listen_addr.
var listenAddr string

// serveCmd represents the 'serve' command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the upload / process / download routes of every document type,
plus /api/health, /api/document-types and the download history endpoints.

Conversion jobs live in memory and expire after jobs.ttl without activity.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(
		&listenAddr,
		"listen",
		"",
		"Address to listen on (overrides server.listen_addr)",
	)
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	dirs := []string{cfg.WorkDir}
	if cfg.WriteOutputFiles {
		dirs = append(dirs, cfg.OutputDir)
	}
	if err := utils.EnsureDirectories(dirs...); err != nil {
		return err
	}
	if removed, err := utils.CleanStaleUploads(cfg.WorkDir, 0); err != nil {
		logger.Warn("Failed to clean work directory", "dir", cfg.WorkDir, "err", err)
	} else if removed > 0 {
		logger.Info("Removed stale upload artifacts", "count", removed)
	}

	var store history.Store
	if cfg.History.DBPath != "" {
		db, err := history.OpenSQLite(cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open download history: %w", err)
		}
		defer db.Close()
		store = db
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := session.NewStore(cfg.Jobs.TTL, cfg.Jobs.MaxJobs)
	go jobs.Run(ctx, cfg.Jobs.SweepInterval, func(removed int) {
		if removed > 0 {
			logger.Debug("Expired conversion jobs", "removed", removed, "live", jobs.Len())
		}
	})

	svc := converter.NewService(cfg, registry, jobs, logger)
	app := api.NewApp(&api.Handler{
		Service: svc,
		History: store,
		Logger:  logger,
		Version: Version,
	}, cfg.Server.BodyLimitMB)

	addr := cfg.Server.ListenAddr
	if listenAddr != "" {
		addr = listenAddr
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", addr, "document_types", len(registry.All()))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
		return app.Shutdown()
	}
}

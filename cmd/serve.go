package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/nfe-xlsx-converter/internal/server"
)

// envFile is loaded before the configuration so NFEXLSX_ variables can live
// in it.
var envFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Routes:
  POST /api/upload                            upload up to 50 XML files (field "files")
  GET  /api/batches/{id}                      batch progress
  GET  /api/invoices/batch/{batchId}          per-file outcomes
  GET  /api/invoices/batch/{batchId}/excel    download, ?template=<id>
  POST /api/invoices/batch/{batchId}/excel    download with a JSON template
  POST /api/invoices/batch/{batchId}/sheets   append to Google Sheets
  GET  /api/templates                         available columns and templates

The server stops on SIGINT or SIGTERM after in-flight requests and batches
finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the configuration")
}

func runServe() error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg, logger, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := newService(ctx, cfg, store, logger, serviceOptions(cfg))
	if err != nil {
		return err
	}

	srv := server.New(svc, logger, server.Config{
		Addr:            cfg.Server.Addr,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	return srv.ListenAndServe(ctx)
}

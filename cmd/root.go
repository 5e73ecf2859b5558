package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jjenkins/docregistry/internal/config"
	"github.com/jjenkins/docregistry/internal/logging"
	"github.com/jjenkins/docregistry/internal/service"
	"github.com/jjenkins/docregistry/internal/storage"
	"github.com/jjenkins/docregistry/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg    = config.Load()
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "docregistry",
	Short: "Register official documents and their attachments",
	Long: `docregistry keeps a searchable register of official documents.

Each document carries a number, title, issuing authority, field and issue
date, plus an optional attachment kept in local or S3 storage. Records live
in a CSV file, a SQLite database or PostgreSQL.

Settings come from DOCREGISTRY_* environment variables and can be
overridden with the flags below.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		l, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (console, json)")

	flags.StringVar(&cfg.Store.Driver, "store", cfg.Store.Driver, "Record store driver (csv, sqlite, postgres)")
	flags.StringVar(&cfg.Store.Path, "store-path", cfg.Store.Path, "CSV or SQLite file for the csv and sqlite drivers")
	flags.StringVar(&cfg.Store.DatabaseURL, "database-url", cfg.Store.DatabaseURL, "PostgreSQL connection string")

	flags.StringVar(&cfg.Storage.Driver, "storage", cfg.Storage.Driver, "Attachment storage driver (local, s3)")
	flags.StringVar(&cfg.Storage.Dir, "storage-dir", cfg.Storage.Dir, "Attachment directory for the local driver")
	flags.StringVar(&cfg.Storage.Prefix, "storage-prefix", cfg.Storage.Prefix, "Key prefix for stored attachments")
	flags.StringVar(&cfg.Storage.S3Bucket, "s3-bucket", cfg.Storage.S3Bucket, "S3 bucket")
	flags.StringVar(&cfg.Storage.S3Region, "s3-region", cfg.Storage.S3Region, "S3 region")
	flags.StringVar(&cfg.Storage.S3Endpoint, "s3-endpoint", cfg.Storage.S3Endpoint, "S3 compatible endpoint, e.g. http://localhost:9000 for MinIO")
}

// openRegistry wires the configured store and storage provider. The caller
// closes the returned store.
func openRegistry(ctx context.Context) (*service.Registry, store.Store, error) {
	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}

	provider, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
	}

	logger.Debug("registry ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("storage", cfg.Storage.Driver),
	)
	return service.NewRegistry(st, provider, cfg.AllowedExtensions, logger), st, nil
}

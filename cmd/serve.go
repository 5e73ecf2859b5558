package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jjenkins/docregistry/internal/handlers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the document registry web server",
	Long:  `Start the web server with the registration form, the filtered listing and the export endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		registry, st, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		app := handlers.NewApp(&handlers.Deps{
			Registry:    registry,
			Logger:      logger,
			AllowedExts: cfg.AllowedExtensions,
			BodyLimit:   cfg.MaxUploadMB << 20,
			AccessLog:   true,
		})

		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := runServer(ctx, app, ":"+cfg.Port); err != nil {
			return err
		}
		logger.Info("server stopped")
		return nil
	},
}

// runServer listens on addr until ctx is done, then shuts the app down. A
// listen failure is returned as is.
func runServer(ctx context.Context, app *fiber.App, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return <-errCh
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&cfg.Port, "port", "p", cfg.Port, "Port to run the server on")
	serveCmd.Flags().StringSliceVar(&cfg.AllowedExtensions, "allowed-ext", cfg.AllowedExtensions, "Accepted attachment extensions; empty accepts any")
	serveCmd.Flags().IntVar(&cfg.MaxUploadMB, "max-upload-mb", cfg.MaxUploadMB, "Maximum request body size in megabytes")
}

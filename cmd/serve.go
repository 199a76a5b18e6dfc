package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conneroisu/buttonstudio/internal/errors"
	"github.com/conneroisu/buttonstudio/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveDev bool

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the studio page and its APIs",
	Long: `Serve the studio page, the counter and audio APIs, the manifest views and
the live-update websocket.

With --dev the routes/ and islands/ directories are watched: every change
regenerates the manifest and reloads connected browsers, and a route
conflict is shown in the page instead of stopping the server.

Examples:
  buttonstudio serve                 # Serve on localhost:8000
  buttonstudio serve --dev           # Watch, regenerate and live reload
  buttonstudio serve -p 3000 --host 0.0.0.0`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8000, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "Watch routes/ and islands/, regenerate the manifest and live reload")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.Options{Dev: serveDev, Logger: logger})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.ErrCodeInternalError, "failed to create server")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := "production"
	if serveDev {
		mode = "development"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s ButtonStudio (%s) at %s\n",
		color.CyanString("▶"), mode, color.New(color.Bold).Sprintf("http://%s", cfg.Addr()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.NewEnhancedError(
				fmt.Sprintf("Failed to start server on port %d", cfg.Server.Port),
				err,
				errors.ServerStartError(err, cfg.Server.Port),
			)
		}
		return nil

	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return <-errCh
	}
}

package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ironsheep/docflat/internal/server"
	"github.com/ironsheep/docflat/internal/transport"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the image tools over MCP on stdin/stdout",
		Long: `Runs a Model Context Protocol server on stdin/stdout exposing the
document tools (detect boundary, flatten, crop divider, OCR) and the basic
image tools. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.flattener()
			if err != nil {
				return err
			}
			server.Version = a.version
			srv := server.New(
				server.WithFlattener(f),
				server.WithLogger(a.logger),
				server.WithOutput(a.cfg.Format(), a.cfg.JPEGQuality),
				server.WithOCRLanguage(a.cfg.OCRLanguage),
			)
			a.logger.Debug("mcp server starting", "version", a.version)
			return srv.Serve(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Starts the HTTP API:

  POST /v1/flatten   image body or multipart "image" field, returns the page
  POST /v1/boundary  returns the ordered corners as JSON
  GET  /healthz`,
		Example: `  # Listen on the configured address (default :8080)
  docflat serve

  # Custom address
  docflat serve --addr 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.flattener()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			if a.cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			httpServer := &http.Server{
				Addr: addr,
				Handler: transport.NewHandler(transport.Options{
					Flattener: f,
					Logger:    a.logger,
					Format:    a.cfg.Format(),
					Quality:   a.cfg.JPEGQuality,
					Version:   a.version,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				a.logger.Info("docflat API available", "addr", addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				a.logger.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					a.logger.Error("Server shutdown failed", "err", err)
					return err
				}
				a.logger.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (default from config)")

	return cmd
}

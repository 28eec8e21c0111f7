package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/banana-tryon/tryon/internal/images"
	"github.com/banana-tryon/tryon/internal/metrics"
	"github.com/banana-tryon/tryon/internal/proxy"
	"github.com/banana-tryon/tryon/internal/vertex"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the try-on inference proxy",
		Long: `Starts the inference proxy on the specified port.

Storefronts POST a multipart form with a person photo and a product image
reference. The proxy fetches the product image, calls the Vertex AI virtual
try-on model and answers with the synthesized image as a data URL.`,
		Example: `  # Start server on default port 8888
  tryon serve

  # Start server on custom port with service account credentials
  GOOGLE_CLOUD_CREDENTIALS="$(cat key.json)" tryon serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}

			model, err := vertex.New(cmd.Context(), cfg.Vertex())
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			handler := proxy.New(model, images.NewFetcher(), metrics.NewProxy(reg))

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           proxy.NewRouter(handler, reg),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Try-on proxy available", "addr", addr, "url", "http://localhost"+addr+proxy.TryOnPath, "model", cfg.Model, "location", cfg.Location)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give in-flight try-ons time to finish
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (default from TRYON_PORT or 8888)")

	return cmd
}

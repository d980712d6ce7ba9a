package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"comprobantes/internal/api"
	"comprobantes/internal/config"
	"comprobantes/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve extraction and validation over HTTP",
	Long: `Start an HTTP server exposing the extractor and the validator:

  GET  /healthz       liveness
  POST /v1/extract    OCR text, lines or words in, fields out
  POST /v1/validate   fields in, validation outcome with every attempt out
  POST /v1/interpret  outcome in, display message out

Validation is disabled (503) when the authority credentials are not set.`,
	Example: `  # Listen on the default HTTP_ADDR (:8080)
  comprobantes serve

  # Listen on another port
  comprobantes serve --addr :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}

	var validator api.Validator
	if controller, err := newController(cfg); err != nil {
		log.Warn().Err(err).Msg("Authority not configured, validation endpoint disabled")
	} else {
		validator = controller
	}

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.NewHandler(newExtractor(cfg), validator).Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.HTTPAddr).Msg("Server starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info().Msg("Server stopped gracefully")
	return nil
}

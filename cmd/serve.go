package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/api"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/conversation"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

var serveMicrophone string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveMicrophone, "microphone", "", "WAV or raw PCM16 file used as the microphone for server-side sessions")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var runner *conversation.Runner
	if serveMicrophone != "" {
		var closeOutput func() error
		runner, closeOutput, err = a.newRunner(serveMicrophone, "", true)
		if err != nil {
			return err
		}
		defer closeOutput()
	}

	deps := api.Dependencies{
		Config:    cfg,
		Store:     a.store,
		Selection: a.selection,
		Editors:   a.editors,
		Pipeline:  a.pipeline,
		Runner:    runner,
	}
	if a.analyzer != nil {
		deps.Analyzer = a.analyzer
	}

	var handler http.Handler = api.NewRouter(deps, log).Routes()
	if cfg.Server.EnableH2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening",
			logger.String("addr", srv.Addr),
			logger.Bool("h2c", cfg.Server.EnableH2C))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if runner != nil {
		if err := runner.Stop(shutdownCtx); err != nil && !errors.Is(err, conversation.ErrNotRunning) {
			log.Warn("Failed to stop voice session", logger.Error(err))
		}
		if _, err := runner.Wait(shutdownCtx); err != nil && !errors.Is(err, conversation.ErrNotRunning) {
			log.Warn("Conversation pipeline did not finish", logger.Error(err))
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

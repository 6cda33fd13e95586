package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modeldash/internal/backend"
	"modeldash/internal/common/logutil"
	"modeldash/internal/config"
	"modeldash/internal/httpapi"
	"modeldash/internal/manager"
	"modeldash/internal/view"
)

var _ httpapi.Service = (*manager.Manager)(nil)

const (
	startupCheckTimeout = 5 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func runServe(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := resolveConfig(cmd, opts, args, lookupEnv)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}

	// Bind before polling so a busy port is a startup failure.
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Backend:                client,
		BackendURL:             client.BaseURL(),
		RefreshInterval:        time.Duration(cfg.RefreshInterval),
		MaxConcurrentMutations: cfg.MaxConcurrentMutations,
		View:                   view.NewLog(log),
		Logger:                 log,
	})

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	srv := &http.Server{
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("backend", client.BaseURL()).
			Dur("refresh_interval", time.Duration(cfg.RefreshInterval)).Msg("modeldash listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() { _ = mgr.Run(ctx) }()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case serveErr = <-errc:
		log.Error().Err(serveErr).Msg("server error")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	// Accepted mutations finish against the daemon before exit.
	if err := mgr.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("mutations still in flight at exit")
	}
	return serveErr
}

// connect builds the daemon client and checks it answers.
func connect(ctx context.Context, cfg config.Config, log zerolog.Logger) (*backend.Client, error) {
	client := backend.NewClient(backend.ClientConfig{
		BaseURL:        cfg.BackendURL,
		RequestTimeout: time.Duration(cfg.RequestTimeout),
		Logger:         log,
	})
	cctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()
	v, err := client.Version(cctx)
	if err != nil {
		return nil, fmt.Errorf("backend %s unreachable: %w", client.BaseURL(), err)
	}
	log.Info().Str("backend", client.BaseURL()).Str("version", v).Msg("backend reachable")
	return client, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) (zerolog.Logger, func() error, error) {
	log, closeFn, err := logutil.New(logutil.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Out:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return log, closeFn, fmt.Errorf("logger: %w", err)
	}
	return log, closeFn, nil
}

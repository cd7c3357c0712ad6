package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"pagedecor/internal/config"
	"pagedecor/internal/proxy"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the decoration proxy",
		Long: `Run the HTTP service that fetches upstream pages, decorates them and
serves the result. Settings come from .env and PAGEDECOR_* variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, loggerFromContext(cmd.Context()))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, e.g. :81 or 0.0.0.0:8081 (overrides PAGEDECOR_ADDR)")
	return cmd
}

func newServer(ctx context.Context, cfg config.Config, logger *log.Logger) (*proxy.Server, error) {
	pcfg := proxy.Config{
		SitesDir:        cfg.SitesDir,
		Marker:          cfg.Marker,
		CodeBase:        cfg.CodeBase,
		Reveal:          cfg.Reveal,
		UpstreamTimeout: cfg.UpstreamTimeout,
		JSRender:        cfg.JSRender,
		CacheTTL:        cfg.CacheTTL,
		Logger:          logger,
	}
	if cfg.RedisAddr != "" {
		store, err := proxy.NewRedisStore(ctx, cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		pcfg.Cache = store
		logger.Info("page cache", "backend", "redis", "addr", cfg.RedisAddr)
	}
	return proxy.New(pcfg), nil
}

func runServer(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	handler, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer handler.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	logger.Info("listening", "addr", ln.Addr().String(), "js_render", cfg.JSRender)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

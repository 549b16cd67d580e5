package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"lunchmind/api"
	"lunchmind/engine"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the discover API, metrics and pprof",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger

	// =========
	// Profiling
	// =========
	if a.cfg.PprofAddr != "" {
		go func() {
			if err := http.ListenAndServe(a.cfg.PprofAddr, nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("pprof listener stopped", zap.Error(err))
			}
		}()
	}

	// =========
	// Metrics
	// =========
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// =========
	// Engine
	// =========
	eng, err := engine.Open(a.cfg.Engine, logger, reg)
	if err != nil {
		return err
	}

	// =========
	// HTTP
	// =========
	srv := api.NewServer(eng, reg, a.cfg.AppPort, a.cfg.RequestTimeout, logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err = <-errc:
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	return multierr.Combine(err, srv.Shutdown(shutdownCtx), eng.Close())
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/overwatch/pkg/observability"
	"github.com/odvcencio/overwatch/pkg/orchestrator"
)

const shutdownTimeout = 10 * time.Second

func runServeCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to overwatch.yaml (default: OVERWATCH_CONFIG or ./overwatch.yaml)")
	addr := fs.String("addr", "", "metrics and health listen address (overrides telemetry.metrics_addr)")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, 2)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return withExitCode(err, 2)
	}
	if *addr != "" {
		cfg.Telemetry.MetricsAddr = *addr
	}

	logger := observability.NewLogger("overwatch", observability.ParseLevel(cfg.Logging.Level))
	a, err := newApp(cfg, logger, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := a.Close(ctx); closeErr != nil {
			logger.Warn("shutdown incomplete", slog.String("error", closeErr.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.orch.VerifyAudit(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Telemetry.MetricsAddr,
		Handler:           newRouter(a.orch),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.sweeper.Run(ctx) })
	g.Go(func() error { return a.bridge.Run(ctx) })
	if srv.Addr != "" {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return err
		}
		logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("overwatch started",
		slog.String("version", version),
		slog.String("allocation_mode", cfg.Allocation.Mode),
		slog.String("expiry_action", cfg.Approval.ExpiryAction),
		slog.Bool("nats", cfg.Bus.URL != ""),
		slog.Bool("durable_audit", cfg.Audit.Path != ""),
	)
	return g.Wait()
}

// newRouter serves Prometheus metrics, liveness and a read-only view of the
// orchestrator's statistics.
func newRouter(o *orchestrator.Orchestrator) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/metrics", promhttp.Handler().ServeHTTP)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := o.VerifyAudit(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, o.Statistics())
	})
	router.Get("/missions/{id}", func(w http.ResponseWriter, r *http.Request) {
		m, err := o.GetMission(chi.URLParam(r, "id"))
		if err != nil {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, m)
	})
	return router
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

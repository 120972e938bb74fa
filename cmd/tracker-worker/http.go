package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chrismessina/delivery-tracker/config"
	deliveriesapi "github.com/chrismessina/delivery-tracker/internal/api/deliveries_api"
	"github.com/chrismessina/delivery-tracker/internal/services/poller"
)

type workerPoller interface {
	Stats() poller.Stats
	Trigger(force bool)
}

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	poller workerPoller
	ping   func(ctx context.Context) error
	cfg    *config.Config
}

func newWorkerRouter(opts workerHTTPOpts) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		if opts.poller == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "poller not wired"})
			return
		}
		writeJSON(w, http.StatusOK, opts.poller.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "config not wired"})
			return
		}
		// без секретов, только рабочие настройки
		carriers := make([]map[string]any, 0, len(opts.cfg.Carriers))
		for _, c := range opts.cfg.Carriers {
			carriers = append(carriers, map[string]any{
				"key":                c.Key,
				"mode":               c.Mode,
				"rateLimitPerMinute": c.RateLimitPerMinute,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"refreshSchedule":    opts.cfg.Tracker.RefreshSchedule,
			"storage":            opts.cfg.Tracker.Storage,
			"packageStore":       opts.cfg.Tracker.PackageStore,
			"rateLimitPerMinute": opts.cfg.Tracker.RateLimitPerMinute,
			"carriers":           carriers,
		})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if opts.poller == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "poller not wired"})
			return
		}
		force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
		opts.poller.Trigger(force)
		writeJSON(w, http.StatusAccepted, map[string]bool{"triggered": true, "force": force})
	})

	r.Handle("/metrics", promhttp.Handler())

	if opts.swaggerPath != "" {
		deliveriesapi.MountSwagger(r, opts.swaggerPath)
	}
	return r
}

func runWorkerHTTPServer(ctx context.Context, log *slog.Logger, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newWorkerRouter(opts), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	log.Info("worker HTTP listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

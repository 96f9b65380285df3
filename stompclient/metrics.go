package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stavmo/SPL-assignment3/stompprotocol"
)

// receiptWaitBuckets spans receipt round trips from a broker on the same
// host (sub-millisecond) to a slow remote one (a few seconds).
var receiptWaitBuckets = prometheus.ExponentialBuckets(0.0005, 2, 14)

// newMetricsRegistry returns a registry carrying the Go runtime and process
// collectors alongside whatever the client registers.
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newClientMetrics registers the protocol collectors on reg.
func newClientMetrics(reg prometheus.Registerer) *stompprotocol.Metrics {
	return stompprotocol.NewMetrics(
		stompprotocol.WithRegistry(reg),
		stompprotocol.WithBuckets(receiptWaitBuckets),
	)
}

// metricsRouter serves GET /metrics from gatherer.
func metricsRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP)
	return r
}

// metricsServer runs the metrics endpoint in the background.
type metricsServer struct {
	srv    *http.Server
	logger *slog.Logger
}

func startMetricsServer(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) *metricsServer {
	m := &metricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           metricsRouter(gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}

	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", "addr", addr, "error", err)
		}
	}()
	return m
}

func (m *metricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

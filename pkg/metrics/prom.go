// Package metrics exposes Prometheus instrumentation for the generated API.
package metrics

import (
	"cmp"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CRUD holds the per-operation collectors.
type CRUD struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Errors   *prometheus.CounterVec
}

// NewCRUD registers the collectors on reg. A nil reg uses the default
// registerer.
func NewCRUD(reg prometheus.Registerer) *CRUD {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &CRUD{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dyapi_requests_total",
				Help: "Total number of CRUD requests by entity, operation and status code",
			},
			[]string{"entity", "operation", "code"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dyapi_request_duration_seconds",
				Help:    "Duration of CRUD requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity", "operation"},
		),
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dyapi_storage_errors_total",
				Help: "Total number of unexpected storage errors by entity and operation",
			},
			[]string{"entity", "operation"},
		),
	}
}

// Observe records one finished request. A nil receiver is a no-op.
func (m *CRUD) Observe(entity, operation string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(entity, operation, strconv.Itoa(code)).Inc()
	m.Duration.WithLabelValues(entity, operation).Observe(elapsed.Seconds())
}

// StorageError counts an unexpected storage failure. A nil receiver is a no-op.
func (m *CRUD) StorageError(entity, operation string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(entity, operation).Inc()
}

type PromServerOpts struct {
	Addr              string
	Path              string        // defaults to "/metrics"
	ShutdownTimeout   time.Duration // defaults to 5 seconds
	ReadHeaderTimeout time.Duration // defaults to 3 seconds
	Gatherer          prometheus.Gatherer
	Logger            *zap.Logger
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		Gatherer:          prometheus.DefaultGatherer,
		Logger:            zap.NewNop(),
	}
}

// ServePrometheus serves the metrics endpoint until ctx is canceled, then
// shuts the server down gracefully. It returns nil after a clean shutdown.
func ServePrometheus(ctx context.Context, opts *PromServerOpts) error {
	effective := defaultPrometheusServerOptions()
	if opts != nil {
		effective.Addr = cmp.Or(opts.Addr, effective.Addr)
		effective.Path = cmp.Or(opts.Path, effective.Path)
		effective.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effective.ShutdownTimeout)
		effective.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effective.ReadHeaderTimeout)
		if opts.Gatherer != nil {
			effective.Gatherer = opts.Gatherer
		}
		if opts.Logger != nil {
			effective.Logger = opts.Logger
		}
	}

	ln, err := net.Listen("tcp", effective.Addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(effective.Path, promhttp.HandlerFor(effective.Gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: effective.ReadHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		effective.Logger.Info("starting metrics server", zap.String("addr", ln.Addr().String()), zap.String("path", effective.Path))
		errc <- server.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), effective.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		effective.Logger.Warn("metrics server shutdown", zap.Error(err))
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	effective.Logger.Info("metrics server shutdown complete")
	return nil
}

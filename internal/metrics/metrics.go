// Package metrics exposes service counters and gauges for Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proxima/internal/endpoint"
	"proxima/internal/logging"
	"proxima/internal/protocol"
)

const namespace = "proxima"

// Metrics owns a private registry and the service collectors. It satisfies
// endpoint.Observer.
type Metrics struct {
	registry *prometheus.Registry

	envelopes     *prometheus.CounterVec
	discovers     *prometheus.CounterVec
	state         prometheus.Gauge
	clients       prometheus.Gauge
	routingUp     prometheus.Gauge
	startAttempts *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "envelopes_total",
			Help:      "Envelopes handled by the service endpoint",
		}, []string{"kind"}),
		discovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "discover_attempts_total",
			Help:      "Discover requests by outcome",
		}, []string{"outcome"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "state",
			Help:      "Endpoint state (0 idle, 1 configuring, 2 running)",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "clients",
			Help:      "Registered client routes",
		}),
		routingUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "daemon_up",
			Help:      "Whether the routing daemon process is alive",
		}),
		startAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "start_attempts",
			Help:      "Readiness probes used per routing daemon start",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}, []string{"ok"}),
	}
	m.registry.MustRegister(
		m.envelopes,
		m.discovers,
		m.state,
		m.clients,
		m.routingUp,
		m.startAttempts,
	)
	return m
}

func (m *Metrics) EnvelopeHandled(kind protocol.Kind) {
	m.envelopes.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) DiscoverFinished(outcome string) {
	m.discovers.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StateChanged(state endpoint.State) {
	m.state.Set(float64(state))
}

func (m *Metrics) ClientsChanged(n int) {
	m.clients.Set(float64(n))
}

// RoutingUp records the result of a liveness probe.
func (m *Metrics) RoutingUp(up bool) {
	if up {
		m.routingUp.Set(1)
		return
	}
	m.routingUp.Set(0)
}

// StartObserved records one routing daemon start.
func (m *Metrics) StartObserved(attempts int, ok bool) {
	m.startAttempts.WithLabelValues(strconv.FormatBool(ok)).Observe(float64(attempts))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server is a running /metrics endpoint.
type Server struct {
	srv  *http.Server
	addr net.Addr
	done chan struct{}
}

// Serve listens on bind and serves /metrics until ctx ends or Close is
// called.
func (m *Metrics) Serve(ctx context.Context, bind string, logger *slog.Logger) (*Server, error) {
	logger = logging.NewComponentLogger(logger, "metrics")
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", bind, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		addr: listener.Addr(),
		done: make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.WarnWithContext(logger, "metrics server stopped", "metrics_serve_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check metrics.bind"),
				logging.String(logging.FieldImpact, "metrics unavailable"),
			)
		}
	}()
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	go func() {
		<-s.done
		stop()
	}()

	logger.Info("metrics listening", logging.String("addr", s.addr.String()))
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr { return s.addr }

// Close stops the server and waits for it to exit.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}

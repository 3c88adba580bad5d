// Package metrics exposes connection and dispatch counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	LinesReceived   *prometheus.CounterVec
	LinesSent       *prometheus.CounterVec
	ParseErrors     *prometheus.CounterVec
	Reconnects      *prometheus.CounterVec
	ConnectionState *prometheus.GaugeVec
	Events          *prometheus.CounterVec
	DispatchLatency *prometheus.HistogramVec
}

// States lists the values ConnectionState is labelled with.
var States = []string{"disconnected", "connecting", "registering", "connected", "reconnecting"}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		LinesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ircc_lines_received_total",
			Help: "Lines read from the server",
		}, []string{"server"}),
		LinesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ircc_lines_sent_total",
			Help: "Lines written to the server",
		}, []string{"server"}),
		ParseErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ircc_parse_errors_total",
			Help: "Inbound lines that were malformed or truncated",
		}, []string{"server"}),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ircc_reconnects_total",
			Help: "Reconnect attempts scheduled after a transport failure",
		}, []string{"server"}),
		ConnectionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ircc_connection_state",
			Help: "1 for the current state of each connection",
		}, []string{"server", "state"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ircc_display_events_total",
			Help: "Display events emitted by kind",
		}, []string{"kind"}),
		DispatchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ircc_dispatch_duration_seconds",
			Help:    "Time spent applying one message to session state",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}, []string{"command"}),
	}
}

func (m *Metrics) LineReceived(server string) {
	if m == nil {
		return
	}
	m.LinesReceived.WithLabelValues(server).Inc()
}

func (m *Metrics) LineSent(server string) {
	if m == nil {
		return
	}
	m.LinesSent.WithLabelValues(server).Inc()
}

func (m *Metrics) ParseError(server string) {
	if m == nil {
		return
	}
	m.ParseErrors.WithLabelValues(server).Inc()
}

func (m *Metrics) Reconnect(server string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(server).Inc()
}

// SetState marks state as the only active state of server.
func (m *Metrics) SetState(server, state string) {
	if m == nil {
		return
	}
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(server, s).Set(v)
	}
}

// Forget drops all series of a removed server.
func (m *Metrics) Forget(server string) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"server": server}
	m.LinesReceived.DeletePartialMatch(labels)
	m.LinesSent.DeletePartialMatch(labels)
	m.ParseErrors.DeletePartialMatch(labels)
	m.Reconnects.DeletePartialMatch(labels)
	m.ConnectionState.DeletePartialMatch(labels)
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDispatch(command string, d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchLatency.WithLabelValues(command).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("failed to shut down metrics server: %v", err)
		}
	}()

	log.Infof("serving metrics on %s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve metrics: %w", err)
	}
	return nil
}

// Package metrics exposes transfer-server counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/securexfer/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "securexfer"

// Metrics records session and command events. It satisfies the transfer
// server's Observer interface.
type Metrics struct {
	reg *prometheus.Registry

	activeSessions prometheus.Gauge
	sessionsTotal  prometheus.Counter
	commandsTotal  *prometheus.CounterVec
	payloadBytes   *prometheus.CounterVec
	mismatches     *prometheus.CounterVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live client sessions.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of accepted client sessions.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Handled protocol commands by command and result.",
		}, []string{"command", "result"}),
		payloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Raw file bytes moved, by direction.",
		}, []string{"direction"}),
		mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_mismatches_total",
			Help:      "Checksum disagreements by checkpoint.",
		}, []string{"checkpoint"}),
	}

	m.reg.MustRegister(
		m.activeSessions,
		m.sessionsTotal,
		m.commandsTotal,
		m.payloadBytes,
		m.mismatches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) SessionOpened() {
	m.activeSessions.Inc()
	m.sessionsTotal.Inc()
}

func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }

func (m *Metrics) CommandHandled(command, result string) {
	m.commandsTotal.WithLabelValues(command, result).Inc()
}

func (m *Metrics) BytesTransferred(direction string, n int64) {
	if n > 0 {
		m.payloadBytes.WithLabelValues(direction).Add(float64(n))
	}
}

func (m *Metrics) ChecksumMismatch(checkpoint string) {
	m.mismatches.WithLabelValues(checkpoint).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, log logging.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.serve(ctx, ln, log.With("module", "metrics"))
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener, log logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		log.Info(context.Background(), "Stopping metrics server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info(ctx, "Starting metrics server", "address", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

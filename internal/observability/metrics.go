package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seatwatch/api/schemas"
)

// Metrics holds the prometheus collectors for one process. Collectors live on
// their own registry so tests can build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	cycles          prometheus.Counter
	outcomes        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	commitAttempts  *prometheus.CounterVec
	snapshotRecords prometheus.Gauge
	snapshotLatency prometheus.Histogram
	degradedFields  *prometheus.CounterVec
	droppedRows     *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seatwatch_poll_cycles_total",
			Help: "Total number of search cycles started",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seatwatch_poll_outcomes_total",
			Help: "Total number of finished poll runs by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seatwatch_engine_transitions_total",
			Help: "State machine transitions by target state",
		}, []string{"state"}),
		commitAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seatwatch_commit_attempts_total",
			Help: "Commit attempts by result",
		}, []string{"result"}),
		snapshotRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seatwatch_snapshot_records",
			Help: "Number of records in the latest snapshot",
		}),
		snapshotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seatwatch_snapshot_duration_seconds",
			Help:    "Time spent fetching and extracting one snapshot",
			Buckets: prometheus.DefBuckets,
		}),
		degradedFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seatwatch_extractor_degraded_fields_total",
			Help: "Fields that fell back to a degraded value",
		}, []string{"field"}),
		droppedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seatwatch_extractor_dropped_rows_total",
			Help: "Rows dropped during extraction by reason",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		m.cycles, m.outcomes, m.transitions, m.commitAttempts,
		m.snapshotRecords, m.snapshotLatency, m.degradedFields, m.droppedRows,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// -- Engine hooks --

func (m *Metrics) CycleStarted() { m.cycles.Inc() }

func (m *Metrics) Transition(to schemas.EngineState) {
	m.transitions.WithLabelValues(to.String()).Inc()
}

func (m *Metrics) Finished(o schemas.Outcome) {
	m.outcomes.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) CommitAttempt(result string) {
	m.commitAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Snapshot(records int, took time.Duration) {
	m.snapshotRecords.Set(float64(records))
	m.snapshotLatency.Observe(took.Seconds())
}

// -- Extractor hooks --

func (m *Metrics) FieldDegraded(field string) {
	m.degradedFields.WithLabelValues(field).Inc()
}

func (m *Metrics) RowDropped(reason string) {
	m.droppedRows.WithLabelValues(reason).Inc()
}

// -- HTTP exposure --

// MetricsServer serves /metrics and a trivial /health endpoint.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
	ln     net.Listener
}

// NewMetricsServer builds a server bound to addr for the given metrics.
func NewMetricsServer(addr string, m *Metrics, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = jsoniter.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Named("metrics"),
	}
}

// Handler returns the HTTP handler, mostly for tests.
func (s *MetricsServer) Handler() http.Handler { return s.server.Handler }

// Listen binds the configured address. Run calls it when it has not been
// called yet; callers that want an unusable address to fail fast call it first.
func (s *MetricsServer) Listen() error {
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics address %s: %w", s.server.Addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *MetricsServer) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.server.Addr
}

// Close releases a listener that was bound but never served.
func (s *MetricsServer) Close() error {
	if s.ln == nil {
		return nil
	}
	if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Run serves until ctx is done, then shuts the server down.
func (s *MetricsServer) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Serving metrics.", zap.String("addr", s.Addr()))
		errCh <- s.server.Serve(s.ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

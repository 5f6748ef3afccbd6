// Package metrics exposes indexer progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/eventidx/internal/mutation"
)

// Metrics holds the indexer's collectors. A nil *Metrics records nothing.
type Metrics struct {
	CheckpointsScanned prometheus.Counter
	Mutations          *prometheus.CounterVec // labels: table, op
	RowsAffected       prometheus.Counter
	CommitErrors       prometheus.Counter
	CommitDuration     prometheus.Histogram
	Watermark          *prometheus.GaugeVec // labels: pipeline
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckpointsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventidx_checkpoints_scanned_total",
			Help: "Checkpoints scanned for package events",
		}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventidx_mutations_total",
			Help: "Mutations committed, by table and operation",
		}, []string{"table", "op"}),
		RowsAffected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventidx_rows_affected_total",
			Help: "Rows changed by committed batches",
		}),
		CommitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventidx_commit_errors_total",
			Help: "Failed commit attempts, including ones later retried",
		}),
		CommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventidx_commit_duration_seconds",
			Help:    "Commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		Watermark: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "eventidx_watermark_checkpoint",
			Help: "Highest committed checkpoint",
		}, []string{"pipeline"}),
	}
	reg.MustRegister(m.CheckpointsScanned, m.Mutations, m.RowsAffected, m.CommitErrors, m.CommitDuration, m.Watermark)
	return m
}

// ObserveScan counts scanned checkpoints.
func (m *Metrics) ObserveScan(checkpoints int) {
	if m == nil {
		return
	}
	m.CheckpointsScanned.Add(float64(checkpoints))
}

// ObserveCommit records a successful commit of ms.
func (m *Metrics) ObserveCommit(pipeline string, ms []mutation.Mutation, rows int64, checkpoint uint64, took time.Duration) {
	if m == nil {
		return
	}
	for _, mu := range ms {
		m.Mutations.WithLabelValues(string(mu.Table()), string(mu.Op())).Inc()
	}
	m.RowsAffected.Add(float64(rows))
	m.CommitDuration.Observe(took.Seconds())
	m.Watermark.WithLabelValues(pipeline).Set(float64(checkpoint))
}

// ObserveCommitError counts a failed commit attempt.
func (m *Metrics) ObserveCommitError() {
	if m == nil {
		return
	}
	m.CommitErrors.Inc()
}

// Handler serves /metrics from g and /healthz.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Serve runs an HTTP server for h on addr until ctx is cancelled, then shuts
// it down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info("metrics server starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

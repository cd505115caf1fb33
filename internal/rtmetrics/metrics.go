// Public domain.

// Package rtmetrics holds Prometheus metrics for radiative transfer runs.
package rtmetrics

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for LinesOfSight.
const (
	OK     = "ok"
	Failed = "failed"
)

var (
	// LinesOfSight counts evaluated lines of sight by outcome.
	LinesOfSight = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtpath_lines_of_sight_total",
			Help: "Total number of lines of sight evaluated.",
		},
		[]string{"outcome"},
	)

	// PathPoints counts traced path points.
	PathPoints = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtpath_path_points_total",
			Help: "Total number of propagation path points traced.",
		},
	)

	// ProviderCalls counts absorption provider calls, by whether the call
	// was a finite difference re-evaluation.
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtpath_provider_calls_total",
			Help: "Total number of absorption provider calls.",
		},
		[]string{"kind"},
	)

	losDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rtpath_los_duration_seconds",
			Help:    "Line of sight evaluation duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(1e-4, 4, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(LinesOfSight)
	prometheus.MustRegister(PathPoints)
	prometheus.MustRegister(ProviderCalls)
	prometheus.MustRegister(losDurationSeconds)
}

// ObserveLOS records a line of sight evaluation that started at start.
func ObserveLOS(start time.Time, err error) {
	losDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		LinesOfSight.WithLabelValues(Failed).Inc()
		return
	}
	LinesOfSight.WithLabelValues(OK).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// WriteText writes the current metrics in the text exposition format.
func WriteText(w io.Writer) error {
	rec := &recorder{header: http.Header{}}
	req, err := http.NewRequest(http.MethodGet, "/metrics", nil)
	if err != nil {
		return err
	}
	promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}).
		ServeHTTP(rec, req)
	_, err = w.Write(rec.body.Bytes())
	return err
}

// recorder is a minimal in-memory http.ResponseWriter.
type recorder struct {
	header http.Header
	body   bytes.Buffer
	code   int
}

func (r *recorder) Header() http.Header         { return r.header }
func (r *recorder) Write(b []byte) (int, error) { return r.body.Write(b) }
func (r *recorder) WriteHeader(code int)        { r.code = code }

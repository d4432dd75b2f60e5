package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for the console: inbound HTTP
// traffic plus draft lifecycle counters.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	draftsCreated prometheus.Counter
	analysesRun   prometheus.Counter
	chatReplies   prometheus.Counter
	submissions   *prometheus.CounterVec
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "veritas",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	draftsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "drafts",
		Name:      "created_total",
		Help:      "Total number of incident drafts created.",
	})

	analysesRun := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "drafts",
		Name:      "analyses_total",
		Help:      "Total number of completed draft analyses.",
	})

	chatReplies := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "assist",
		Name:      "chat_replies_total",
		Help:      "Total number of assistant chat replies generated.",
	})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "submissions",
		Name:      "total",
		Help:      "Total number of report submission attempts by result.",
	}, []string{"result"})

	for _, c := range []prometheus.Collector{
		requestDuration, requestTotal, draftsCreated, analysesRun, chatReplies, submissions,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		draftsCreated:   draftsCreated,
		analysesRun:     analysesRun,
		chatReplies:     chatReplies,
		submissions:     submissions,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// DraftCreated records a new draft.
func (c *Collector) DraftCreated() {
	if c != nil {
		c.draftsCreated.Inc()
	}
}

// AnalysisRun records a completed analysis.
func (c *Collector) AnalysisRun() {
	if c != nil {
		c.analysesRun.Inc()
	}
}

// ChatReply records a generated assistant reply.
func (c *Collector) ChatReply() {
	if c != nil {
		c.chatReplies.Inc()
	}
}

// Submission records a submission attempt outcome ("accepted" or "failed").
func (c *Collector) Submission(result string) {
	if c != nil {
		c.submissions.WithLabelValues(result).Inc()
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

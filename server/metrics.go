package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LukasK13/ESBO-ETC/logging"
)

func (s *Server) registerMetrics() {
	s.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "esboetc",
			Name:      "runs_total",
			Help:      "Total number of calculations by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	s.seconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "esboetc",
			Name:      "run_duration_seconds",
			Help:      "Duration of a calculation in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"mode"},
	)
	s.busy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "esboetc",
		Name:      "runs_in_progress",
		Help:      "Number of calculations currently running.",
	})
	s.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "esboetc",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"route", "method", "code"},
	)
	s.reg.MustRegister(s.runs, s.seconds, s.busy, s.requests)
}

// statusWriter captures the status code of a response
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument counts requests by route pattern, method and status code
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.requests.WithLabelValues(route, r.Method, strconv.Itoa(sw.code)).Inc()
		s.log.Debug("request served",
			logging.String("route", route),
			logging.String("method", r.Method),
			logging.Int("code", sw.code),
			logging.Any("duration", time.Since(start)))
	})
}

package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsConfig holds configuration for the metrics subsystem.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool `yaml:"enabled"`
	// Namespace prefix for all metrics.
	Namespace string `yaml:"namespace"`
	// Version is the application version for the info metric.
	Version string `yaml:"version"`
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "notionsearch",
		Version:   "dev",
	}
}

// Metrics collects request and upstream counters. Safe for concurrent use.
type Metrics struct {
	namespace string
	version   string

	// key = "method:route:status"
	mu                sync.RWMutex
	httpRequestCounts map[string]*atomic.Int64

	// key = "method:route"
	httpDurationMu sync.RWMutex
	httpDurations  map[string]*durationCollector

	// key = upstream status code, 0 for transport failures
	upstreamMu       sync.RWMutex
	upstreamCounts   map[int]*atomic.Int64
	upstreamDuration *durationCollector

	rateLimitAllowed  atomic.Int64
	rateLimitRejected atomic.Int64

	activeConnections atomic.Int64
}

// durationCollector keeps a sliding window of samples for quantiles.
type durationCollector struct {
	mu      sync.Mutex
	samples []float64
	maxSize int
}

func newDurationCollector(maxSize int) *durationCollector {
	return &durationCollector{
		samples: make([]float64, 0, maxSize),
		maxSize: maxSize,
	}
}

func (d *durationCollector) add(duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.samples) >= d.maxSize {
		copy(d.samples, d.samples[1:])
		d.samples = d.samples[:len(d.samples)-1]
	}
	d.samples = append(d.samples, duration.Seconds())
}

func (d *durationCollector) quantile(q float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(d.samples))
	copy(sorted, d.samples)
	sort.Float64s(sorted)

	idx := q * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func (d *durationCollector) stats() (sum float64, count int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.samples {
		sum += s
	}
	return sum, len(d.samples)
}

// NewMetrics creates a new Metrics collector.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultMetricsConfig().Namespace
	}
	return &Metrics{
		namespace:         cfg.Namespace,
		version:           cfg.Version,
		httpRequestCounts: make(map[string]*atomic.Int64),
		httpDurations:     make(map[string]*durationCollector),
		upstreamCounts:    make(map[int]*atomic.Int64),
		upstreamDuration:  newDurationCollector(1000),
	}
}

// RecordHTTPRequest records a served request.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	route := routeLabel(path)

	countKey := fmt.Sprintf("%s:%s:%d", method, route, statusCode)
	m.mu.Lock()
	counter, ok := m.httpRequestCounts[countKey]
	if !ok {
		counter = &atomic.Int64{}
		m.httpRequestCounts[countKey] = counter
	}
	m.mu.Unlock()
	counter.Add(1)

	durationKey := method + ":" + route
	m.httpDurationMu.Lock()
	collector, ok := m.httpDurations[durationKey]
	if !ok {
		collector = newDurationCollector(1000)
		m.httpDurations[durationKey] = collector
	}
	m.httpDurationMu.Unlock()
	collector.add(duration)
}

// RecordUpstreamSearch records one call to the upstream search API.
// statusCode is 0 when no response was received.
func (m *Metrics) RecordUpstreamSearch(statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamMu.Lock()
	counter, ok := m.upstreamCounts[statusCode]
	if !ok {
		counter = &atomic.Int64{}
		m.upstreamCounts[statusCode] = counter
	}
	m.upstreamMu.Unlock()
	counter.Add(1)
	m.upstreamDuration.add(duration)
}

func (m *Metrics) RecordRateLimitAllowed()  { m.rateLimitAllowed.Add(1) }
func (m *Metrics) RecordRateLimitRejected() { m.rateLimitRejected.Add(1) }

// routeLabel keeps label cardinality bounded: unknown paths collapse to "other".
func routeLabel(path string) string {
	switch {
	case path == "/", path == "/healthz", path == "/openapi.yaml", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/api/notion/"):
		return path
	case strings.HasPrefix(path, "/static/"):
		return "/static"
	default:
		return "other"
	}
}

// Handler returns an http.Handler that serves Prometheus-format metrics.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		m.writePrometheusMetrics(w)
	})
}

func (m *Metrics) writePrometheusMetrics(w io.Writer) {
	ns := m.namespace

	_, _ = fmt.Fprintf(w, "# HELP %s_info Application information\n", ns)
	_, _ = fmt.Fprintf(w, "# TYPE %s_info gauge\n", ns)
	_, _ = fmt.Fprintf(w, "%s_info{version=%q} 1\n\n", ns, m.version)

	_, _ = fmt.Fprintf(w, "# HELP %s_http_requests_total Total number of HTTP requests\n", ns)
	_, _ = fmt.Fprintf(w, "# TYPE %s_http_requests_total counter\n", ns)
	m.mu.RLock()
	for _, key := range sortedKeys(m.httpRequestCounts) {
		parts := strings.SplitN(key, ":", 3)
		if len(parts) == 3 {
			_, _ = fmt.Fprintf(w, "%s_http_requests_total{method=%q,path=%q,status=%q} %d\n",
				ns, parts[0], parts[1], parts[2], m.httpRequestCounts[key].Load())
		}
	}
	m.mu.RUnlock()
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "# HELP %s_http_request_duration_seconds HTTP request duration in seconds\n", ns)
	_, _ = fmt.Fprintf(w, "# TYPE %s_http_request_duration_seconds summary\n", ns)
	m.httpDurationMu.RLock()
	for _, key := range sortedKeys(m.httpDurations) {
		parts := strings.SplitN(key, ":", 2)
		if len(parts) != 2 {
			continue
		}
		labels := fmt.Sprintf("method=%q,path=%q", parts[0], parts[1])
		writeSummary(w, ns+"_http_request_duration_seconds", labels, m.httpDurations[key])
	}
	m.httpDurationMu.RUnlock()
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "# HELP %s_upstream_search_requests_total Upstream search calls by status (0 = no response)\n", ns)
	_, _ = fmt.Fprintf(w, "# TYPE %s_upstream_search_requests_total counter\n", ns)
	m.upstreamMu.RLock()
	statuses := make([]int, 0, len(m.upstreamCounts))
	for status := range m.upstreamCounts {
		statuses = append(statuses, status)
	}
	sort.Ints(statuses)
	for _, status := range statuses {
		_, _ = fmt.Fprintf(w, "%s_upstream_search_requests_total{status=\"%d\"} %d\n",
			ns, status, m.upstreamCounts[status].Load())
	}
	m.upstreamMu.RUnlock()
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "# HELP %s_upstream_search_duration_seconds Upstream search latency in seconds\n", ns)
	_, _ = fmt.Fprintf(w, "# TYPE %s_upstream_search_duration_seconds summary\n", ns)
	writeSummary(w, ns+"_upstream_search_duration_seconds", "", m.upstreamDuration)
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "# HELP %s_rate_limit_requests_total Total rate limit decisions\n", ns)
	_, _ = fmt.Fprintf(w, "# TYPE %s_rate_limit_requests_total counter\n", ns)
	_, _ = fmt.Fprintf(w, "%s_rate_limit_requests_total{status=\"allowed\"} %d\n", ns, m.rateLimitAllowed.Load())
	_, _ = fmt.Fprintf(w, "%s_rate_limit_requests_total{status=\"rejected\"} %d\n\n", ns, m.rateLimitRejected.Load())

	_, _ = fmt.Fprintf(w, "# HELP %s_active_connections Current number of active HTTP connections\n", ns)
	_, _ = fmt.Fprintf(w, "# TYPE %s_active_connections gauge\n", ns)
	_, _ = fmt.Fprintf(w, "%s_active_connections %d\n", ns, m.activeConnections.Load())
}

func writeSummary(w io.Writer, name, labels string, d *durationCollector) {
	sep := ""
	if labels != "" {
		sep = ","
	}
	for _, q := range []float64{0.5, 0.9, 0.99} {
		_, _ = fmt.Fprintf(w, "%s{%s%squantile=\"%.2f\"} %.6f\n", name, labels, sep, q, d.quantile(q))
	}
	sum, count := d.stats()
	if labels != "" {
		labels = "{" + labels + "}"
	}
	_, _ = fmt.Fprintf(w, "%s_sum%s %.6f\n", name, labels, sum)
	_, _ = fmt.Fprintf(w, "%s_count%s %d\n", name, labels, count)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MetricsMiddleware returns an HTTP middleware that records request metrics.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	if m == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			m.activeConnections.Add(1)
			defer m.activeConnections.Add(-1)

			start := time.Now()
			wrapped := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			m.RecordHTTPRequest(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
		})
	}
}

// RateLimitMetricsMiddleware records allow/reject decisions of the rate
// limiter it wraps.
func RateLimitMetricsMiddleware(m *Metrics, rateLimitEnabled bool) func(http.Handler) http.Handler {
	if m == nil || !rateLimitEnabled {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			if wrapped.statusCode == http.StatusTooManyRequests {
				m.RecordRateLimitRejected()
			} else {
				m.RecordRateLimitAllowed()
			}
		})
	}
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

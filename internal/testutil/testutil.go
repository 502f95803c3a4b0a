// Package testutil provides testing utilities for end-to-end proxy tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"notionsearch/internal/api"
	"notionsearch/internal/notion"
	"notionsearch/internal/observability"
)

// FakeNotion is a stand-in for the upstream search endpoint. It answers
// every request with Status and Body and records what it received.
type FakeNotion struct {
	Status int
	Body   string

	mu          sync.Mutex
	payloads    []notion.Payload
	authHeaders []string
	versions    []string
}

func (f *FakeNotion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p notion.Payload
	_ = json.NewDecoder(r.Body).Decode(&p)

	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	f.versions = append(f.versions, r.Header.Get("Notion-Version"))
	f.mu.Unlock()

	status := f.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, f.Body)
}

// Payloads returns the upstream payloads received so far.
func (f *FakeNotion) Payloads() []notion.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notion.Payload(nil), f.payloads...)
}

// AuthHeaders returns the Authorization headers received so far.
func (f *FakeNotion) AuthHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authHeaders...)
}

// Versions returns the Notion-Version headers received so far.
func (f *FakeNotion) Versions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.versions...)
}

// TestServerConfig holds configuration for creating a test server.
type TestServerConfig struct {
	// Token is the Notion integration token given to the client.
	Token string
	// Upstream handles calls to the fake Notion API. Nil answers
	// every search with an empty result list.
	Upstream http.Handler
	// EnableRateLimit enables rate limiting middleware.
	EnableRateLimit bool
	// RateLimitConfig configures rate limiting if enabled.
	RateLimitConfig api.RateLimitConfig
	// EnableMetrics enables metrics collection.
	EnableMetrics bool
	// DisplayLocation is the zone for rendered dates; nil means UTC.
	DisplayLocation *time.Location
}

// TestServerComponents holds all the components created for a test server.
type TestServerComponents struct {
	// Server is the proxy under test.
	Server *httptest.Server
	// Upstream is the fake Notion API the proxy talks to.
	Upstream *httptest.Server
	// Metrics is the metrics collector, nil unless enabled.
	Metrics *observability.Metrics
	// Logger is the structured logger.
	Logger observability.Logger
	// Cleanup tears down both servers. It is also registered with t.Cleanup.
	Cleanup func()
}

// NewTestServer wires the real client, server and middleware chain against
// a fake upstream.
func NewTestServer(t *testing.T, cfg TestServerConfig) *TestServerComponents {
	t.Helper()

	upstreamHandler := cfg.Upstream
	if upstreamHandler == nil {
		upstreamHandler = &FakeNotion{Body: `{"object":"list","results":[]}`}
	}
	upstream := httptest.NewServer(upstreamHandler)

	logger := observability.NewLogger(observability.Config{
		Level:  "debug",
		Format: "json",
		Output: io.Discard,
	})

	var metrics *observability.Metrics
	if cfg.EnableMetrics {
		metrics = observability.NewMetrics(observability.MetricsConfig{
			Namespace: "notionsearch_test",
			Version:   "test",
		})
	}

	client := notion.NewClient(notion.Config{
		Token:    cfg.Token,
		Version:  notion.DefaultVersion,
		Endpoint: upstream.URL + "/v1",
	}, upstream.Client().Transport)

	loc := cfg.DisplayLocation
	if loc == nil {
		loc = time.UTC
	}

	mux := http.NewServeMux()
	srv := api.NewServer(mux, client, logger, metrics, api.Options{DisplayLocation: loc})
	srv.RegisterRoutes()

	rateCfg := api.RateLimitConfig{}
	if cfg.EnableRateLimit {
		rateCfg = cfg.RateLimitConfig
	}
	handler := api.ApplyMiddlewares(
		mux,
		observability.MetricsMiddleware(metrics),
		api.RequestIDMiddleware(),
		api.LoggingMiddleware(logger),
		observability.RateLimitMetricsMiddleware(metrics, rateCfg.Enabled()),
		api.RateLimitMiddleware(rateCfg, logger),
	)

	testServer := httptest.NewServer(handler)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			testServer.Close()
			upstream.Close()
		})
	}
	t.Cleanup(cleanup)

	return &TestServerComponents{
		Server:   testServer,
		Upstream: upstream,
		Metrics:  metrics,
		Logger:   logger,
		Cleanup:  cleanup,
	}
}

// HTTPClient returns the test server's client configured for the server.
func (c *TestServerComponents) HTTPClient() *http.Client {
	return c.Server.Client()
}

// URL returns the full URL for a given path.
func (c *TestServerComponents) URL(path string) string {
	return c.Server.URL + path
}

// PostJSON posts body to path on the test server.
func (c *TestServerComponents) PostJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.URL(path), JSONBody(t, body))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return DoRequest(t, c.HTTPClient(), req)
}

// DoRequest performs an HTTP request and returns the response.
func DoRequest(t *testing.T, client *http.Client, req *http.Request) *http.Response {
	t.Helper()

	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	return resp
}

// AssertStatus checks that the response has the expected status code.
func AssertStatus(t *testing.T, got, expected int) {
	t.Helper()

	if got != expected {
		t.Errorf("expected status %d, got %d", expected, got)
	}
}

// AssertHeaderExists checks that the response has the specified header.
func AssertHeaderExists(t *testing.T, resp *http.Response, key string) {
	t.Helper()

	if resp.Header.Get(key) == "" {
		t.Errorf("expected header %s to exist", key)
	}
}

// JSONBody creates an io.Reader from a JSON-serializable value.
func JSONBody(t *testing.T, v any) io.Reader {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}

	return bytes.NewReader(data)
}

// ReadBody reads and closes a response body.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(data)
}

// ReadJSONResponse reads and unmarshals a JSON response body.
func ReadJSONResponse(t *testing.T, resp *http.Response, v any) {
	t.Helper()

	data := ReadBody(t, resp)
	if err := json.Unmarshal([]byte(data), v); err != nil {
		t.Fatalf("failed to unmarshal response: %v\nBody: %s", err, data)
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notionsearch/internal/notion"
	"notionsearch/internal/render"
)

const (
	errSearchFailed = "Failed to search Notion"
	errRenderFailed = "Failed to render Notion results"

	maxSearchBodyBytes = 64 << 10
)

// POST /api/notion/search
// Relays the upstream body and status untouched.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.search(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// POST /api/notion/search/table
// Same request as handleSearch, answered with the rendered results table.
func (s *Server) handleSearchTable(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.search(w, r)
	if !ok {
		return
	}

	opts := render.Options{
		Location: s.display,
		Locale:   render.LocaleFromAcceptLanguage(r.Header.Get("Accept-Language")),
	}
	table, err := render.Table(resp.Body, opts)
	if err != nil {
		s.writeErr(r.Context(), w, http.StatusBadGateway, errRenderFailed, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, string(table))
}

// search decodes the browser request and runs it upstream. On failure the
// error response has already been written and ok is false.
func (s *Server) search(w http.ResponseWriter, r *http.Request) (*notion.SearchResponse, bool) {
	ctx := r.Context()

	req, err := decodeSearchRequest(r)
	if err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, errSearchFailed, err.Error())
		return nil, false
	}

	start := time.Now()
	resp, err := s.searcher.Search(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		status, details := http.StatusInternalServerError, err.Error()
		upstreamStatus := 0
		var apiErr *notion.APIError
		if errors.As(err, &apiErr) {
			status, details = apiErr.StatusCode, apiErr.Message
			upstreamStatus = apiErr.StatusCode
		}
		s.metrics.RecordUpstreamSearch(upstreamStatus, elapsed)
		s.writeErr(ctx, w, status, errSearchFailed, details)
		return nil, false
	}

	s.metrics.RecordUpstreamSearch(resp.StatusCode, elapsed)
	s.logger.DebugContext(ctx, "notion search relayed",
		"status", resp.StatusCode,
		"query_present", strings.TrimSpace(req.Query) != "",
		"bytes", len(resp.Body),
		"duration_ms", elapsed.Milliseconds(),
	)
	return resp, true
}

// decodeSearchRequest reads {query?, pageSize?}. An empty body means defaults.
func decodeSearchRequest(r *http.Request) (notion.SearchRequest, error) {
	var req notion.SearchRequest
	if r.Body == nil {
		return req, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSearchBodyBytes+1))
	if err != nil {
		return req, fmt.Errorf("read request body: %w", err)
	}
	if len(body) > maxSearchBodyBytes {
		return req, errors.New("request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}

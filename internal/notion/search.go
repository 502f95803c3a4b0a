package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the caller does not send pageSize.
	DefaultPageSize = 10

	// DefaultVersion is the Notion-Version header sent upstream.
	DefaultVersion = "2022-06-28"

	// DefaultEndpoint is the Notion public API base URL.
	DefaultEndpoint = "https://api.notion.com/v1"
)

// SearchRequest is the body the browser sends to the proxy.
// PageSize holds the raw JSON value as received; nil means absent.
// Upstream validates it, so non-integer values are forwarded as is.
type SearchRequest struct {
	Query    string          `json:"query"`
	PageSize json.RawMessage `json:"pageSize"`
}

// PageSize encodes n as a raw page size value.
func PageSize(n int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(n))
}

// Payload is the body sent to the upstream search endpoint.
// See: https://developers.notion.com/reference/post-search
type Payload struct {
	PageSize json.RawMessage `json:"page_size"`
	Query    string          `json:"query,omitempty"`
}

// SearchResponse carries a successful upstream response untouched.
type SearchResponse struct {
	StatusCode int
	Body       []byte
}

// Searcher abstracts the upstream search API.
type Searcher interface {
	// Search forwards req upstream and returns the raw success response.
	// Non-2xx answers are reported as *APIError.
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)

	// Available returns true if a credential is configured.
	Available() bool
}

// BuildPayload converts a browser request into the upstream payload.
// Whitespace-only queries mean "everything accessible" and are dropped;
// any other query is forwarded exactly as given.
func BuildPayload(req SearchRequest) Payload {
	p := Payload{PageSize: PageSize(DefaultPageSize)}
	if len(req.PageSize) > 0 {
		p.PageSize = req.PageSize
	}
	if strings.TrimSpace(req.Query) != "" {
		p.Query = req.Query
	}
	return p
}

// APIError is a non-2xx answer from the upstream API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion api error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("notion api error (status %d): %s", e.StatusCode, e.Message)
}

package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// Config holds upstream API configuration.
type Config struct {
	Token    string `yaml:"token"`
	Version  string `yaml:"version"`
	Endpoint string `yaml:"endpoint"` // base URL override, mainly for tests
}

// DefaultConfig returns a Config with the public API defaults and no token.
func DefaultConfig() Config {
	return Config{
		Version:  DefaultVersion,
		Endpoint: DefaultEndpoint,
	}
}

// Client implements Searcher against the Notion REST API.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a client whose transport attaches cfg.Token as a bearer
// credential. base may be nil to use http.DefaultTransport.
func NewClient(cfg Config, base http.RoundTripper) *Client {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	// An empty token is still sent; upstream answers 401 and that is relayed.
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Transport: &oauth2.Transport{Source: src, Base: base},
		},
	}
}

func (c *Client) Available() bool { return c.cfg.Token != "" }

func (c *Client) baseURL() string {
	if c.cfg.Endpoint != "" {
		return strings.TrimRight(c.cfg.Endpoint, "/")
	}
	return DefaultEndpoint
}

// errorBody is the upstream error envelope.
type errorBody struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Search posts the payload built from req to /search.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	bodyJSON, err := json.Marshal(BuildPayload(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/search", bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Notion-Version", c.cfg.Version)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, respBody)
	}

	return &SearchResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: body}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = eb.Code
		apiErr.Message = eb.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("Request failed with status code %d", status)
	}
	return apiErr
}

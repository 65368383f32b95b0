// Package tusk provides a Go client for the `tsk serve` HTTP API.
//
// Usage:
//
//	client := tusk.NewClient("http://localhost:8080", tusk.WithAPIKey("my-key"))
//	doc, err := client.Parse(ctx, "[server]\nport = 8080", "app.tsk")
//	fmt.Println(doc.Values)
package tusk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HealthResponse is the response from the health check endpoint.
type HealthResponse struct {
	Status  string     `json:"status"`
	Uptime  string     `json:"uptime"`
	Version string     `json:"version"`
	Cache   CacheStats `json:"cache"`
}

// CacheStats reports the server-side @cache backend counters.
type CacheStats struct {
	Entries int `json:"entries"`
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
}

// ParseResponse holds an evaluated document.
type ParseResponse struct {
	Keys   int            `json:"keys"`
	Values map[string]any `json:"values"`
}

// ValidateResponse reports syntax validity without evaluating.
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ConfigValue is one key from the server's configuration hierarchy.
type ConfigValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ChangeEvent is one configuration-change notification from the watch
// stream.
type ChangeEvent struct {
	Path string `json:"path"`
}

// APIError is an error response from the runtime API.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.ErrorCode, e.Message)
}

// Option configures the Client.
type Option func(*Client)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// Client talks to a `tsk serve` instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		apiErr := APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			apiErr.ErrorCode = "unknown"
			apiErr.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return nil, &apiErr
	}

	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// Health checks the server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var result HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/healthz", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Config returns the server's full configuration hierarchy.
func (c *Client) Config(ctx context.Context) (map[string]any, error) {
	var result struct {
		Values map[string]any `json:"values"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/config", nil, &result); err != nil {
		return nil, err
	}
	return result.Values, nil
}

// ConfigKey returns a single dotted key from the configuration.
func (c *Client) ConfigKey(ctx context.Context, key string) (*ConfigValue, error) {
	var result ConfigValue
	if err := c.doJSON(ctx, http.MethodGet, "/v1/config/"+url.PathEscape(key), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Parse evaluates TuskLang source on the server and returns the
// resulting document. name labels parse errors; empty picks a default.
func (c *Client) Parse(ctx context.Context, source, name string) (*ParseResponse, error) {
	body := map[string]any{"source": source}
	if name != "" {
		body["name"] = name
	}

	var result ParseResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/parse", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate checks TuskLang syntax without evaluating operators.
func (c *Client) Validate(ctx context.Context, source, name string) (*ValidateResponse, error) {
	body := map[string]any{"source": source}
	if name != "" {
		body["name"] = name
	}

	var result ValidateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/validate", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchCallback receives each configuration-change event.
type WatchCallback func(event ChangeEvent) error

// Watch subscribes to the SSE change stream and calls the callback for
// each event until the stream ends, the callback errors, or ctx is done.
func (c *Client) Watch(ctx context.Context, callback WatchCallback) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/watch", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	eventType := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = line[7:]
		case strings.HasPrefix(line, "data: "):
			if eventType != "change" {
				eventType = ""
				continue
			}
			var event ChangeEvent
			if err := json.Unmarshal([]byte(line[6:]), &event); err != nil {
				eventType = ""
				continue
			}
			if err := callback(event); err != nil {
				return err
			}
			eventType = ""
		}
	}
	return scanner.Err()
}

// Package gateway provides uniform request dispatch against the remote
// library service: bearer-token injection, response-envelope normalization,
// and invalidation tags for downstream caches.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tag names an entity collection a mutation can invalidate.
type Tag string

const (
	TagBooks        Tag = "books"
	TagMembers      Tag = "members"
	TagLoans        Tag = "loans"
	TagReservations Tag = "reservations"
)

// AllTags lists every collection tag.
var AllTags = []Tag{TagBooks, TagMembers, TagLoans, TagReservations}

// TokenSource supplies the current access token. An empty string means no
// authenticated session; the request is sent without an Authorization header
// and the server's 401 is surfaced to the caller.
type TokenSource interface {
	AccessToken() string
}

// Operation describes one remote call.
type Operation struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}

	// Guest endpoints (login, register, refresh) must never carry a token.
	Guest bool

	// Invalidates lists the collections this mutation touches. The matching
	// tag versions are bumped only after a successful response.
	Invalidates []Tag
}

// APIError is a non-2xx response from the remote service. The message is the
// server's own wording, surfaced verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the remote service.
func IsUnauthorized(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}

// Pagination is the optional paging block some endpoints return.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Result is the normalized response shape: the payload bytes with the
// envelope stripped, plus pagination when the endpoint supplied it.
type Result struct {
	payload    json.RawMessage
	Pagination *Pagination
}

// Decode unmarshals the normalized payload into v. An empty payload (a
// success acknowledgement with no data) leaves v untouched.
func (r *Result) Decode(v interface{}) error {
	if len(r.payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.payload, v); err != nil {
		return fmt.Errorf("failed to decode response payload: %w", err)
	}
	return nil
}

// Client dispatches operations against the remote service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        *zap.SugaredLogger

	mu       sync.RWMutex
	versions map[Tag]uint64
}

// New creates a gateway client. The timeout applies per request; on timeout
// the call fails like any other transport error.
func New(baseURL string, timeout time.Duration, tokens TokenSource, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tokens:   tokens,
		log:      log,
		versions: make(map[Tag]uint64),
	}
}

// Do executes one operation and normalizes the response. Mutating calls are
// never retried here; retry policy belongs to the caller. A 401 on a
// non-guest call is returned as-is so a higher layer can decide to refresh
// and replay once.
func (c *Client) Do(ctx context.Context, op Operation) (*Result, error) {
	req, err := c.buildRequest(ctx, op)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debugw("request complete",
		"method", op.Method,
		"path", op.Path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    extractMessage(body),
		}
	}

	result, err := normalize(body)
	if err != nil {
		return nil, err
	}

	c.bump(op.Invalidates)
	return result, nil
}

// Version returns the current version counter for a tag. Consumers record the
// versions their cached views were built from and recompute when any advance.
func (c *Client) Version(tag Tag) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[tag]
}

func (c *Client) bump(tags []Tag) {
	if len(tags) == 0 {
		return
	}
	c.mu.Lock()
	for _, tag := range tags {
		c.versions[tag]++
	}
	c.mu.Unlock()
}

func (c *Client) buildRequest(ctx context.Context, op Operation) (*http.Request, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(op.Path, "/")
	if len(op.Query) > 0 {
		endpoint += "?" + op.Query.Encode()
	}

	var body io.Reader
	if op.Body != nil {
		encoded, err := json.Marshal(op.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if op.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if op.Method != http.MethodGet {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	if !op.Guest {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return req, nil
}

// normalize collapses the response shapes observed across the service's
// history into one: a flat payload plus optional pagination. Both the bare
// form (`[...]` / `{...}`) and the envelope forms (`{success, data}` and
// `{success, message: {data, pagination}}`) are handled explicitly; the shape
// is never guessed per endpoint.
func normalize(body []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &Result{}, nil
	}
	if trimmed[0] == '[' {
		return &Result{payload: trimmed}, nil
	}

	var env struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response envelope: %w", err)
	}

	// Not an envelope at all: a bare object payload.
	if env.Success == nil && env.Data == nil && env.Message == nil {
		return &Result{payload: trimmed}, nil
	}

	if env.Success != nil && !*env.Success {
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Message:    extractMessage(trimmed),
		}
	}

	if env.Data != nil {
		return &Result{payload: env.Data}, nil
	}

	if env.Message != nil && len(env.Message) > 0 && env.Message[0] == '{' {
		var inner struct {
			Data       json.RawMessage `json:"data"`
			Pagination *Pagination     `json:"pagination"`
		}
		if err := json.Unmarshal(env.Message, &inner); err != nil {
			return nil, fmt.Errorf("failed to decode message envelope: %w", err)
		}
		if inner.Data != nil {
			return &Result{payload: inner.Data, Pagination: inner.Pagination}, nil
		}
		// An enveloped object without a data field is itself the payload.
		return &Result{payload: env.Message}, nil
	}

	// Success with a plain string message: an acknowledgement, no payload.
	return &Result{}, nil
}

// extractMessage digs a human-readable message out of an error body,
// tolerating string messages, nested envelopes, and non-JSON bodies.
func extractMessage(body []byte) string {
	var env struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return strings.TrimSpace(string(body))
	}
	if env.Error != "" {
		return env.Error
	}
	if len(env.Message) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(env.Message, &s); err == nil {
		return s
	}
	var inner struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(env.Message, &inner); err == nil && inner.Message != "" {
		return inner.Message
	}
	return strings.TrimSpace(string(env.Message))
}

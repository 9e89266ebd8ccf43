// Package deskapi implements the AuthAPI and ResourceAPI ports against the
// desk-booking REST backend.
package deskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gregjones/httpcache"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.AuthAPI     = (*Client)(nil)
	_ driven.ResourceAPI = (*Client)(nil)
)

// maxErrorBody caps how much of a failed response is read for its detail.
const maxErrorBody = 64 << 10

// Options tunes the client's timeout and retry policy.
type Options struct {
	// Timeout bounds every request, including retries of a read.
	Timeout time.Duration
	// ReadRetries is how many times a failed GET is retried. Mutations never retry.
	ReadRetries int
	// RetryInitialInterval is the first backoff delay; defaults to 250ms.
	RetryInitialInterval time.Duration
	Logger               *slog.Logger
}

// Client talks to the desk-booking backend with the following transport stack:
//  1. httpcache (conditional GET caching, flushed whenever the session ends)
//  2. the caller's RoundTripper (http.DefaultTransport in production)
type Client struct {
	http        *http.Client
	baseURL     *url.URL
	cache       *sessionCache
	readRetries int
	retryStart  time.Duration
	logger      *slog.Logger
}

// NewClient creates a backend client for baseURL, e.g. http://localhost:8000.
func NewClient(baseURL string, opts Options) (*Client, error) {
	return NewClientWithHTTPClient(&http.Client{Timeout: opts.Timeout}, baseURL, opts)
}

// NewClientWithHTTPClient creates a Client on top of a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
// The client's Transport is wrapped with the response cache; the http.Client
// passed in is not modified.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	cache := newSessionCache()
	cacheTransport := httpcache.NewTransport(cache)
	cacheTransport.Transport = base
	cacheTransport.MarkCachedResponses = true

	wrapped := *httpClient
	wrapped.Transport = cacheTransport
	if opts.Timeout > 0 {
		wrapped.Timeout = opts.Timeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retryStart := opts.RetryInitialInterval
	if retryStart <= 0 {
		retryStart = 250 * time.Millisecond
	}

	return &Client{
		http:        &wrapped,
		baseURL:     u,
		cache:       cache,
		readRetries: max(opts.ReadRetries, 0),
		retryStart:  retryStart,
		logger:      logger.With("component", "deskapi"),
	}, nil
}

// ResetCache drops every cached response. It is registered as a session-end
// hook so nothing fetched with an old credential is served afterwards.
func (c *Client) ResetCache() {
	c.cache.Reset()
}

// endpoint joins path segments onto the base URL, escaping each segment.
func (c *Client) endpoint(segments ...string) *url.URL {
	u := *c.baseURL
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(escaped, "/")
	return &u
}

// newRequest builds a request carrying the bearer token. An empty token is
// rejected here so no unauthenticated request ever leaves the process.
func (c *Client) newRequest(ctx context.Context, method string, u *url.URL, accessToken string, body any) (*http.Request, error) {
	if accessToken == "" {
		return nil, model.ErrUnauthorized
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s body: %w", method, u.Path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("creating %s %s request: %w", method, u.Path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// send performs one round trip and returns the response body of a 2xx reply.
// Any other status becomes a *model.APIError.
func (c *Client) send(req *http.Request) ([]byte, http.Header, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"cached", resp.Header.Get(httpcache.XFromCache) != "",
		"request_id", req.Header.Get("X-Request-ID"),
		"duration", time.Since(start).Round(time.Microsecond),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, resp.Header, &model.APIError{
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(data),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, fmt.Errorf("reading %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return data, resp.Header, nil
}

// read issues an authorized GET, retrying transient failures per the retry policy.
func (c *Client) read(ctx context.Context, u *url.URL, accessToken string) ([]byte, http.Header, error) {
	var (
		data   []byte
		header http.Header
	)
	err := c.retryRead(ctx, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, u, accessToken, nil)
		if err != nil {
			return err
		}
		data, header, err = c.send(req)
		return err
	})
	return data, header, err
}

// mutate issues an authorized non-GET request exactly once. A successful
// mutation flushes cached reads because collection listings may have changed.
func (c *Client) mutate(ctx context.Context, method string, u *url.URL, accessToken string, body any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, u, accessToken, body)
	if err != nil {
		return nil, err
	}
	data, _, err := c.send(req)
	if err != nil {
		return nil, err
	}
	c.cache.Reset()
	return data, nil
}

// errorDetail extracts FastAPI's {"detail": ...} message, falling back to the raw body.
func errorDetail(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil || len(payload.Detail) == 0 {
		return string(trimmed)
	}

	var msg string
	if err := json.Unmarshal(payload.Detail, &msg); err == nil {
		return msg
	}
	// Validation errors arrive as a list of objects; keep them verbatim.
	return string(payload.Detail)
}

// decodeRecord decodes a JSON object, keeping numbers exact.
func decodeRecord(data []byte) (model.Record, error) {
	var rec model.Record
	if err := decodeJSON(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// decodeRecords decodes a JSON array of objects, keeping numbers exact.
func decodeRecords(data []byte) ([]model.Record, error) {
	var recs []model.Record
	if err := decodeJSON(data, &recs); err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []model.Record{}
	}
	return recs, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty response body")
		}
		return err
	}
	return nil
}

// Package httpclient provides the bounded HTTP client used to call the
// remote roster system.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/memberhub/roster-sync/internal/versions"
)

const (
	// DefaultTimeout bounds each request, including reading the body.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum accepted response size (100MB).
	MaxResponseSize = 100 * 1024 * 1024

	// maxErrorBody is how much of a failed response body is kept.
	maxErrorBody = 64 * 1024
)

// Client performs JSON requests against the remote roster API.
type Client interface {
	// Get performs a GET request and returns the response body.
	Get(ctx context.Context, url string, opts ...RequestOption) ([]byte, error)
	// PostJSON encodes payload as JSON, POSTs it and returns the response body.
	PostJSON(ctx context.Context, url string, payload any, opts ...RequestOption) ([]byte, error)
}

// RequestOption decorates an outgoing request.
type RequestOption func(*http.Request)

// WithToken sets the Authorization header from tok.
func WithToken(tok *oauth2.Token) RequestOption {
	return func(r *http.Request) {
		if tok != nil {
			tok.SetAuthHeader(r)
		}
	}
}

// WithBearer sets "Authorization: Bearer <token>".
func WithBearer(token string) RequestOption {
	return WithToken(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// Option configures a DefaultClient.
type Option func(*DefaultClient)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *DefaultClient) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *DefaultClient) { c.client.Transport = rt }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *DefaultClient) { c.userAgent = ua }
}

// DefaultClient is the net/http backed Client.
type DefaultClient struct {
	client    *http.Client
	userAgent string
}

var _ Client = (*DefaultClient)(nil)

// NewDefaultClient creates a client with a DefaultTimeout per request.
func NewDefaultClient(opts ...Option) *DefaultClient {
	c := &DefaultClient{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: versions.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, url string, opts ...RequestOption) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, opts)
}

// PostJSON performs an HTTP POST request with a JSON body
func (c *DefaultClient) PostJSON(ctx context.Context, url string, payload any, opts ...RequestOption) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, opts)
}

func (c *DefaultClient) do(req *http.Request, opts []RequestOption) ([]byte, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, NewHTTPError(resp.StatusCode, req.URL.String(), resp.Status, errBody)
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrResponseTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}

	return body, nil
}

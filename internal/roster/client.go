// Package roster fetches complete member rosters from the remote roster
// system, hiding its two pagination models behind a single Cursor.
package roster

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks -source=client.go Fetcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/memberhub/roster-sync/internal/config"
	"github.com/memberhub/roster-sync/internal/httpclient"
	"github.com/memberhub/roster-sync/internal/membership"
	"github.com/memberhub/roster-sync/internal/otel"
)

// Fetcher retrieves a tenant's full remote roster.
type Fetcher interface {
	// FetchFullRoster walks every page and returns the concatenated
	// records. Any page failure aborts the fetch with a *FetchError.
	FetchFullRoster(ctx context.Context, tenant membership.Tenant, token *oauth2.Token) ([]membership.RawRecord, error)
}

// Settings is the resolved remote configuration used by Client.
type Settings struct {
	Pagination      string
	ListURL         string
	PaginationURL   string
	PageSize        int
	StatusCode      int
	RequestTimeout  time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// SettingsFromConfig resolves defaults from the remote section.
func SettingsFromConfig(rc *config.RemoteConfig) Settings {
	initial, maxInterval := rc.GetRetryIntervals()
	return Settings{
		Pagination:      rc.GetPagination(),
		ListURL:         rc.ListURL(),
		PaginationURL:   rc.PaginationURL(),
		PageSize:        rc.GetPageSize(),
		StatusCode:      rc.GetStatusCode(),
		RequestTimeout:  rc.GetRequestTimeout(),
		MaxAttempts:     rc.GetMaxAttempts(),
		InitialInterval: initial,
		MaxInterval:     maxInterval,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for page and retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer enables a span per roster fetch.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// Client is the HTTP backed Fetcher.
type Client struct {
	http   httpclient.Client
	cfg    Settings
	logger *slog.Logger
	tracer trace.Tracer
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a roster client. Zero settings fall back to the
// config package defaults.
func NewClient(httpClient httpclient.Client, cfg Settings, opts ...Option) *Client {
	if cfg.Pagination == "" {
		cfg.Pagination = config.PaginationOffset
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = config.DefaultPageSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = config.DefaultRequestTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}

	c := &Client{
		http:   httpClient,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cursor returns a fresh cursor for the configured pagination model.
func (c *Client) Cursor(token *oauth2.Token) Cursor {
	if c.cfg.Pagination == config.PaginationPages {
		return &pageCursor{client: c, token: token, page: 1}
	}
	return &offsetCursor{client: c, token: token}
}

// FetchFullRoster implements Fetcher.
func (c *Client) FetchFullRoster(
	ctx context.Context,
	tenant membership.Tenant,
	token *oauth2.Token,
) (_ []membership.RawRecord, retErr error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "roster.FetchFullRoster",
		trace.WithAttributes(
			otel.AttrTenantID.String(tenant.ID),
			otel.AttrPagination.String(c.cfg.Pagination),
			otel.AttrPageSize.Int(c.cfg.PageSize),
		))
	defer func() {
		otel.RecordError(span, retErr)
		span.End()
	}()

	cursor := c.Cursor(token)
	var records []membership.RawRecord
	pages := 0
	for cursor.HasMore() {
		members, err := cursor.Next(ctx)
		if err != nil {
			return nil, newFetchError(tenant.ID, err)
		}
		pages++
		for _, m := range members {
			records = append(records, m.RawRecord())
		}
		c.logger.Debug("Fetched roster page",
			"tenant_id", tenant.ID,
			"page_records", len(members),
			"total_records", len(records))
	}

	span.SetAttributes(
		otel.AttrResultCount.Int(len(records)),
		attribute.Int("roster.pages", pages),
	)
	return records, nil
}

// fetch performs one page request under the per-page timeout, retrying
// retryable failures with exponential backoff.
func (c *Client) fetch(ctx context.Context, position string, do func(context.Context) ([]byte, error)) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialInterval
	policy.MaxInterval = c.cfg.MaxInterval

	attempt := func() ([]byte, error) {
		pageCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()

		body, err := do(pageCtx)
		if err != nil && (ctx.Err() != nil || !httpclient.IsRetryable(err)) {
			return nil, backoff.Permanent(err)
		}
		return body, err
	}

	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("Retrying roster page",
				"position", position,
				"wait", wait,
				"error", err)
		}),
	)
}

package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/memberhub/roster-sync/internal/clock"
	"github.com/memberhub/roster-sync/internal/httpclient"
	"github.com/memberhub/roster-sync/internal/membership"
)

const defaultTokenTTL = time.Hour

// SystemLoginConfig holds the system-level login parameters.
type SystemLoginConfig struct {
	LoginURL     string
	Username     string
	Password     string
	ServiceToken string

	// DefaultTTL is assumed when the issued token carries no exp claim.
	DefaultTTL time.Duration
}

// SystemLoginOption configures a SystemLoginProvider.
type SystemLoginOption func(*SystemLoginProvider)

// WithClock sets the clock used to compute token expiry.
func WithClock(c clock.Clock) SystemLoginOption {
	return func(p *SystemLoginProvider) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SystemLoginOption {
	return func(p *SystemLoginProvider) { p.logger = l }
}

// SystemLoginProvider logs into the remote system with a fixed system
// account and shares the issued token across all tenants. The token is
// reused until it expires.
type SystemLoginProvider struct {
	client httpclient.Client
	cfg    SystemLoginConfig
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	source oauth2.TokenSource
}

var _ Provider = (*SystemLoginProvider)(nil)

type loginRequest struct {
	Username string `json:"usuario"`
	Password string `json:"senha"`
}

type loginResponse struct {
	Token string `json:"token_usuario"`
}

// NewSystemLoginProvider creates a SystemLoginProvider.
func NewSystemLoginProvider(client httpclient.Client, cfg SystemLoginConfig, opts ...SystemLoginOption) *SystemLoginProvider {
	p := &SystemLoginProvider{
		client: client,
		cfg:    cfg,
		clock:  clock.NewSystem(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.DefaultTTL <= 0 {
		p.cfg.DefaultTTL = defaultTokenTTL
	}
	return p
}

// Prepare logs in and caches the token for the rest of the run. Any
// failure wraps ErrAuthenticationFailed.
func (p *SystemLoginProvider) Prepare(ctx context.Context) error {
	tok, err := p.login(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.source = oauth2.ReuseTokenSource(tok, &loginSource{ctx: ctx, provider: p})
	p.mu.Unlock()
	return nil
}

// Token returns the shared token, logging in again once it has expired.
func (p *SystemLoginProvider) Token(ctx context.Context, _ membership.Tenant) (*oauth2.Token, error) {
	p.mu.Lock()
	source := p.source
	p.mu.Unlock()

	if source == nil {
		if err := p.Prepare(ctx); err != nil {
			return nil, err
		}
		p.mu.Lock()
		source = p.source
		p.mu.Unlock()
	}

	tok, err := source.Token()
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func (p *SystemLoginProvider) login(ctx context.Context) (*oauth2.Token, error) {
	body, err := p.client.PostJSON(ctx, p.cfg.LoginURL,
		loginRequest{Username: p.cfg.Username, Password: p.cfg.Password},
		httpclient.WithBearer(p.cfg.ServiceToken),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: login request: %w", ErrAuthenticationFailed, err)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed login response: %w", ErrAuthenticationFailed, err)
	}
	access := strings.TrimSpace(resp.Token)
	if access == "" {
		if msg := httpclient.RemoteMessage(body); msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrAuthenticationFailed, msg)
		}
		return nil, fmt.Errorf("%w: login response carries no token", ErrAuthenticationFailed)
	}

	expiry := p.expiry(access)
	p.logger.InfoContext(ctx, "System login succeeded", "expires_at", expiry)

	return &oauth2.Token{AccessToken: access, TokenType: "Bearer", Expiry: expiry}, nil
}

// expiry reads the exp claim when the token is a JWT. Signature
// verification is left to the remote system.
func (p *SystemLoginProvider) expiry(access string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return p.clock.Now().Add(p.cfg.DefaultTTL)
}

// loginSource adapts login to oauth2.TokenSource for ReuseTokenSource.
type loginSource struct {
	ctx      context.Context
	provider *SystemLoginProvider
}

func (s *loginSource) Token() (*oauth2.Token, error) {
	return s.provider.login(s.ctx)
}

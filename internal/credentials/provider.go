// Package credentials resolves the bearer credential used to call the
// remote roster API on behalf of a tenant.
package credentials

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks -source=provider.go Provider

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/memberhub/roster-sync/internal/config"
	"github.com/memberhub/roster-sync/internal/httpclient"
	"github.com/memberhub/roster-sync/internal/membership"
)

var (
	// ErrCredentialUnavailable means the tenant has no usable token. Only
	// that tenant is skipped.
	ErrCredentialUnavailable = errors.New("credential unavailable")

	// ErrAuthenticationFailed means the system login was rejected. Under
	// the system strategy no tenant can be processed.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// Provider resolves credentials for the remote roster API.
type Provider interface {
	// Prepare runs once per reconciliation run before any tenant is
	// processed. A failure aborts the run.
	Prepare(ctx context.Context) error

	// Token returns the bearer credential for tenant.
	Token(ctx context.Context, tenant membership.Tenant) (*oauth2.Token, error)
}

// NewProvider returns the provider selected by cfg.Strategy.
func NewProvider(cfg *config.AuthConfig, client httpclient.Client, opts ...SystemLoginOption) (Provider, error) {
	switch cfg.GetStrategy() {
	case config.AuthStrategyTenant:
		return NewTenantTokenProvider(), nil
	case config.AuthStrategySystem:
		password, err := cfg.GetPassword()
		if err != nil {
			return nil, err
		}
		serviceToken, err := cfg.GetServiceToken()
		if err != nil {
			return nil, err
		}
		return NewSystemLoginProvider(client, SystemLoginConfig{
			LoginURL:     cfg.LoginURL,
			Username:     cfg.Username,
			Password:     password,
			ServiceToken: serviceToken,
			DefaultTTL:   cfg.GetTokenTTL(),
		}, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported credential strategy %q", cfg.Strategy)
	}
}

// IsFatal reports whether err prevents every tenant from being processed.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

package credentials

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"

	"github.com/memberhub/roster-sync/internal/membership"
)

// TenantTokenProvider reads the static token stored on each tenant. It
// makes no network calls.
type TenantTokenProvider struct{}

var _ Provider = TenantTokenProvider{}

// NewTenantTokenProvider creates a TenantTokenProvider.
func NewTenantTokenProvider() TenantTokenProvider {
	return TenantTokenProvider{}
}

// Prepare implements Provider.
func (TenantTokenProvider) Prepare(context.Context) error {
	return nil
}

// Token implements Provider.
func (TenantTokenProvider) Token(_ context.Context, tenant membership.Tenant) (*oauth2.Token, error) {
	token := strings.TrimSpace(tenant.RemoteToken)
	if token == "" {
		return nil, fmt.Errorf("%w: tenant %s has no remote token", ErrCredentialUnavailable, tenant.ID)
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

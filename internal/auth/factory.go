package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/memberhub/roster-sync/internal/config"
)

// NewAuthMiddleware creates the ops API authentication middleware. A nil
// config or the anonymous mode returns a pass-through middleware.
func NewAuthMiddleware(cfg *config.APIAuthConfig) (func(http.Handler) http.Handler, error) {
	switch cfg.GetMode() {
	case config.APIAuthModeAnonymous:
		slog.Info("auth: anonymous mode")
		return anonymousMiddleware, nil
	case config.APIAuthModeJWT:
		secret, err := cfg.GetSecret()
		if err != nil {
			return nil, err
		}
		validator, err := NewHMACValidator([]byte(secret), cfg.Issuer, cfg.Audience)
		if err != nil {
			return nil, err
		}

		publicPaths := cfg.PublicPaths
		if len(publicPaths) == 0 {
			publicPaths = DefaultPublicPaths
		}

		slog.Info("auth: JWT mode", "issuer", cfg.Issuer, "audience", cfg.Audience)
		m := NewBearerMiddleware(validator, cfg.Realm)
		return WrapWithPublicPaths(m.Middleware, publicPaths), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

func anonymousMiddleware(next http.Handler) http.Handler {
	return next
}

package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gprojets/gprojets/config"
	"github.com/gprojets/gprojets/globals"
)

// OIDCVerifier verifies bearer tokens as OIDC ID tokens against the
// configured providers. Providers are tried in configuration order, the
// first successful verification wins.
type OIDCVerifier struct {
	configs []config.OIDCConfig
}

func NewOIDCVerifier(configs []config.OIDCConfig) *OIDCVerifier {
	return &OIDCVerifier{configs: configs}
}

func (v *OIDCVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if len(v.configs) == 0 {
		return nil, fmt.Errorf("no oidc provider configured")
	}
	var lastErr error
	for _, c := range v.configs {
		provider, err := oidc.NewProvider(ctx, c.ProviderUrl)
		if err != nil {
			globals.AppLogger.Warn("could not reach oidc provider", "provider", c.Name, "error", err)
			lastErr = err
			continue
		}
		conf := oidc.Config{}
		if c.ClientId == "" {
			conf.SkipClientIDCheck = true
		} else {
			conf.ClientID = c.ClientId
		}
		idToken, err := provider.Verifier(&conf).Verify(ctx, token)
		if err != nil {
			lastErr = err
			continue
		}
		claims := make(map[string]interface{})
		if err := idToken.Claims(&claims); err != nil {
			lastErr = err
			continue
		}
		ident := identityFromClaims(claims)
		if ident.Subject == "" {
			ident.Subject = idToken.Subject
		}
		return ident, nil
	}
	return nil, fmt.Errorf("token not accepted by any provider: %w", lastErr)
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/tcriess/terrace-buddy/config"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/types"
)

// OIDCVerifier verifies ID tokens of an OpenID Connect provider. The provider discovery happens on first use
// and is retried on the next call if it fails.
type OIDCVerifier struct {
	cfg      config.OIDCConfig
	verifier *oidc.IDTokenVerifier
	sync.Mutex
}

func NewOIDCVerifier(cfg config.OIDCConfig) *OIDCVerifier {
	return &OIDCVerifier{cfg: cfg}
}

// NewStaticOIDCVerifier creates a verifier that does not use discovery, the keys are given directly.
func NewStaticOIDCVerifier(issuer string, keySet oidc.KeySet, conf *oidc.Config) *OIDCVerifier {
	return &OIDCVerifier{
		cfg:      config.OIDCConfig{ProviderUrl: issuer, ClientId: conf.ClientID},
		verifier: oidc.NewVerifier(issuer, keySet, conf),
	}
}

func (v *OIDCVerifier) getVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.Lock()
	defer v.Unlock()
	if v.verifier != nil {
		return v.verifier, nil
	}
	provider, err := oidc.NewProvider(ctx, v.cfg.ProviderUrl)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", v.cfg.Name, err)
	}
	conf := oidc.Config{}
	if v.cfg.ClientId == "" {
		conf.SkipClientIDCheck = true
	} else {
		conf.ClientID = v.cfg.ClientId
	}
	v.verifier = provider.Verifier(&conf)
	return v.verifier, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*types.Identity, error) {
	if rawToken == "" {
		return nil, ErrMissingToken
	}
	verifier, err := v.getVerifier(ctx)
	if err != nil {
		globals.AppLogger.Error("could not set up oidc verifier", "error", err)
		return nil, ErrInvalidToken
	}
	idToken, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		globals.AppLogger.Debug("oidc token rejected", "provider", v.cfg.Name, "error", err)
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims := struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}{}
	err = idToken.Claims(&claims)
	if err != nil {
		return nil, ErrInvalidToken
	}
	identity := &types.Identity{
		Id:          idToken.Subject,
		DisplayName: claims.Name,
		Role:        claims.Role,
	}
	if identity.DisplayName == "" {
		identity.DisplayName = claims.Email
	}
	if identity.Role == "" {
		identity.Role = types.RoleUser
	}
	return identity, nil
}

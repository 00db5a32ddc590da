package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/tcriess/terrace-buddy/config"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/types"
)

var (
	// ErrAuthentication is the parent of every credential failure.
	ErrAuthentication = errors.New("authentication error")
	ErrMissingToken   = fmt.Errorf("%w: no token", ErrAuthentication)
	ErrInvalidToken   = fmt.Errorf("%w: invalid token", ErrAuthentication)
	ErrExpiredToken   = fmt.Errorf("%w: token has expired", ErrAuthentication)
)

// Verifier validates a bearer credential and returns the identity encoded in it.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*types.Identity, error)
}

// Chain tries each verifier in turn, the first success wins. If all fail, the error of the first verifier is
// returned (so a plain HS256 setup keeps its precise error).
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, rawToken string) (*types.Identity, error) {
	if rawToken == "" {
		return nil, ErrMissingToken
	}
	var firstErr error
	for _, v := range c {
		identity, err := v.Verify(ctx, rawToken)
		if err == nil {
			return identity, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		return nil, ErrInvalidToken
	}
	return nil, firstErr
}

// NewVerifier builds the verifier chain from the configuration: the HS256 verifier if a secret is set, followed
// by one verifier per configured OIDC provider.
func NewVerifier(cfg *config.Config) (Verifier, error) {
	chain := Chain{}
	if cfg.AuthConfig.JWTSecret != "" {
		chain = append(chain, NewJWTVerifier(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.JWTIssuer, cfg.AuthConfig.TokenTTL))
	}
	for _, oidcCfg := range cfg.AuthConfig.OIDCConfigs {
		if oidcCfg.ProviderUrl == "" {
			globals.AppLogger.Warn("oidc provider without url, skipping", "name", oidcCfg.Name)
			continue
		}
		chain = append(chain, NewOIDCVerifier(oidcCfg))
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no credential verifier configured (set auth.jwt_secret or an oidc provider)")
	}
	return chain, nil
}

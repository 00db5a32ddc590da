package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/types"
)

// AuthenticationErrorMessage is the only thing a rejected client gets to see.
const AuthenticationErrorMessage = "Authentication error"

// TokenExtractor pulls the raw credential out of a request.
type TokenExtractor func(r *http.Request) string

type identityKey struct{}

// HandshakeToken is the extractor for websocket connections: the handshake auth field (query parameter
// "token"), the legacy "token" header or a bearer authorization header.
func HandshakeToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	return bearerToken(r)
}

// RequestToken is the extractor for ordinary HTTP requests: the "token" cookie or a bearer authorization header.
func RequestToken(r *http.Request) string {
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *types.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity attached by Gate, or nil.
func IdentityFromContext(ctx context.Context) *types.Identity {
	identity, _ := ctx.Value(identityKey{}).(*types.Identity)
	return identity
}

// RejectFunc writes the response for a rejected request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, err error)

// RejectPlain answers with 401 and the opaque authentication error message.
func RejectPlain(w http.ResponseWriter, _ *http.Request, _ error) {
	http.Error(w, AuthenticationErrorMessage, http.StatusUnauthorized)
}

// Gate verifies the credential of every request before it reaches the wrapped handler. Unauthenticated requests
// are rejected via reject (RejectPlain if nil), the verifier error itself is only logged.
func Gate(verifier Verifier, extract TokenExtractor, reject RejectFunc) mux.MiddlewareFunc {
	if reject == nil {
		reject = RejectPlain
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.Verify(r.Context(), extract(r))
			if err != nil {
				globals.AppLogger.Debug("rejecting unauthenticated request", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
				reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

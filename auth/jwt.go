package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tcriess/terrace-buddy/types"
)

// Claims are the claims of the access tokens issued by the account service.
type Claims struct {
	UserId string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies (and issues) HS256 signed access tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewJWTVerifier(secret, issuer string, ttl time.Duration) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}
}

// Verify parses and validates rawToken. Tokens without an issuer are accepted for compatibility with the
// tokens issued before the issuer claim was introduced.
func (v *JWTVerifier) Verify(_ context.Context, rawToken string) (*types.Identity, error) {
	if rawToken == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.UserId == "" {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != "" && v.issuer != "" && claims.Issuer != v.issuer {
		return nil, ErrInvalidToken
	}
	role := claims.Role
	if role == "" {
		role = types.RoleUser
	}
	return &types.Identity{
		Id:          claims.UserId,
		DisplayName: claims.Name,
		Role:        role,
	}, nil
}

// Issue creates a signed token for user, valid for the configured ttl.
func (v *JWTVerifier) Issue(user types.User) (string, error) {
	return v.issue(user, time.Now(), v.ttl)
}

func (v *JWTVerifier) issue(user types.User, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		UserId: user.Id,
		Name:   user.Name,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   user.Id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

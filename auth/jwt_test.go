package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/terrace-buddy/types"
)

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier("secret", "terrace-buddy", time.Hour)
	token, err := v.Issue(types.User{Id: "u1", Name: "Alice", Role: types.RoleCommunityAdmin})
	require.NoError(t, err)

	identity, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, &types.Identity{Id: "u1", DisplayName: "Alice", Role: types.RoleCommunityAdmin}, identity)

	_, err = v.Verify(context.Background(), "")
	assert.True(t, errors.Is(err, ErrMissingToken))
	assert.True(t, errors.Is(err, ErrAuthentication))

	_, err = v.Verify(context.Background(), "garbage")
	assert.True(t, errors.Is(err, ErrInvalidToken))
	assert.True(t, errors.Is(err, ErrAuthentication))

	other := NewJWTVerifier("other-secret", "terrace-buddy", time.Hour)
	_, err = other.Verify(context.Background(), token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestJWTVerifierDefaultsRole(t *testing.T) {
	v := NewJWTVerifier("secret", "", time.Hour)
	token, err := v.Issue(types.User{Id: "u1", Name: "Alice"})
	require.NoError(t, err)
	identity, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, identity.Role)
}

func TestJWTVerifierExpired(t *testing.T) {
	v := NewJWTVerifier("secret", "terrace-buddy", time.Hour)
	token, err := v.issue(types.User{Id: "u1", Name: "Alice"}, time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), token)
	assert.True(t, errors.Is(err, ErrExpiredToken))
	assert.True(t, errors.Is(err, ErrAuthentication))
}

func TestJWTVerifierRejectsForeignIssuer(t *testing.T) {
	issuer := NewJWTVerifier("secret", "somebody-else", time.Hour)
	token, err := issuer.Issue(types.User{Id: "u1", Name: "Alice"})
	require.NoError(t, err)
	v := NewJWTVerifier("secret", "terrace-buddy", time.Hour)
	_, err = v.Verify(context.Background(), token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestJWTVerifierRejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{UserId: "u1", Name: "Alice"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	v := NewJWTVerifier("secret", "", time.Hour)
	_, err = v.Verify(context.Background(), token)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	// the id claim is mandatory
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Name: "Alice"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestChain(t *testing.T) {
	first := NewJWTVerifier("first", "", time.Hour)
	second := NewJWTVerifier("second", "", time.Hour)
	chain := Chain{first, second}

	token, err := second.Issue(types.User{Id: "u2", Name: "Bob"})
	require.NoError(t, err)
	identity, err := chain.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u2", identity.Id)

	_, err = chain.Verify(context.Background(), "")
	assert.True(t, errors.Is(err, ErrMissingToken))

	_, err = Chain{}.Verify(context.Background(), token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

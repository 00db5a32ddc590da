package auth

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/terrace-buddy/types"
)

func TestTokenExtraction(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
	r.Header.Set("token", "header")
	r.Header.Set("Authorization", "Bearer bearer")
	assert.Equal(t, "query", HandshakeToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("token", "header")
	r.Header.Set("Authorization", "Bearer bearer")
	assert.Equal(t, "header", HandshakeToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "bearer bearer")
	assert.Equal(t, "bearer", HandshakeToken(r))
	assert.Equal(t, "bearer", RequestToken(r))

	r = httptest.NewRequest(http.MethodGet, "/api", nil)
	r.AddCookie(&http.Cookie{Name: "token", Value: "cookie"})
	r.Header.Set("Authorization", "Bearer bearer")
	assert.Equal(t, "cookie", RequestToken(r))

	r = httptest.NewRequest(http.MethodGet, "/api", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", RequestToken(r))
}

func TestGate(t *testing.T) {
	v := NewJWTVerifier("secret", "", time.Hour)
	router := mux.NewRouter()
	router.Use(Gate(v, RequestToken, nil))
	router.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		_, _ = w.Write([]byte(identity.Id))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body, _ := ioutil.ReadAll(rec.Body)
	assert.Equal(t, AuthenticationErrorMessage+"\n", string(body))

	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer nonsense")
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := v.Issue(types.User{Id: "u1", Name: "Alice"})
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())
}

func TestIdentityFromEmptyContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, IdentityFromContext(r.Context()))
}

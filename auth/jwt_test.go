package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/streaks/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = []byte("test-key")

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(t *testing.T, h http.Handler, token string) int {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	auth.GetJwtAuthMiddleware(key)(h).ServeHTTP(w, r)
	return w.Code
}

func TestValidateJWTRoundTrip(t *testing.T) {
	id := uuid.New()
	tok, err := auth.GenerateJWT("alice", "a@example.com", id, []string{auth.ScopeAdmin}, key, time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateJWT(tok, key)
	require.NoError(t, err)
	got, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.True(t, claims.HasScope(auth.ScopeAdmin))

	_, err = auth.ValidateJWT(tok, []byte("other"))
	require.Error(t, err)
}

func TestRequireUser(t *testing.T) {
	tok, err := auth.GenerateJWT("bob", "", uuid.New(), nil, key, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, serve(t, auth.RequireUser(okHandler()), ""))
	assert.Equal(t, http.StatusNoContent, serve(t, auth.RequireUser(okHandler()), tok))
	assert.Equal(t, http.StatusUnauthorized, serve(t, auth.RequireUser(okHandler()), "garbage"))
}

func TestRequireScope(t *testing.T) {
	user, err := auth.GenerateJWT("bob", "", uuid.New(), nil, key, time.Hour)
	require.NoError(t, err)
	admin, err := auth.GenerateJWT("root", "", uuid.New(), []string{auth.ScopeAdmin}, key, time.Hour)
	require.NoError(t, err)

	h := auth.RequireScope(auth.ScopeAdmin)(okHandler())
	assert.Equal(t, http.StatusForbidden, serve(t, h, user))
	assert.Equal(t, http.StatusNoContent, serve(t, h, admin))
}

func TestExpiredTokenRejected(t *testing.T) {
	tok, err := auth.GenerateJWT("bob", "", uuid.New(), nil, key, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(t, auth.RequireUser(okHandler()), tok))
}

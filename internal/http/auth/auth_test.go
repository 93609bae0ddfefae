package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okulib/circulate/internal/http/auth"
)

var testSecret = []byte("unit-test-secret")

func TestToken_Roundtrip(t *testing.T) {
	userID := uuid.New()

	token, err := auth.GenerateToken(testSecret, userID, auth.RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := auth.ParseToken(testSecret, token)
	require.NoError(t, err)

	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := auth.GenerateToken(testSecret, uuid.New(), auth.RoleStudent, time.Hour)
	require.NoError(t, err)

	_, err = auth.ParseToken([]byte("a different secret"), token)
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := auth.GenerateToken(testSecret, uuid.New(), auth.RoleStudent, -time.Minute)
	require.NoError(t, err)

	_, err = auth.ParseToken(testSecret, token)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	userID := uuid.New()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.FromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, userID, claims.UserID)
		w.WriteHeader(http.StatusNoContent)
	})

	handler := auth.Middleware(testSecret)(next)

	t.Run("ValidToken", func(t *testing.T) {
		token, err := auth.GenerateToken(testSecret, userID, auth.RoleStudent, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("MissingHeader", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("GarbageToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	handler := auth.Middleware(testSecret)(auth.RequireRole(auth.RoleAdmin)(next))

	request := func(role string) *httptest.ResponseRecorder {
		token, err := auth.GenerateToken(testSecret, uuid.New(), role, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		return rec
	}

	assert.Equal(t, http.StatusNoContent, request(auth.RoleAdmin).Code)
	assert.Equal(t, http.StatusForbidden, request(auth.RoleStudent).Code)
}

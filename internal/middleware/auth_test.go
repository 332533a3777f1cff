package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func callAdminAuth(configuredKey, providedKey string, setHeader bool) (*httptest.ResponseRecorder, bool) {
	m := NewAdminAuthMiddleware(configuredKey)

	nextCalled := false
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/addcode", nil)
	if setHeader {
		req.Header.Set(APIKeyHeader, providedKey)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, nextCalled
}

func TestAdminAuthMiddleware(t *testing.T) {
	t.Run("correct key passes", func(t *testing.T) {
		rec, nextCalled := callAdminAuth("sekrit", "sekrit", true)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, nextCalled)
	})

	t.Run("wrong key is rejected", func(t *testing.T) {
		rec, nextCalled := callAdminAuth("sekrit", "wrong", true)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, nextCalled)
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		rec, nextCalled := callAdminAuth("sekrit", "", false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, nextCalled)
	})

	t.Run("empty configured key fails closed", func(t *testing.T) {
		// An empty expected secret must never match, not even an empty or
		// absent header.
		rec, nextCalled := callAdminAuth("", "", true)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, nextCalled)

		rec, nextCalled = callAdminAuth("", "", false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, nextCalled)
	})
}

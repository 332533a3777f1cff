package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/verigate/code-server-go/internal/errors"
	"github.com/verigate/code-server-go/internal/httputil"
	"github.com/verigate/code-server-go/internal/util"
)

const APIKeyHeader = "X-API-Key"

// AdminAuthMiddleware gates administrative endpoints behind a static shared
// secret. An empty configured key fails closed: every request is rejected,
// including those with an empty or absent header.
type AdminAuthMiddleware struct {
	apiKey string
}

func NewAdminAuthMiddleware(apiKey string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{apiKey: apiKey}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.apiKey == "" {
			log.Warn().Str("path", r.URL.Path).Msg("admin request rejected: ADMIN_API_KEY is not configured")
			httputil.WriteError(w, apperrors.Unauthorized())
			return
		}

		provided := r.Header.Get(APIKeyHeader)
		if !util.ConstantTimeEqual(m.apiKey, provided) {
			log.Warn().Str("path", r.URL.Path).Msg("admin request rejected: invalid api key")
			httputil.WriteError(w, apperrors.Unauthorized())
			return
		}

		next.ServeHTTP(w, r)
	})
}

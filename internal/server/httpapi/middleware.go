package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/theworldofobi/mini-dropbox/internal/common"
	"github.com/theworldofobi/mini-dropbox/internal/logging"
	"github.com/theworldofobi/mini-dropbox/internal/server/auth"
)

type contextKey int

const ctxOwnerID contextKey = iota

// OwnerFromContext returns the authenticated owner id, or "".
func OwnerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxOwnerID).(string)
	return v
}

// bearerMiddleware verifies the bearer credential on owner-facing routes and
// stores the resolved owner id in the request context. Share-access routes
// are token-gated instead and bypass this middleware entirely.
func bearerMiddleware(secretKey []byte, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(common.AuthorizationHeaderName)
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				logger.Debug(r.Context(), "missing bearer credential", "path", r.URL.Path)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer credential"})
				return
			}

			ownerID, err := auth.GetOwnerIDFromToken(strings.TrimPrefix(header, "Bearer "), secretKey)
			if err != nil || ownerID == "" {
				logger.Debug(r.Context(), "invalid bearer credential", "path", r.URL.Path)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid bearer credential"})
				return
			}

			ctx := context.WithValue(r.Context(), ctxOwnerID, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

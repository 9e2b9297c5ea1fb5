package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/faxpilot/faxpilot-backend/api/responses"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
)

const internalKeyHeader = "X-Internal-Key"

// InternalKey guards service-to-service routes with a shared secret. When no
// secret is configured the routes are unreachable.
func InternalKey(secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "internal surface disabled"))
				return
			}

			provided := strings.TrimSpace(r.Header.Get(internalKeyHeader))
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Package admin guards the key-management and audit endpoints.
package admin

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	request "ironclad/pkg/platform/middleware/request"
	"ironclad/pkg/requestcontext"
)

// TokenValidator validates an admin bearer token and returns its subject.
type TokenValidator interface {
	ValidateToken(tokenString string) (subject string, err error)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAdmin rejects requests without a valid "Authorization: Bearer" admin
// token. The token subject is stored in the request context for audit logs.
func RequireAdmin(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "admin access denied - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "admin token required")
				return
			}

			subject, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "admin access denied - invalid token",
					"request_id", requestID,
					"error", err,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired admin token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithAdmin(ctx, subject)))
		})
	}
}

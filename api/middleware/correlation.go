package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

const maxCorrelationLen = 128

// Correlate tags every request with a request id (client supplied or
// generated) and the storefront session that issued it, so the backend log
// lines of one checkout attempt can be followed across calls.
func Correlate(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := correlationValue(r.Header.Get(types.HeaderRequestID))
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(types.HeaderRequestID, reqID)

			ctx := r.Context()
			sessionID := correlationValue(r.Header.Get(types.HeaderSessionID))
			if sessionID != "" {
				ctx = contextWithSession(ctx, sessionID)
			}
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
				if sessionID != "" {
					ctx = logg.WithSessionID(ctx, sessionID)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// correlationValue drops header values that would bloat or break log lines.
func correlationValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxCorrelationLen || strings.ContainsAny(raw, "\r\n\"") {
		return ""
	}
	return raw
}

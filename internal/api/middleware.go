package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pquerna/otp/totp"

	"papertrader/internal/logger"
)

// TOTPHeader carries the one-time code for mutating routes.
const TOTPHeader = "X-TOTP"

// RequireTOTP rejects requests without a valid code for secret. An empty
// secret disables the check.
func RequireTOTP(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.Header.Get(TOTPHeader)
			if code == "" || !totp.Validate(code, secret) {
				writeError(w, "invalid or missing TOTP code", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TOTPHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// traceRequests tags the request context with chi's request ID and logs the
// outcome.
func (h *handlers) traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := middleware.GetReqID(r.Context())
		if tid == "" {
			tid = logger.NewTraceID()
		}
		r = r.WithContext(logger.WithTraceID(r.Context(), tid))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		attrs := append(logger.LogWithTrace(r.Context()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)))
		h.log.Debug("request", attrs...)
	})
}

package middleware

import (
	"log/slog"
	"net/http"
)

// Recover catches panics escaping a handler, logs them, and answers with a
// generic message so internal detail never reaches the client. A response
// already in flight is left alone; at most one response per request.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic while handling request",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", rec)
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`"internal server error"`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

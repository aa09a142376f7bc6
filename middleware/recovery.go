package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/lifeplan-navigator/authcore/internal/logging"
)

// Recovery turns a handler panic into a 500 and an error log with the
// stack. Nothing from the panic value reaches the client.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						"event", "panic",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", rec,
						"stack", string(debug.Stack()),
					)
					WriteJSON(w, http.StatusInternalServerError, ErrorBody{Error: CodeInternal})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

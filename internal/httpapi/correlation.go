package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/JoshuaRamirez/acs-gateway/internal/correlation"
)

// correlationMiddleware implements the HTTP adapter described for C3:
// it reads X-Correlation-ID, X-Request-ID and X-Trace-ID if present,
// generates any that are missing, captures method/path/remote-addr/
// user-agent into the CorrelationContext's properties, and echoes the
// three ids back on the response before the handler writes its body.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cc := correlation.New()
		if id := r.Header.Get("X-Correlation-ID"); id != "" {
			cc.CorrelationID = id
		}
		if id := r.Header.Get("X-Request-ID"); id != "" {
			cc.RequestID = id
		}
		if id := r.Header.Get("X-Trace-ID"); id != "" {
			cc.TraceID = id
		} else {
			cc.TraceID = uuid.NewString()
		}
		cc.Properties["method"] = r.Method
		cc.Properties["path"] = r.URL.Path
		cc.Properties["remoteAddr"] = r.RemoteAddr
		cc.Properties["userAgent"] = r.UserAgent()

		w.Header().Set("X-Correlation-ID", cc.CorrelationID)
		w.Header().Set("X-Request-ID", cc.RequestID)
		w.Header().Set("X-Trace-ID", cc.TraceID)

		ctx := correlation.WithContext(r.Context(), cc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

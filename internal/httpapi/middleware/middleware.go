// Package middleware implements AuthMiddleware and MetricsMiddleware
// (C11): bearer-token verification and per-request Prometheus
// instrumentation for the gateway's HTTP surface.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JoshuaRamirez/acs-gateway/internal/auth"
	"github.com/JoshuaRamirez/acs-gateway/internal/correlation"
	"github.com/JoshuaRamirez/acs-gateway/internal/errs"
	"github.com/JoshuaRamirez/acs-gateway/pkg/metrics"
)

// PublicPaths skip bearer-token verification.
var PublicPaths = map[string]bool{
	"/health":       true,
	"/auth/login":   true,
	"/auth/refresh": true,
	"/metrics":      true,
}

// Auth builds AuthMiddleware: it verifies the Authorization header
// against validator, installs the resolved Principal into the request
// context and into the CorrelationContext's userId/tenantId/sessionId,
// and rejects unauthenticated requests to non-public paths with 401.
func Auth(validator *auth.JWTValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if PublicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := validator.ValidateAuthHeader(r.Header.Get("Authorization"))
			if err != nil {
				writeAuthError(w, errs.Wrap(errs.KindUnauthenticated, err, "missing or invalid bearer token"))
				return
			}

			ctx := auth.WithPrincipal(r.Context(), principal)
			cc := correlation.FromContext(ctx)
			cc.UserID = principal.UserID
			cc.TenantID = principal.TenantID
			cc.SessionID = principal.SessionID
			ctx = correlation.WithContext(ctx, cc)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, e *errs.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	w.Write([]byte(`{"error":"` + e.Kind + `","message":"` + e.Message + `"}`)) //nolint:errcheck
}

// statusWriter wraps http.ResponseWriter to capture the status code,
// defaulting to 200 the way net/http itself does when WriteHeader is
// never called explicitly.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.code = code
	sw.ResponseWriter.WriteHeader(code)
}

const slowRequestThreshold = time.Second

// Metrics builds MetricsMiddleware: it records method/path/status/
// duration/tenantId for every request and flags durations over 1s as
// slow.
func Metrics(m *metrics.GatewayMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

			next.ServeHTTP(sw, r)

			duration := time.Since(start)
			path := normalisePath(r.URL.Path)
			tenantID := auth.FromContext(r.Context()).TenantID
			if tenantID == "" {
				tenantID = "-"
			}

			if m == nil {
				return
			}
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.code), tenantID).Inc()
			m.HTTPDurationSeconds.WithLabelValues(r.Method, path).Observe(duration.Seconds())
			if duration > slowRequestThreshold {
				m.HTTPSlowRequestsTotal.WithLabelValues(r.Method, path).Inc()
			}
		})
	}
}

// normalisePath collapses high-cardinality URL paths into labelled
// prefixes, so per-tenant and per-entity paths don't blow up
// Prometheus label cardinality.
func normalisePath(p string) string {
	switch {
	case p == "/health", p == "/metrics", p == "/auth/login", p == "/auth/refresh":
		return p
	case strings.HasPrefix(p, "/tenants/") && strings.HasSuffix(p, "/commands"):
		return "/tenants/:id/commands"
	case strings.HasPrefix(p, "/tenants/"):
		return "/tenants/:id"
	case strings.HasPrefix(p, "/api/keys/"):
		return "/api/keys/:id"
	case p == "/api/keys":
		return "/api/keys"
	default:
		return p
	}
}

// Chain composes middlewares in the order given, so Chain(a, b)(h)
// runs a, then b, then h.
func Chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

// Package httpapi wires the gateway's HTTP surface: correlation
// capture, AuthMiddleware and MetricsMiddleware (C11), TenantResolver
// (C7) and CommandDispatcher (C9), exposing the public command
// endpoint and an operational health check.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/JoshuaRamirez/acs-gateway/internal/auth"
	"github.com/JoshuaRamirez/acs-gateway/internal/command"
	"github.com/JoshuaRamirez/acs-gateway/internal/correlation"
	"github.com/JoshuaRamirez/acs-gateway/internal/errs"
	"github.com/JoshuaRamirez/acs-gateway/internal/httpapi/middleware"
	"github.com/JoshuaRamirez/acs-gateway/internal/tenancy"
	"github.com/JoshuaRamirez/acs-gateway/pkg/metrics"
	"github.com/JoshuaRamirez/acs-gateway/pkg/schema"
)

// Server holds every collaborator the gateway's HTTP surface needs to
// resolve a tenant, validate a request body, and dispatch a command.
type Server struct {
	resolver   *tenancy.Resolver
	registry   *tenancy.Registry
	dispatcher *command.Dispatcher
	validator  *schema.Validator // optional; nil disables JSON-schema validation
	metrics    *metrics.GatewayMetrics
	auth       *auth.JWTValidator
	startedAt  time.Time
}

// Options configures a Server. Validator may be nil to skip JSON
// schema validation of command payloads.
type Options struct {
	Resolver   *tenancy.Resolver
	Registry   *tenancy.Registry
	Dispatcher *command.Dispatcher
	Validator  *schema.Validator
	Metrics    *metrics.GatewayMetrics
	Auth       *auth.JWTValidator
}

// NewServer builds a Server from opts.
func NewServer(opts Options) *Server {
	return &Server{
		resolver:   opts.Resolver,
		registry:   opts.Registry,
		dispatcher: opts.Dispatcher,
		validator:  opts.Validator,
		metrics:    opts.Metrics,
		auth:       opts.Auth,
		startedAt:  time.Now(),
	}
}

// Handler builds the full middleware-wrapped mux: correlation capture,
// then AuthMiddleware, then MetricsMiddleware, around the routed
// handlers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tenants/", s.handleTenantRoute)
	mux.HandleFunc("/admin/tenants", s.handleAdminTenantsCollection)
	mux.HandleFunc("/admin/tenants/", s.handleAdminTenantsItem)

	chain := middleware.Chain(
		correlationMiddleware,
		middleware.Auth(s.auth),
		middleware.Metrics(s.metrics),
	)
	return chain(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTenantRoute dispatches /tenants/{id}/commands; any other
// /tenants/ sub-path is 404.
func (s *Server) handleTenantRoute(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/commands") {
		s.handleCommands(w, r)
		return
	}
	writeError(w, errs.New(errs.KindUnknownTenant, "no such route"))
}

// handleCommands implements POST /tenants/{id}/commands: resolves the
// tenant, checks cross-tenant access, validates and encodes the
// command body, dispatches it, and returns the decoded JSON result.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	principal := auth.FromContext(r.Context())

	tenantID, err := s.resolver.Resolve(r, principal)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := tenancy.Authorize(principal, tenantID); err != nil {
		writeError(w, err)
		return
	}

	var env commandEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, errs.Wrap(errs.KindValidationFailed, err, "malformed command envelope"))
		return
	}

	if s.validator != nil && len(env.Payload) > 0 {
		if result, err := s.validator.Validate(env.Type, env.Payload); err == nil && !result.Valid {
			writeError(w, errs.New(errs.KindValidationFailed, "command payload failed schema validation"))
			return
		}
	}

	cc := correlation.FromContext(r.Context())
	cmd, err := encodeCommand(env, cc.CorrelationID)
	if err != nil {
		writeError(w, errs.Wrap(errs.KindUnknownCommand, err, "unable to encode command"))
		return
	}

	resultData, err := s.dispatcher.Dispatch(r.Context(), tenantID, cmd)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := decodeResult(env.Type, resultData)
	if err != nil {
		writeError(w, errs.Wrap(errs.KindInternal, err, "unable to decode command result"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// requireAdmin reports whether the request's principal carries the
// "admin" role, writing a 403 and returning false otherwise.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	principal := auth.FromContext(r.Context())
	if !principal.HasRole("admin") {
		writeError(w, errs.New(errs.KindForbidden, "admin role required"))
		return false
	}
	return true
}

// handleAdminTenantsCollection implements GET/POST /admin/tenants: list
// the full catalog, or add a new tenant to it.
func (s *Server) handleAdminTenantsCollection(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, errs.New(errs.KindInternal, "tenant administration is not enabled"))
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.registry.List())
	case http.MethodPost:
		var d tenancy.Descriptor
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeError(w, errs.Wrap(errs.KindValidationFailed, err, "malformed tenant descriptor"))
			return
		}
		if d.TenantID == "" {
			writeError(w, errs.New(errs.KindValidationFailed, "tenantId is required"))
			return
		}
		if err := s.registry.Add(d); err != nil {
			writeError(w, errs.Wrap(errs.KindInternal, err, "unable to persist tenant"))
			return
		}
		writeJSON(w, http.StatusCreated, d)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAdminTenantsItem implements GET/PUT/DELETE /admin/tenants/{id}.
func (s *Server) handleAdminTenantsItem(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, errs.New(errs.KindInternal, "tenant administration is not enabled"))
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	tenantID := strings.TrimPrefix(r.URL.Path, "/admin/tenants/")
	if tenantID == "" {
		writeError(w, errs.New(errs.KindValidationFailed, "tenant id is required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		d, err := s.registry.Get(tenantID)
		if err != nil {
			writeError(w, errs.Wrap(errs.KindUnknownTenant, err, "no such tenant"))
			return
		}
		writeJSON(w, http.StatusOK, d)
	case http.MethodPut:
		var d tenancy.Descriptor
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeError(w, errs.Wrap(errs.KindValidationFailed, err, "malformed tenant descriptor"))
			return
		}
		d.TenantID = tenantID
		if err := s.registry.Update(d); err != nil {
			writeError(w, errs.Wrap(errs.KindUnknownTenant, err, "no such tenant"))
			return
		}
		writeJSON(w, http.StatusOK, d)
	case http.MethodDelete:
		if err := s.registry.Delete(tenantID); err != nil {
			writeError(w, errs.Wrap(errs.KindUnknownTenant, err, "no such tenant"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// writeError maps err to an HTTP status via errs.Error when possible,
// defaulting to 500 for anything else.
func writeError(w http.ResponseWriter, err error) {
	e, ok := err.(*errs.Error)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal", "message": err.Error()})
		return
	}
	writeJSON(w, e.HTTPStatus(), map[string]string{"error": string(e.Kind), "message": e.Message, "correlationId": e.CorrelationID})
}

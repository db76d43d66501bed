package tenancy

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/JoshuaRamirez/acs-gateway/internal/auth"
	"github.com/JoshuaRamirez/acs-gateway/internal/errs"
)

// Resolver implements the TenantResolver (C7) six-step resolution
// chain and the cross-tenant access check.
type Resolver struct {
	registry   *Registry
	devDefault string // empty in production
}

// NewResolver builds a Resolver against reg. devDefault, when non-empty,
// is used as the last-resort tenant id (intended for local development
// only; leave empty in production configurations).
func NewResolver(reg *Registry, devDefault string) *Resolver {
	return &Resolver{registry: reg, devDefault: devDefault}
}

// Registry returns the registry this resolver resolves against.
func (res *Resolver) Registry() *Registry {
	return res.registry
}

// Resolve extracts a tenantId from r, trying in order: the
// X-Tenant-ID header, the host subdomain, a /tenants/<id>/... path
// prefix, the tenantId query parameter, the principal's tenant_id
// claim, and finally the configured development default. principal may
// be the zero value when the request is unauthenticated.
func (res *Resolver) Resolve(r *http.Request, principal auth.Principal) (string, error) {
	if id := r.Header.Get("X-Tenant-ID"); id != "" {
		return res.validate(id)
	}

	if id := subdomainTenant(r.Host); id != "" {
		return res.validate(id)
	}

	if id := pathPrefixTenant(r.URL.Path); id != "" {
		return res.validate(id)
	}

	if id := r.URL.Query().Get("tenantId"); id != "" {
		return res.validate(id)
	}

	if principal.TenantID != "" {
		return res.validate(principal.TenantID)
	}

	if res.devDefault != "" {
		return res.validate(res.devDefault)
	}

	return "", errs.New(errs.KindTenantRequired, "no tenant could be resolved for this request")
}

func (res *Resolver) validate(tenantID string) (string, error) {
	if _, err := res.registry.Get(tenantID); err != nil {
		return "", errs.Wrap(errs.KindUnknownTenant, err, "tenant "+tenantID+" is not registered")
	}
	return tenantID, nil
}

// subdomainTenant extracts a tenant id from host when it has at least
// three labels and the first is neither "www" nor "api".
func subdomainTenant(host string) string {
	if h, _, err := splitHostPort(host); err == nil {
		host = h
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	first := labels[0]
	if first == "www" || first == "api" {
		return ""
	}
	return first
}

func splitHostPort(host string) (string, string, error) {
	u, err := url.Parse("//" + host)
	if err != nil {
		return "", "", err
	}
	return u.Hostname(), u.Port(), nil
}

// pathPrefixTenant extracts <id> from a /tenants/<id>/... path.
func pathPrefixTenant(path string) string {
	const prefix = "/tenants/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(path, prefix)
	idx := strings.IndexByte(rest, '/')
	if idx <= 0 {
		if rest == "" {
			return ""
		}
		return rest
	}
	return rest[:idx]
}

const (
	roleSystemAdministrator = "SystemAdministrator"
	claimAccessibleTenant   = "accessible_tenant"
	claimCrossTenantAccess  = "cross_tenant_access"
)

// Authorize enforces the cross-tenant access policy: permit when the
// principal's own tenant matches, or it holds SystemAdministrator, or
// an accessible_tenant claim naming tenantID, or a cross_tenant_access
// claim of "all". Otherwise deny with errs.KindCrossTenant.
func Authorize(principal auth.Principal, tenantID string) error {
	if principal.TenantID == tenantID {
		return nil
	}
	if principal.HasRole(roleSystemAdministrator) {
		return nil
	}
	if v, ok := principal.Claim(claimAccessibleTenant); ok && v == tenantID {
		return nil
	}
	if v, ok := principal.Claim(claimCrossTenantAccess); ok && v == "all" {
		return nil
	}
	return errs.New(errs.KindCrossTenant, "principal may not access tenant "+tenantID)
}

package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

// Access is the requirement an authorization rule imposes.
type Access int

const (
	// AccessAuthenticated admits any authenticated role.
	AccessAuthenticated Access = iota
	// AccessAdmin admits the ADMIN role only.
	AccessAdmin
)

// Rule binds a (resource, method) pair to a required access level. The
// table is matched structurally on the resource name a route group is
// mounted with, never on the URL path.
type Rule struct {
	Resource string
	Method   string
	Requires Access
}

type policyKey struct {
	resource string
	method   string
}

// Policy is a static authorization table, evaluated per request before the
// handler runs. Pairs without a rule are denied.
type Policy struct {
	rules map[policyKey]Access
}

// NewPolicy builds a policy from a rule table.
func NewPolicy(rules []Rule) *Policy {
	m := make(map[policyKey]Access, len(rules))
	for _, r := range rules {
		m[policyKey{resource: r.Resource, method: r.Method}] = r.Requires
	}
	return &Policy{rules: m}
}

// Lookup returns the access requirement for a (resource, method) pair.
func (p *Policy) Lookup(resource, method string) (Access, bool) {
	access, ok := p.rules[policyKey{resource: resource, method: method}]
	return access, ok
}

// Authorize enforces the policy entry for the named resource. It runs after
// AuthMiddleware and relies on the role it loaded into the context.
func Authorize(policy *Policy, resource string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetUserRole(r.Context())
			if !ok {
				logger.Warn("Role not found in context", zap.String("resource", resource))
				RespondWithError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			access, found := policy.Lookup(resource, r.Method)
			if !found {
				logger.Warn("No authorization rule for request",
					zap.String("resource", resource),
					zap.String("method", r.Method),
				)
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			if access == AccessAdmin && !role.IsAdmin() {
				logger.Warn("Role not authorized for request",
					zap.String("resource", resource),
					zap.String("method", r.Method),
					zap.String("role", string(role)),
				)
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

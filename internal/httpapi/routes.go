package httpapi

import "strings"

// permission is an (action, resource) pair a route requires.
type permission struct {
	Action   string
	Resource string
}

// routeRule declares how the pipeline treats a path. Public routes skip
// authentication entirely; csrfExempt routes skip the double-submit check
// even for unsafe methods. Require lists permissions the caller's ability
// must satisfy after authentication.
type routeRule struct {
	Public     bool
	CsrfExempt bool
	Require    []permission
}

var routeRules = map[string]routeRule{
	"/healthz": {Public: true, CsrfExempt: true},
	"/readyz":  {Public: true, CsrfExempt: true},
	"/metrics": {Public: true, CsrfExempt: true},

	// Unauthenticated entry points. These establish or recover identity,
	// so there is no session to bind a CSRF token to yet.
	"/v1/auth/login":                    {Public: true, CsrfExempt: true},
	"/v1/auth/login/verify-mfa":         {Public: true, CsrfExempt: true},
	"/v1/auth/signup":                   {Public: true, CsrfExempt: true},
	"/v1/auth/refresh":                  {Public: true, CsrfExempt: true},
	"/v1/auth/forgot-password":          {Public: true, CsrfExempt: true},
	"/v1/auth/verify-otp":               {Public: true, CsrfExempt: true},
	"/v1/auth/reset-password":           {Public: true, CsrfExempt: true},
	"/v1/auth/csrf-token":               {Public: true, CsrfExempt: true},
	"/v1/auth/csrf-token/double-submit": {Public: true, CsrfExempt: true},
	"/v1/auth/csrf-token/validate":      {Public: true, CsrfExempt: true},

	"/v1/auth/logout":          {},
	"/v1/auth/change-password": {},
	"/v1/auth/account":         {},

	"/v1/auth/mfa/generate": {},
	"/v1/auth/mfa/enable":   {},
	"/v1/auth/mfa/disable":  {},
	"/v1/auth/mfa/status":   {},

	"/v1/auth/sessions": {},
}

// ruleFor resolves the rule for a path, collapsing session sub-resources
// onto the collection rule.
func ruleFor(path string) routeRule {
	if rule, ok := routeRules[path]; ok {
		return rule
	}
	if strings.HasPrefix(path, "/v1/auth/sessions/") {
		return routeRules["/v1/auth/sessions"]
	}
	// Unknown paths fall through authenticated and protected; the mux
	// answers 404 after the pipeline.
	return routeRule{}
}

package auth

import "context"

// Principal is the authenticated caller threaded through the request
// context: the user, its per-request ability and the session the bearer
// token correlates to. Built once per request, never cached across them.
type Principal struct {
	User    *User
	Ability *Ability
	Session *Session
}

// Can delegates to the principal's ability.
func (p *Principal) Can(action, resource string) bool {
	if p == nil {
		return false
	}
	return p.Ability.Can(action, resource)
}

type ctxKey string

const principalKey ctxKey = "auth_principal"

// ContextWithPrincipal stores the authenticated caller in the context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil || p.User == nil {
		return nil, false
	}
	return p, true
}

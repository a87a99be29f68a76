package auth

import (
	"context"
	"fmt"
)

// AdminRole holds the wildcard manage-all grant.
const AdminRole = "ADMIN"

// Builtin permission catalog seeded at startup. Names and (resource,
// action) pairs are unique; the admin manage-all grant uses wildcards.
var BuiltinPermissions = []Permission{
	{Name: "manage_all", Resource: WildcardAny, Action: ActionManage},
	{Name: "manage_users", Resource: "user", Action: ActionManage},
	{Name: "read_users", Resource: "user", Action: "read"},
	{Name: "manage_roles", Resource: "role", Action: ActionManage},
	{Name: "manage_sessions", Resource: "session", Action: ActionManage},
	{Name: "read_audit_log", Resource: "audit", Action: "read"},
	{Name: "manage_products", Resource: "product", Action: ActionManage},
	{Name: "read_products", Resource: "product", Action: "read"},
	{Name: "manage_pages", Resource: "page", Action: ActionManage},
	{Name: "read_pages", Resource: "page", Action: "read"},
}

// Initial grants for the builtin roles. Applied only when the role has no
// grants yet, so operator changes survive restarts.
var builtinRoleGrants = map[string][]string{
	AdminRole:   {"manage_all"},
	DefaultRole: {"read_products", "read_pages"},
}

// SeedRBAC installs the builtin permission catalog and the default roles.
// Idempotent and safe to run on every boot.
func SeedRBAC(ctx context.Context, store Store) error {
	perms := store.Permissions(ctx)
	if err := perms.Ensure(ctx, BuiltinPermissions); err != nil {
		return fmt.Errorf("seed permissions: %w", err)
	}
	all, err := perms.All(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]string, len(all))
	for _, p := range all {
		byName[p.Name] = p.ID
	}

	for roleName, grants := range builtinRoleGrants {
		role, err := store.Roles(ctx).EnsureByName(ctx, roleName)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", roleName, err)
		}
		existing, err := perms.ForRole(ctx, role.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		var permIDs []string
		for _, name := range grants {
			id, ok := byName[name]
			if !ok {
				return fmt.Errorf("seed role %s: unknown permission %q", roleName, name)
			}
			permIDs = append(permIDs, id)
		}
		if err := perms.SetForRole(ctx, role.ID, permIDs); err != nil {
			return fmt.Errorf("seed role %s: %w", roleName, err)
		}
	}
	return nil
}

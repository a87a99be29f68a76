package auth

import "strings"

const (
	// WildcardAny matches every resource or action.
	WildcardAny = "*"
	// ActionManage implies every action on its resource.
	ActionManage = "manage"
)

// Ability is the evaluated capability set of one principal: a plain grant
// map built from the role's permissions. Abilities are cheap to build and
// are constructed per request, never cached across requests, so permission
// changes take effect on the next call.
type Ability struct {
	manage  map[string]struct{} // resources granted manage (may include "*")
	actions map[string]struct{} // "resource:action" grants (resource may be "*")
}

// BuildAbility folds a permission list into a grant set.
func BuildAbility(perms []Permission) *Ability {
	a := &Ability{
		manage:  make(map[string]struct{}),
		actions: make(map[string]struct{}),
	}
	for _, p := range perms {
		resource := strings.TrimSpace(strings.ToLower(p.Resource))
		action := strings.TrimSpace(strings.ToLower(p.Action))
		if resource == "" || action == "" {
			continue
		}
		if action == WildcardAny || action == ActionManage {
			a.manage[resource] = struct{}{}
			continue
		}
		a.actions[resource+":"+action] = struct{}{}
	}
	return a
}

// Can reports whether the grant set allows action on resource. A manage
// grant subsumes every action on its resource; wildcard grants apply across
// resources.
func (a *Ability) Can(action, resource string) bool {
	if a == nil {
		return false
	}
	action = strings.TrimSpace(strings.ToLower(action))
	resource = strings.TrimSpace(strings.ToLower(resource))
	if action == "" || resource == "" {
		return false
	}
	if _, ok := a.manage[WildcardAny]; ok {
		return true
	}
	if _, ok := a.manage[resource]; ok {
		return true
	}
	if _, ok := a.actions[WildcardAny+":"+action]; ok {
		return true
	}
	if _, ok := a.actions[resource+":"+action]; ok {
		return true
	}
	return false
}

// CanAll reports whether every (action, resource) pair is granted.
func (a *Ability) CanAll(pairs ...[2]string) bool {
	for _, p := range pairs {
		if !a.Can(p[0], p[1]) {
			return false
		}
	}
	return true
}

package auth

import "testing"

func TestAbilityGrants(t *testing.T) {
	perms := []Permission{
		{Name: "manage_products", Resource: "product", Action: "manage"},
		{Name: "read_users", Resource: "user", Action: "read"},
		{Name: "export_any", Resource: "*", Action: "export"},
	}
	a := BuildAbility(perms)

	cases := []struct {
		action, resource string
		want             bool
	}{
		{"read", "product", true},   // manage implies every action
		{"delete", "product", true}, // manage implies every action
		{"read", "user", true},      // direct grant
		{"delete", "user", false},   // only read granted
		{"export", "page", true},    // wildcard resource grant
		{"export", "user", true},    // wildcard resource grant
		{"read", "page", false},     // nothing grants it
		{"", "product", false},      // empty action
		{"read", "", false},         // empty resource
		{"READ", "User", true},      // case-insensitive
	}
	for _, tc := range cases {
		if got := a.Can(tc.action, tc.resource); got != tc.want {
			t.Errorf("Can(%q, %q) = %v, want %v", tc.action, tc.resource, got, tc.want)
		}
	}
}

func TestAbilityManageAllWildcard(t *testing.T) {
	a := BuildAbility([]Permission{{Name: "manage_all", Resource: "*", Action: "manage"}})
	for _, pair := range [][2]string{
		{"read", "user"},
		{"delete", "session"},
		{"anything", "whatever"},
	} {
		if !a.Can(pair[0], pair[1]) {
			t.Errorf("manage-all must grant %s on %s", pair[0], pair[1])
		}
	}
	if !a.CanAll([2]string{"read", "user"}, [2]string{"write", "page"}) {
		t.Fatal("CanAll must hold under manage-all")
	}
}

func TestAbilityEmptyAndNil(t *testing.T) {
	var nilAbility *Ability
	if nilAbility.Can("read", "user") {
		t.Fatal("nil ability must deny")
	}
	empty := BuildAbility(nil)
	if empty.Can("read", "user") {
		t.Fatal("empty ability must deny")
	}
	if empty.CanAll([2]string{"read", "user"}) {
		t.Fatal("empty ability must deny CanAll")
	}
}

func TestBuildAbilitySkipsBlankGrants(t *testing.T) {
	a := BuildAbility([]Permission{
		{Resource: "", Action: "read"},
		{Resource: "user", Action: ""},
		{Resource: "  ", Action: "  "},
	})
	if a.Can("read", "user") {
		t.Fatal("blank grants must be ignored")
	}
}

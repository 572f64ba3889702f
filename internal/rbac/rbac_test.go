package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "assistant read", role: RoleAssistant, action: ActionRead, allow: true},
		{name: "assistant billing", role: RoleAssistant, action: ActionBilling, allow: true},
		{name: "assistant write", role: RoleAssistant, action: ActionWrite, allow: false},
		{name: "clinician write", role: RoleClinician, action: ActionWrite, allow: true},
		{name: "clinician billing", role: RoleClinician, action: ActionBilling, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("intruder"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("admin"); got != RoleAdmin {
		t.Fatalf("Normalize(admin) = %q", got)
	}
	if got := Normalize("nonsense"); got != RoleAssistant {
		t.Fatalf("Normalize(nonsense) = %q, want assistant", got)
	}
}

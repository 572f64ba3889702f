package rbac

type Role string
type Action string

const (
	RoleAssistant Role = "assistant"
	RoleClinician Role = "clinician"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionBilling Action = "billing"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleClinician:
		return action == ActionRead || action == ActionWrite
	case RoleAssistant:
		return action == ActionRead || action == ActionBilling
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleAssistant, RoleClinician, RoleAdmin:
		return Role(role)
	default:
		return RoleAssistant
	}
}

package rbac

type Role string
type Action string

const (
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead        Action = "read"
	ActionWrite       Action = "write"
	ActionPublish     Action = "publish"
	ActionManageStaff Action = "manage_staff"
	ActionManageOrg   Action = "manage_org"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionWrite || action == ActionPublish
	default:
		return false
	}
}

// Valid reports whether role is a known staff role. Unknown roles carry no
// permissions, so role assignment must reject them up front.
func Valid(role string) bool {
	switch Role(role) {
	case RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

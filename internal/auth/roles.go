package auth

type Role string

const (
	// RoleViewer may read status and history.
	RoleViewer Role = "viewer"
	// RoleOperator may additionally send goals, cancel and activate.
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

type Permission string

const (
	PermRead    Permission = "gripper:read"
	PermCommand Permission = "gripper:command"
)

func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

func (r Role) Permissions() []Permission {
	switch r {
	case RoleAdmin, RoleOperator:
		return []Permission{PermRead, PermCommand}
	case RoleViewer:
		return []Permission{PermRead}
	default:
		return nil
	}
}

package models

// Role is a reviewer's permission level
type Role string

const (
	RoleViewer       Role = "viewer"
	RoleReceptionist Role = "receptionist"
	RoleApprover     Role = "approver"
	RoleAuditor      Role = "auditor"
	RoleAdmin        Role = "admin"
)

// Actor is whoever drives a transition
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor is used by the auto-merge orchestrator
var SystemActor = Actor{ID: "system:auto-merge", Role: RoleAdmin}

// CanApprove covers approve, apply and undo
func (r Role) CanApprove() bool {
	return r == RoleApprover || r == RoleAdmin
}

// CanReadActivity covers the audit log
func (r Role) CanReadActivity() bool {
	return r == RoleAuditor || r == RoleApprover || r == RoleAdmin
}

// ParseRole maps a header value onto a Role, defaulting to viewer
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleReceptionist, RoleApprover, RoleAuditor, RoleAdmin:
		return Role(s)
	}
	return RoleViewer
}

package rbac

import "strings"

type Role string
type Action string

const (
	RoleClient  Role = "client"
	RoleAuditor Role = "auditor"
)

const (
	ActionRead            Action = "read"
	ActionComment         Action = "comment"
	ActionChangeStatus    Action = "change_status"
	ActionRequestEvidence Action = "request_evidence"
	ActionUploadEvidence  Action = "upload_evidence"
	ActionWorkTask        Action = "work_task"
	ActionImport          Action = "import"
)

// Can reports whether role may perform action at all. Which statuses a role
// may set is decided by the workflow package.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAuditor:
		return action == ActionRead || action == ActionComment || action == ActionChangeStatus || action == ActionRequestEvidence
	case RoleClient:
		return action == ActionRead || action == ActionComment || action == ActionChangeStatus ||
			action == ActionUploadEvidence || action == ActionWorkTask || action == ActionImport
	default:
		return false
	}
}

// Parse returns the role named by value and whether it is known.
func Parse(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleClient:
		return RoleClient, true
	case RoleAuditor:
		return RoleAuditor, true
	default:
		return "", false
	}
}

func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAuditor
}

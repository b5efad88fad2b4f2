package rbac

// Permission names checked at the HTTP edge. The audit core decides the
// fine-grained questions (which side of an audit, assignment, exam lock).
const (
	PermAuditView      = "audit:view"
	PermAuditCreate    = "audit:create"
	PermAuditDelete    = "audit:delete"
	PermAuditAssign    = "audit:assign"
	PermItemAuditee    = "item:auditee"
	PermItemReview     = "item:review"
	PermExamTake       = "exam:take"
	PermExamManage     = "exam:manage"
	PermTeacherScore   = "score:teacher"
	PermEvidenceUpload = "evidence:upload"
	PermUsersManage    = "users:manage"
	PermEventsRead     = "events:read"
)

// RolePermissions is the default policy per global role.
var RolePermissions = map[string][]string{
	"auditee": {
		PermAuditView,
		PermAuditAssign, // group leaders
		PermItemAuditee,
		PermExamTake,
		PermEvidenceUpload,
	},
	"evaluator": {
		PermAuditView,
		PermAuditCreate,
		PermAuditAssign,
		PermItemReview,
		PermExamTake,
	},
	"observer": {
		PermAuditView,
	},
	"admin": {
		"*", // everything
	},
}

package audit

import "github.com/mind-engage/mindengage-audit/internal/errs"

// roleInput is everything resolveRole looks at.
type roleInput struct {
	audit     Audit
	userID    string
	preferred Role
	groups    map[string]Membership
}

func (in roleInput) memberOf(groupID string) bool {
	if groupID == "" {
		return false
	}
	_, ok := in.groups[groupID]
	return ok
}

// pick returns the preferred role when it is one of the two sides,
// evaluator otherwise.
func (in roleInput) pick() Role {
	if in.preferred == RoleAuditee {
		return RoleAuditee
	}
	return RoleEvaluator
}

type roleRule struct {
	name  string
	match func(roleInput) (Role, bool)
}

// roleRules are evaluated in order; the first match wins.
var roleRules = []roleRule{
	{"admin", func(in roleInput) (Role, bool) {
		return RoleAdmin, in.preferred == RoleAdmin
	}},
	{"exam-participant", func(in roleInput) (Role, bool) {
		return RoleEvaluator, in.audit.Type.IsExam() && in.audit.ParticipantUserID == in.userID
	}},
	{"exam-other", func(in roleInput) (Role, bool) {
		return RoleObserver, in.audit.Type.IsExam()
	}},
	{"self-assessment", func(in roleInput) (Role, bool) {
		return in.pick(), in.audit.AuditorUserID == in.userID && in.audit.AuditeeUserID == in.userID
	}},
	{"auditor", func(in roleInput) (Role, bool) {
		return RoleEvaluator, in.audit.AuditorUserID == in.userID
	}},
	{"auditee", func(in roleInput) (Role, bool) {
		return RoleAuditee, in.audit.AuditeeUserID == in.userID
	}},
	{"both-groups", func(in roleInput) (Role, bool) {
		return in.pick(), in.memberOf(in.audit.AuditorGroupID) && in.memberOf(in.audit.AuditeeGroupID)
	}},
	{"auditor-group", func(in roleInput) (Role, bool) {
		return RoleEvaluator, in.memberOf(in.audit.AuditorGroupID)
	}},
	{"auditee-group", func(in roleInput) (Role, bool) {
		return RoleAuditee, in.memberOf(in.audit.AuditeeGroupID)
	}},
}

// ResolveRole decides which side of audit a user acts on. preferred is the
// caller's global role; it breaks ties for users on both sides and grants
// admin. Users matching no rule are observers.
func ResolveRole(audit Audit, userID string, preferred Role, groups []Membership) Role {
	in := roleInput{audit: audit, userID: userID, preferred: preferred, groups: map[string]Membership{}}
	for _, m := range groups {
		if m.UserID == "" || m.UserID == userID {
			in.groups[m.GroupID] = m
		}
	}
	if userID == "" {
		return RoleObserver
	}
	for _, r := range roleRules {
		if role, ok := r.match(in); ok {
			return role
		}
	}
	return RoleObserver
}

// assignee returns who may write it on behalf of role; "" means anyone on
// that side. Role-specific assignment wins over the legacy AssignedTo.
func assignee(it EvaluationItem, role Role) string {
	switch role {
	case RoleEvaluator:
		if it.AssignedEvaluatorUserID != "" {
			return it.AssignedEvaluatorUserID
		}
	case RoleAuditee:
		if it.AssignedAuditeeUserID != "" {
			return it.AssignedAuditeeUserID
		}
	}
	return it.AssignedTo
}

// checkAssignment enforces per-item assignment on group practice audits.
func checkAssignment(a Audit, it EvaluationItem, userID string, role Role) error {
	if a.Type != TypeGroupPractice {
		return nil
	}
	if who := assignee(it, role); who != "" && who != userID {
		return errs.Authorization(errs.CodeNotAssigned, "item %s is assigned to another %s", it.ID, role)
	}
	return nil
}

// isLeader reports whether groups include leadership of one of the audit's groups.
func isLeader(a Audit, groups []Membership) bool {
	for _, m := range groups {
		if !m.Leader {
			continue
		}
		if m.GroupID == a.AuditorGroupID || m.GroupID == a.AuditeeGroupID {
			return true
		}
	}
	return false
}

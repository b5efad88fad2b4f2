package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRole(t *testing.T) {
	individual := Audit{Type: TypeRegular, AuditorUserID: "eva", AuditeeUserID: "ana"}
	self := Audit{Type: TypeRegular, AuditorUserID: "sam", AuditeeUserID: "sam"}
	group := Audit{Type: TypeGroupPractice, AuditorGroupID: "g-eval", AuditeeGroupID: "g-self"}
	exam := Audit{Type: TypeFinal, ParticipantUserID: "pat", AuditeeUserID: "ana"}

	cases := []struct {
		name      string
		audit     Audit
		user      string
		preferred Role
		groups    []Membership
		want      Role
	}{
		{"admin wins", individual, "eva", RoleAdmin, nil, RoleAdmin},
		{"auditor", individual, "eva", RoleEvaluator, nil, RoleEvaluator},
		{"auditee", individual, "ana", RoleAuditee, nil, RoleAuditee},
		{"global role ignored for auditee", individual, "ana", RoleEvaluator, nil, RoleAuditee},
		{"stranger", individual, "zed", RoleEvaluator, nil, RoleObserver},
		{"anonymous", individual, "", RoleEvaluator, nil, RoleObserver},
		{"self assessment as auditee", self, "sam", RoleAuditee, nil, RoleAuditee},
		{"self assessment as evaluator", self, "sam", RoleEvaluator, nil, RoleEvaluator},
		{"self assessment observer preference", self, "sam", RoleObserver, nil, RoleEvaluator},
		{"exam participant", exam, "pat", RoleAuditee, nil, RoleEvaluator},
		{"exam auditee is observer", exam, "ana", RoleAuditee, nil, RoleObserver},
		{"exam admin", exam, "root", RoleAdmin, nil, RoleAdmin},
		{"auditor group", group, "eva", RoleEvaluator, []Membership{{GroupID: "g-eval", UserID: "eva"}}, RoleEvaluator},
		{"auditee group", group, "ana", RoleEvaluator, []Membership{{GroupID: "g-self", UserID: "ana"}}, RoleAuditee},
		{"both groups prefer auditee", group, "bo", RoleAuditee,
			[]Membership{{GroupID: "g-eval", UserID: "bo"}, {GroupID: "g-self", UserID: "bo"}}, RoleAuditee},
		{"both groups default evaluator", group, "bo", RoleObserver,
			[]Membership{{GroupID: "g-eval", UserID: "bo"}, {GroupID: "g-self", UserID: "bo"}}, RoleEvaluator},
		{"other group", group, "zed", RoleEvaluator, []Membership{{GroupID: "g-x", UserID: "zed"}}, RoleObserver},
		{"membership of someone else", group, "zed", RoleEvaluator, []Membership{{GroupID: "g-eval", UserID: "eva"}}, RoleObserver},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ResolveRole(c.audit, c.user, c.preferred, c.groups))
		})
	}
}

func TestAssignee(t *testing.T) {
	it := EvaluationItem{AssignedTo: "legacy"}
	assert.Equal(t, "legacy", assignee(it, RoleEvaluator))
	assert.Equal(t, "legacy", assignee(it, RoleAuditee))

	it.AssignedEvaluatorUserID = "eva"
	assert.Equal(t, "eva", assignee(it, RoleEvaluator))
	assert.Equal(t, "legacy", assignee(it, RoleAuditee))
}

func TestCheckAssignment_OnlyGroupPractice(t *testing.T) {
	it := EvaluationItem{ID: "i1", AssignedAuditeeUserID: "ana"}
	assert.NoError(t, checkAssignment(Audit{Type: TypeRegular}, it, "bob", RoleAuditee))
	assert.Error(t, checkAssignment(Audit{Type: TypeGroupPractice}, it, "bob", RoleAuditee))
	assert.NoError(t, checkAssignment(Audit{Type: TypeGroupPractice}, it, "ana", RoleAuditee))
}

func TestIsLeader(t *testing.T) {
	a := Audit{Type: TypeGroupPractice, AuditorGroupID: "g1", AuditeeGroupID: "g2"}
	assert.True(t, isLeader(a, []Membership{{GroupID: "g2", UserID: "u", Leader: true}}))
	assert.False(t, isLeader(a, []Membership{{GroupID: "g2", UserID: "u"}}))
	assert.False(t, isLeader(a, []Membership{{GroupID: "g3", UserID: "u", Leader: true}}))
}

package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-audit/internal/errs"
)

var allStatuses = []Status{
	StatusDrafting, StatusSubmitted, StatusPublishedToAuditee, StatusFinalAgreed,
	StatusDisputed, StatusFinalAltered, StatusFinalOriginal,
}

var allActions = []Action{
	ActionSubmit, ActionPublish, ActionAgree, ActionDisagree, ActionAcceptDispute, ActionRejectDispute,
}

func TestNext_Legal(t *testing.T) {
	cases := []struct {
		from Status
		act  Action
		want Status
	}{
		{StatusDrafting, ActionSubmit, StatusSubmitted},
		{StatusSubmitted, ActionPublish, StatusPublishedToAuditee},
		{StatusPublishedToAuditee, ActionAgree, StatusFinalAgreed},
		{StatusPublishedToAuditee, ActionDisagree, StatusDisputed},
		{StatusDisputed, ActionAcceptDispute, StatusFinalAltered},
		{StatusDisputed, ActionRejectDispute, StatusFinalOriginal},
	}
	for _, c := range cases {
		got, err := Next(c.from, c.act)
		require.NoError(t, err, "%s + %s", c.from, c.act)
		assert.Equal(t, c.want, got)
	}
}

func TestNext_IllegalPairsRejected(t *testing.T) {
	legal := 0
	for _, from := range allStatuses {
		for _, act := range allActions {
			_, err := Next(from, act)
			if _, ok := transitions[transitionKey{from, act}]; ok {
				legal++
				assert.NoError(t, err)
				continue
			}
			assert.True(t, errs.IsValidation(err), "%s + %s", from, act)
			assert.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))
		}
	}
	assert.Equal(t, 6, legal)

	_, err := Next(StatusDrafting, ActionDisagree)
	assert.Error(t, err)
	_, err = Next(StatusFinalAgreed, ActionPublish)
	assert.Error(t, err)
}

func TestFinalStatesHaveNoExit(t *testing.T) {
	for _, s := range allStatuses {
		if !s.Final() {
			continue
		}
		for _, act := range allActions {
			_, err := Next(s, act)
			assert.Error(t, err, "%s + %s", s, act)
		}
	}
}

func TestRoleFor(t *testing.T) {
	assert.Equal(t, RoleAuditee, RoleFor(ActionSubmit))
	assert.Equal(t, RoleEvaluator, RoleFor(ActionPublish))
	assert.Equal(t, RoleAuditee, RoleFor(ActionDisagree))
	assert.Equal(t, RoleEvaluator, RoleFor(ActionRejectDispute))
}

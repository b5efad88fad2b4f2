package audit

import "github.com/mind-engage/mindengage-audit/internal/errs"

// Status is the lifecycle state of one evaluation item.
type Status string

const (
	StatusDrafting           Status = "DRAFTING"
	StatusSubmitted          Status = "SUBMITTED"
	StatusPublishedToAuditee Status = "PUBLISHED_TO_AUDITEE"
	StatusFinalAgreed        Status = "FINAL_AGREED"
	StatusDisputed           Status = "DISPUTED"
	StatusFinalAltered       Status = "FINAL_ALTERED"
	StatusFinalOriginal      Status = "FINAL_ORIGINAL"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDrafting, StatusSubmitted, StatusPublishedToAuditee, StatusFinalAgreed,
		StatusDisputed, StatusFinalAltered, StatusFinalOriginal:
		return true
	}
	return false
}

// Final reports whether s is terminal.
func (s Status) Final() bool {
	return s == StatusFinalAgreed || s == StatusFinalAltered || s == StatusFinalOriginal
}

// Action is a status-changing operation on an item.
type Action string

const (
	ActionSubmit        Action = "submit"
	ActionPublish       Action = "publish"
	ActionAgree         Action = "agree"
	ActionDisagree      Action = "disagree"
	ActionAcceptDispute Action = "accept_dispute"
	ActionRejectDispute Action = "reject_dispute"
)

type transitionKey struct {
	from Status
	act  Action
}

// transitions is the whole state machine; anything absent is illegal.
var transitions = map[transitionKey]Status{
	{StatusDrafting, ActionSubmit}:             StatusSubmitted,
	{StatusSubmitted, ActionPublish}:           StatusPublishedToAuditee,
	{StatusPublishedToAuditee, ActionAgree}:    StatusFinalAgreed,
	{StatusPublishedToAuditee, ActionDisagree}: StatusDisputed,
	{StatusDisputed, ActionAcceptDispute}:      StatusFinalAltered,
	{StatusDisputed, ActionRejectDispute}:      StatusFinalOriginal,
}

// actionRoles names the audit role allowed to perform each action.
var actionRoles = map[Action]Role{
	ActionSubmit:        RoleAuditee,
	ActionPublish:       RoleEvaluator,
	ActionAgree:         RoleAuditee,
	ActionDisagree:      RoleAuditee,
	ActionAcceptDispute: RoleEvaluator,
	ActionRejectDispute: RoleEvaluator,
}

// Next returns the status reached by applying act in from.
func Next(from Status, act Action) (Status, error) {
	to, ok := transitions[transitionKey{from, act}]
	if !ok {
		return "", errs.Validation(errs.CodeInvalidTransition, "cannot %s an item in status %s", act, from)
	}
	return to, nil
}

// RoleFor returns the role that performs act.
func RoleFor(act Action) Role { return actionRoles[act] }

// auditee drafts are editable only before submission; evaluator findings
// while under review or under dispute.
func auditeeEditable(s Status) bool   { return s == StatusDrafting }
func evaluatorEditable(s Status) bool { return s == StatusSubmitted || s == StatusDisputed }

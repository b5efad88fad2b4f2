package audit

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-audit/internal/errs"
)

// Bundle is an audit together with the items created with it.
type Bundle struct {
	Audit Audit
	Items []EvaluationItem
}

// AuditPatch updates selected audit fields; nil fields are left unchanged.
type AuditPatch struct {
	Title            *string
	Status           *AuditStatus
	TimeLimitMinutes *int
	IsManuallyLocked *bool
	ScoreReleased    *bool
}

// ItemPatch updates selected item fields; nil fields are left unchanged.
// The condition fields make the write conditional: when a condition does not
// hold at write time the store rejects the patch with a concurrency error.
type ItemPatch struct {
	Version                int64  // expected current version; 0 skips the check
	FromStatus             Status // expected current status; "" skips the check
	RequireEmptyActionPlan bool

	Status *Status

	AuditeeAnswer      *string
	AuditeeScore       *float64
	AuditeeDescription *string
	EvidenceLink       *string

	EvaluatorAnswer *string
	EvaluatorScore  *float64
	Note            *string
	Recommendation  *string

	TeacherScore *float64

	AuditeeResponse   *string
	EvaluatorRebuttal *string
	ActionPlan        *string

	AssignedEvaluatorUserID *string
	AssignedAuditeeUserID   *string
}

// ItemUpdate pairs an item id with its patch for batch writes.
type ItemUpdate struct {
	ItemID string
	Patch  ItemPatch
}

// Store is the persistence the core needs. Implementations must make
// InsertAudits, UpdateItems and StartExam atomic.
type Store interface {
	// InsertAudits creates every audit with its items, or nothing.
	InsertAudits(ctx context.Context, bundles []Bundle) error
	GetAudit(ctx context.Context, id string) (Audit, error)
	UpdateAudit(ctx context.Context, id string, p AuditPatch) (Audit, error)
	// DeleteAudit removes the audit and all of its items.
	DeleteAudit(ctx context.Context, id string) error
	// StartExam sets exam_start_time to at only if it is unset. started is
	// false when another call got there first.
	StartExam(ctx context.Context, id string, at time.Time) (started bool, err error)

	GetItem(ctx context.Context, id string) (EvaluationItem, error)
	// ListItems returns the audit's items in creation order.
	ListItems(ctx context.Context, auditID string) ([]EvaluationItem, error)
	UpdateItem(ctx context.Context, id string, p ItemPatch) (EvaluationItem, error)
	// UpdateItems applies every update or none.
	UpdateItems(ctx context.Context, updates []ItemUpdate) ([]EvaluationItem, error)

	GroupMemberships(ctx context.Context, userID string) ([]Membership, error)
}

// check verifies the patch's conditions against the current item.
func (p ItemPatch) check(it EvaluationItem) error {
	if p.Version != 0 && p.Version != it.Version {
		return errs.Concurrency("item %s changed since version %d (now %d)", it.ID, p.Version, it.Version)
	}
	if p.FromStatus != "" && p.FromStatus != it.Status {
		return errs.Concurrency("item %s moved from %s to %s", it.ID, p.FromStatus, it.Status)
	}
	if p.RequireEmptyActionPlan && it.ActionPlan != "" {
		return errs.Validation(errs.CodeActionPlanLocked, "action plan of item %s is already set", it.ID)
	}
	return nil
}

// apply writes the patch's fields into it and bumps the version.
func (p ItemPatch) apply(it *EvaluationItem, now time.Time) {
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setNum := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	if p.Status != nil {
		it.Status = *p.Status
	}
	setStr(&it.AuditeeAnswer, p.AuditeeAnswer)
	setNum(&it.AuditeeScore, p.AuditeeScore)
	setStr(&it.AuditeeDescription, p.AuditeeDescription)
	setStr(&it.EvidenceLink, p.EvidenceLink)
	setStr(&it.EvaluatorAnswer, p.EvaluatorAnswer)
	setNum(&it.EvaluatorScore, p.EvaluatorScore)
	setStr(&it.Note, p.Note)
	setStr(&it.Recommendation, p.Recommendation)
	setNum(&it.TeacherScore, p.TeacherScore)
	setStr(&it.AuditeeResponse, p.AuditeeResponse)
	setStr(&it.EvaluatorRebuttal, p.EvaluatorRebuttal)
	setStr(&it.ActionPlan, p.ActionPlan)
	setStr(&it.AssignedEvaluatorUserID, p.AssignedEvaluatorUserID)
	setStr(&it.AssignedAuditeeUserID, p.AssignedAuditeeUserID)
	it.Version++
	it.UpdatedAt = now
}

func (p AuditPatch) apply(a *Audit, now time.Time) {
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.TimeLimitMinutes != nil {
		a.TimeLimitMinutes = *p.TimeLimitMinutes
	}
	if p.IsManuallyLocked != nil {
		a.IsManuallyLocked = *p.IsManuallyLocked
	}
	if p.ScoreReleased != nil {
		a.ScoreReleased = *p.ScoreReleased
	}
	a.UpdatedAt = now
}

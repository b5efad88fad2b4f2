package audit

import (
	"time"

	"github.com/mind-engage/mindengage-audit/internal/errs"
	"github.com/mind-engage/mindengage-audit/internal/examtimer"
	"github.com/mind-engage/mindengage-audit/internal/scoring"
)

type AuditType string

const (
	TypeRegular        AuditType = "regular"
	TypeGroupPractice  AuditType = "group_practice"
	TypeMidterm        AuditType = "midterm"
	TypeFinal          AuditType = "final"
	TypeMasterTemplate AuditType = "master_template"
)

func (t AuditType) Valid() bool {
	switch t {
	case TypeRegular, TypeGroupPractice, TypeMidterm, TypeFinal, TypeMasterTemplate:
		return true
	}
	return false
}

// IsExam reports whether audits of this type are time-boxed exam instances.
func (t AuditType) IsExam() bool { return t == TypeMidterm || t == TypeFinal }

// AuditStatus is the coarse audit-level status, independent of item status.
type AuditStatus string

const (
	AuditActive AuditStatus = "active"
	AuditLocked AuditStatus = "locked"
)

type Audit struct {
	ID     string      `json:"id"`
	Type   AuditType   `json:"type"`
	Title  string      `json:"title"`
	Status AuditStatus `json:"status"`

	// individual audits
	AuditorUserID string `json:"auditor_user_id,omitempty"`
	AuditeeUserID string `json:"auditee_user_id,omitempty"` // inherited from the master on exams
	// group practice audits
	AuditorGroupID string `json:"auditor_group_id,omitempty"`
	AuditeeGroupID string `json:"auditee_group_id,omitempty"`
	// exam audits
	ParticipantUserID  string     `json:"participant_user_id,omitempty"`
	SourceAuditID      string     `json:"source_audit_id,omitempty"`
	ExamStartTime      *time.Time `json:"exam_start_time,omitempty"`
	TimeLimitMinutes   int        `json:"time_limit_minutes,omitempty"`
	ScheduledStartTime *time.Time `json:"scheduled_start_time,omitempty"`
	IsManuallyLocked   bool       `json:"is_manually_locked"`
	ScoreReleased      bool       `json:"score_released"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TimerInput is the view of the audit the exam timer reads.
func (a Audit) TimerInput() examtimer.Input {
	return examtimer.Input{
		StartTime:        a.ExamStartTime,
		TimeLimitMinutes: a.TimeLimitMinutes,
		ScheduledStart:   a.ScheduledStartTime,
		ManuallyLocked:   a.IsManuallyLocked,
	}
}

// ScoringMode is equal weight for exams, weighted otherwise.
func (a Audit) ScoringMode() scoring.Mode {
	if a.Type.IsExam() {
		return scoring.ModeEqualWeight
	}
	return scoring.ModeWeighted
}

// EvaluationItem is one scored criterion within an audit.
type EvaluationItem struct {
	ID      string `json:"id"`
	AuditID string `json:"audit_id"`

	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Criteria    string `json:"criteria"`
	SortOrder   int    `json:"sort_order"`

	// fixed at creation
	Weight            float64 `json:"bobot"`
	SubcategoryWeight float64 `json:"subcategory_bobot"`
	CategoryWeight    float64 `json:"category_bobot"`

	AuditeeAnswer      string  `json:"auditee_answer"`
	AuditeeScore       float64 `json:"auditee_score"`
	AuditeeDescription string  `json:"auditee_description"`
	EvidenceLink       string  `json:"evidence_link"`

	EvaluatorAnswer string  `json:"evaluator_answer"`
	EvaluatorScore  float64 `json:"evaluator_score"`
	Note            string  `json:"note"`
	Recommendation  string  `json:"recommendation"`

	TeacherScore float64 `json:"teacher_score"`

	Status            Status `json:"status"`
	AuditeeResponse   string `json:"auditee_response"`
	EvaluatorRebuttal string `json:"evaluator_rebuttal"`
	ActionPlan        string `json:"action_plan"`

	AssignedEvaluatorUserID string `json:"assigned_evaluator_user_id,omitempty"`
	AssignedAuditeeUserID   string `json:"assigned_auditee_user_id,omitempty"`
	AssignedTo              string `json:"assigned_to,omitempty"` // legacy single assignee

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScoringItem converts the item to the scoring engine's view.
func (it EvaluationItem) ScoringItem() scoring.Item {
	return scoring.Item{
		Category:          it.Category,
		Subcategory:       it.Subcategory,
		Weight:            it.Weight,
		SubcategoryWeight: it.SubcategoryWeight,
		CategoryWeight:    it.CategoryWeight,
		AuditeeAnswer:     it.AuditeeAnswer,
		AuditeeScore:      it.AuditeeScore,
		EvaluatorAnswer:   it.EvaluatorAnswer,
		EvaluatorScore:    it.EvaluatorScore,
		TeacherScore:      it.TeacherScore,
	}
}

// Role is a user's role, either global (identity) or resolved for one audit.
type Role string

const (
	RoleEvaluator Role = "evaluator"
	RoleAuditee   Role = "auditee"
	RoleAdmin     Role = "admin"
	RoleObserver  Role = "observer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleEvaluator, RoleAuditee, RoleAdmin, RoleObserver:
		return true
	}
	return false
}

// Actor is the authenticated caller of a core operation.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Membership is one group a user belongs to.
type Membership struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Leader  bool   `json:"leader"`
}

// Assignment restricts who may write an item of a group practice audit.
// Nil fields are left unchanged; an empty string clears the assignment.
type Assignment struct {
	ItemID          string  `json:"item_id" validate:"required"`
	EvaluatorUserID *string `json:"evaluator_user_id,omitempty"`
	AuditeeUserID   *string `json:"auditee_user_id,omitempty"`
}

// BatchResult reports every constituent of a bulk operation.
type BatchResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []ItemFailure `json:"failed"`
}

type ItemFailure struct {
	ItemID  string `json:"item_id"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (r *BatchResult) fail(itemID string, err error) {
	f := ItemFailure{ItemID: itemID, Message: err.Error(), Err: err}
	if c := errs.CodeOf(err); c != "" {
		f.Code = string(c)
	}
	r.Failed = append(r.Failed, f)
}

// OK reports whether no constituent failed.
func (r BatchResult) OK() bool { return len(r.Failed) == 0 }

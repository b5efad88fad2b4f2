package audit

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mind-engage/mindengage-audit/internal/errs"
	"github.com/mind-engage/mindengage-audit/internal/scoring"
	syncx "github.com/mind-engage/mindengage-audit/internal/sync"
)

// AuditeeChanges are the pending auditee edits of one item. Nil fields are
// left as stored.
type AuditeeChanges struct {
	Answer       *string `json:"auditee_answer,omitempty"`
	Description  *string `json:"auditee_description,omitempty"`
	EvidenceLink *string `json:"evidence_link,omitempty" validate:"omitempty,max=2048"`
	Version      int64   `json:"version,omitempty"`
}

func (c AuditeeChanges) empty() bool {
	return c.Answer == nil && c.Description == nil && c.EvidenceLink == nil
}

// EvaluatorChanges are the pending evaluator edits of one item.
type EvaluatorChanges struct {
	Answer         *string `json:"evaluator_answer,omitempty"`
	Note           *string `json:"note,omitempty"`
	Recommendation *string `json:"recommendation,omitempty"`
	Version        int64   `json:"version,omitempty"`
}

func (c EvaluatorChanges) empty() bool {
	return c.Answer == nil && c.Note == nil && c.Recommendation == nil
}

// answerPatch normalises a letter answer and derives its score. An empty
// answer clears both.
func answerPatch(answer *string) (*string, *float64, error) {
	if answer == nil {
		return nil, nil, nil
	}
	norm := scoring.NormalizeAnswer(*answer)
	if norm == "" {
		zero := 0.0
		return &norm, &zero, nil
	}
	score, ok := scoring.MapAnswer(norm)
	if !ok {
		return nil, nil, errs.Validation(errs.CodeInvalidAnswer, "unknown answer %q, want one of %v", *answer, scoring.Answers())
	}
	return &norm, &score, nil
}

func (c AuditeeChanges) applyTo(p *ItemPatch) error {
	ans, score, err := answerPatch(c.Answer)
	if err != nil {
		return err
	}
	p.AuditeeAnswer, p.AuditeeScore = ans, score
	p.AuditeeDescription = c.Description
	p.EvidenceLink = c.EvidenceLink
	return nil
}

func (c EvaluatorChanges) applyTo(p *ItemPatch) error {
	ans, score, err := answerPatch(c.Answer)
	if err != nil {
		return err
	}
	p.EvaluatorAnswer, p.EvaluatorScore = ans, score
	p.Note = c.Note
	p.Recommendation = c.Recommendation
	return nil
}

// SaveAuditeeDraft persists auditee edits on a DRAFTING item.
func (s *Service) SaveAuditeeDraft(ctx context.Context, actor Actor, itemID string, c AuditeeChanges) (EvaluationItem, error) {
	_, it, err := s.authorizeItem(ctx, actor, itemID, RoleAuditee)
	if err != nil {
		return EvaluationItem{}, err
	}
	if !auditeeEditable(it.Status) {
		return EvaluationItem{}, errs.Validation(errs.CodeItemNotEditable, "item %s is %s, auditee edits need %s", it.ID, it.Status, StatusDrafting)
	}
	if c.empty() {
		return it, nil
	}
	p := ItemPatch{Version: c.Version, FromStatus: it.Status}
	if err := c.applyTo(&p); err != nil {
		return EvaluationItem{}, err
	}
	out, err := s.store.UpdateItem(ctx, it.ID, p)
	if err != nil {
		return EvaluationItem{}, err
	}
	s.record(ctx, syncx.TypeItemSaved, it.ID, actor.UserID, map[string]any{"side": RoleAuditee, "version": out.Version})
	return out, nil
}

// AttachEvidence stores an evidence file through put and saves the link it
// returns as the item's evidence link. put runs only after the auditee write
// has been authorized. When the item update then fails, the discard func put
// returned is called so the stored file does not outlive the failed write.
func (s *Service) AttachEvidence(ctx context.Context, actor Actor, itemID string,
	put func(auditID, itemID string) (link string, discard func(), err error)) (EvaluationItem, error) {
	_, it, err := s.authorizeItem(ctx, actor, itemID, RoleAuditee)
	if err != nil {
		return EvaluationItem{}, err
	}
	if !auditeeEditable(it.Status) {
		return EvaluationItem{}, errs.Validation(errs.CodeItemNotEditable, "item %s is %s, auditee edits need %s", it.ID, it.Status, StatusDrafting)
	}
	link, discard, err := put(it.AuditID, it.ID)
	if err != nil {
		return EvaluationItem{}, fmt.Errorf("store evidence for item %s: %w", it.ID, err)
	}
	out, err := s.store.UpdateItem(ctx, it.ID, ItemPatch{FromStatus: it.Status, EvidenceLink: &link})
	if err != nil {
		s.log.Warn("evidence update failed, discarding file", "item", it.ID, "link", link, "err", err)
		if discard != nil {
			discard()
		}
		return EvaluationItem{}, err
	}
	s.record(ctx, syncx.TypeItemSaved, it.ID, actor.UserID, map[string]any{"side": RoleAuditee, "evidence": link, "version": out.Version})
	return out, nil
}

// SaveEvaluatorReview persists evaluator edits on a SUBMITTED or DISPUTED item.
func (s *Service) SaveEvaluatorReview(ctx context.Context, actor Actor, itemID string, c EvaluatorChanges) (EvaluationItem, error) {
	_, it, err := s.authorizeItem(ctx, actor, itemID, RoleEvaluator)
	if err != nil {
		return EvaluationItem{}, err
	}
	if !evaluatorEditable(it.Status) {
		return EvaluationItem{}, errs.Validation(errs.CodeItemNotEditable, "item %s is %s, evaluator edits need %s or %s",
			it.ID, it.Status, StatusSubmitted, StatusDisputed)
	}
	if c.empty() {
		return it, nil
	}
	p := ItemPatch{Version: c.Version, FromStatus: it.Status}
	if err := c.applyTo(&p); err != nil {
		return EvaluationItem{}, err
	}
	out, err := s.store.UpdateItem(ctx, it.ID, p)
	if err != nil {
		return EvaluationItem{}, err
	}
	s.record(ctx, syncx.TypeItemSaved, it.ID, actor.UserID, map[string]any{"side": RoleEvaluator, "version": out.Version})
	return out, nil
}

// transition authorizes actor for act, lets prepare add payload fields and
// writes the new status conditionally on the status it was read in.
func (s *Service) transition(ctx context.Context, actor Actor, itemID string, act Action, version int64,
	prepare func(it EvaluationItem, p *ItemPatch) error) (EvaluationItem, error) {
	_, it, err := s.authorizeItem(ctx, actor, itemID, RoleFor(act))
	if err != nil {
		return EvaluationItem{}, err
	}
	to, err := Next(it.Status, act)
	if err != nil {
		return EvaluationItem{}, err
	}
	p := ItemPatch{Version: version, FromStatus: it.Status, Status: &to}
	if prepare != nil {
		if err := prepare(it, &p); err != nil {
			return EvaluationItem{}, err
		}
	}
	out, err := s.store.UpdateItem(ctx, it.ID, p)
	if err != nil {
		return EvaluationItem{}, err
	}
	s.log.Debug("item transitioned", "item", it.ID, "action", act, "from", it.Status, "to", to, "user", actor.UserID)
	s.record(ctx, syncx.TypeItemTransitioned, it.ID, actor.UserID, map[string]any{
		"audit_id": it.AuditID, "action": act, "from": it.Status, "to": to,
	})
	return out, nil
}

// Submit hands a drafted item to the evaluator.
func (s *Service) Submit(ctx context.Context, actor Actor, itemID string, version int64) (EvaluationItem, error) {
	return s.transition(ctx, actor, itemID, ActionSubmit, version, nil)
}

// Publish persists pending evaluator edits and publishes the finding in the
// same write.
func (s *Service) Publish(ctx context.Context, actor Actor, itemID string, c EvaluatorChanges) (EvaluationItem, error) {
	return s.transition(ctx, actor, itemID, ActionPublish, c.Version, func(_ EvaluationItem, p *ItemPatch) error {
		return c.applyTo(p)
	})
}

// PublishAll publishes every SUBMITTED item of an audit in one atomic write.
// Items the actor may not write are reported as failed; the rest succeed or
// fail together.
func (s *Service) PublishAll(ctx context.Context, actor Actor, auditID string) (BatchResult, error) {
	var res BatchResult
	a, err := s.store.GetAudit(ctx, auditID)
	if err != nil {
		return res, err
	}
	role, _, err := s.roleIn(ctx, a, actor)
	if err != nil {
		return res, err
	}
	if role != RoleEvaluator {
		return res, errs.Authorization(errs.CodeWrongRole, "user %q acts as %s on audit %s, evaluator required", actor.UserID, role, a.ID)
	}
	if err := s.checkExamOpen(a); err != nil {
		return res, err
	}
	items, err := s.store.ListItems(ctx, auditID)
	if err != nil {
		return res, err
	}
	to := StatusPublishedToAuditee
	var updates []ItemUpdate
	for _, it := range items {
		if it.Status != StatusSubmitted {
			continue
		}
		if err := checkAssignment(a, it, actor.UserID, role); err != nil {
			res.fail(it.ID, err)
			continue
		}
		updates = append(updates, ItemUpdate{ItemID: it.ID, Patch: ItemPatch{
			Version: it.Version, FromStatus: StatusSubmitted, Status: &to,
		}})
	}
	if len(updates) == 0 {
		return res, nil
	}
	if _, err := s.store.UpdateItems(ctx, updates); err != nil {
		for _, u := range updates {
			res.fail(u.ItemID, err)
		}
		s.log.Warn("bulk publish failed", "audit", auditID, "items", len(updates), "err", err)
		return res, nil
	}
	for _, u := range updates {
		res.Succeeded = append(res.Succeeded, u.ItemID)
	}
	s.log.Info("bulk publish", "audit", auditID, "published", len(res.Succeeded), "failed", len(res.Failed))
	s.record(ctx, syncx.TypeItemTransitioned, auditID, actor.UserID, map[string]any{
		"action": ActionPublish, "items": res.Succeeded,
	})
	return res, nil
}

// Agree accepts the published finding.
func (s *Service) Agree(ctx context.Context, actor Actor, itemID string, version int64) (EvaluationItem, error) {
	return s.transition(ctx, actor, itemID, ActionAgree, version, nil)
}

// Disagree disputes the published finding. response is required.
func (s *Service) Disagree(ctx context.Context, actor Actor, itemID, response string, version int64) (EvaluationItem, error) {
	return s.transition(ctx, actor, itemID, ActionDisagree, version, func(_ EvaluationItem, p *ItemPatch) error {
		if strings.TrimSpace(response) == "" {
			return errs.Validation(errs.CodeResponseRequired, "a response is required to disagree")
		}
		p.AuditeeResponse = &response
		return nil
	})
}

// AcceptDispute revises the finding. The note, stored or supplied in c, must
// not be empty.
func (s *Service) AcceptDispute(ctx context.Context, actor Actor, itemID string, c EvaluatorChanges) (EvaluationItem, error) {
	return s.transition(ctx, actor, itemID, ActionAcceptDispute, c.Version, func(it EvaluationItem, p *ItemPatch) error {
		note := it.Note
		if c.Note != nil {
			note = *c.Note
		}
		if strings.TrimSpace(note) == "" {
			return errs.Validation(errs.CodeNoteRequired, "a revised note is required to accept the dispute")
		}
		return c.applyTo(p)
	})
}

// RejectDispute keeps the original finding, optionally with a rebuttal.
func (s *Service) RejectDispute(ctx context.Context, actor Actor, itemID, rebuttal string, version int64) (EvaluationItem, error) {
	return s.transition(ctx, actor, itemID, ActionRejectDispute, version, func(_ EvaluationItem, p *ItemPatch) error {
		if rebuttal != "" {
			p.EvaluatorRebuttal = &rebuttal
		}
		return nil
	})
}

// SubmitActionPlan sets the action plan of a final item. It can be set once.
func (s *Service) SubmitActionPlan(ctx context.Context, actor Actor, itemID, plan string, version int64) (EvaluationItem, error) {
	_, it, err := s.authorizeItem(ctx, actor, itemID, RoleAuditee)
	if err != nil {
		return EvaluationItem{}, err
	}
	if !it.Status.Final() {
		return EvaluationItem{}, errs.Validation(errs.CodeActionPlanNotFinal, "item %s is %s, action plans need a final status", it.ID, it.Status)
	}
	if strings.TrimSpace(plan) == "" {
		return EvaluationItem{}, errs.Validation(errs.CodeActionPlanRequired, "action plan is empty")
	}
	if it.ActionPlan != "" {
		return EvaluationItem{}, errs.Validation(errs.CodeActionPlanLocked, "action plan of item %s is already set", it.ID)
	}
	out, err := s.store.UpdateItem(ctx, it.ID, ItemPatch{
		Version:                version,
		FromStatus:             it.Status,
		RequireEmptyActionPlan: true,
		ActionPlan:             &plan,
	})
	if err != nil {
		return EvaluationItem{}, err
	}
	s.record(ctx, syncx.TypeItemSaved, it.ID, actor.UserID, map[string]any{"action_plan": true})
	return out, nil
}

// TeacherScore is one entry of a bulk teacher score save.
type TeacherScore struct {
	ItemID string  `json:"item_id" validate:"required"`
	Score  float64 `json:"score" validate:"gte=0,lte=100"`
}

func checkTeacherScore(score float64) error {
	if math.IsNaN(score) || score < 0 || score > 100 {
		return errs.Validation(errs.CodeScoreOutOfRange, "teacher score %v is outside 0-100", score)
	}
	return nil
}

// SetTeacherScore stores an admin's score for an exam item. It is not
// subject to the exam lock.
func (s *Service) SetTeacherScore(ctx context.Context, actor Actor, itemID string, score float64) (EvaluationItem, error) {
	if err := requireAdmin(actor); err != nil {
		return EvaluationItem{}, err
	}
	if err := checkTeacherScore(score); err != nil {
		return EvaluationItem{}, err
	}
	it, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return EvaluationItem{}, err
	}
	a, err := s.store.GetAudit(ctx, it.AuditID)
	if err != nil {
		return EvaluationItem{}, err
	}
	if !a.Type.IsExam() {
		return EvaluationItem{}, errs.Validation(errs.CodeNotExam, "audit %s is %s, teacher scores apply to exams", a.ID, a.Type)
	}
	out, err := s.store.UpdateItem(ctx, it.ID, ItemPatch{TeacherScore: &score})
	if err != nil {
		return EvaluationItem{}, err
	}
	s.record(ctx, syncx.TypeTeacherScored, it.ID, actor.UserID, map[string]any{"audit_id": a.ID, "score": score})
	return out, nil
}

// SetTeacherScores saves many teacher scores of one exam atomically. Invalid
// entries are reported and skipped.
func (s *Service) SetTeacherScores(ctx context.Context, actor Actor, auditID string, scores []TeacherScore) (BatchResult, error) {
	var res BatchResult
	if err := requireAdmin(actor); err != nil {
		return res, err
	}
	a, err := s.store.GetAudit(ctx, auditID)
	if err != nil {
		return res, err
	}
	if !a.Type.IsExam() {
		return res, errs.Validation(errs.CodeNotExam, "audit %s is %s, teacher scores apply to exams", a.ID, a.Type)
	}
	items, err := s.store.ListItems(ctx, auditID)
	if err != nil {
		return res, err
	}
	inAudit := make(map[string]bool, len(items))
	for _, it := range items {
		inAudit[it.ID] = true
	}
	var updates []ItemUpdate
	for _, ts := range scores {
		if !inAudit[ts.ItemID] {
			res.fail(ts.ItemID, errs.NotFound("item", ts.ItemID))
			continue
		}
		if err := checkTeacherScore(ts.Score); err != nil {
			res.fail(ts.ItemID, err)
			continue
		}
		score := ts.Score
		updates = append(updates, ItemUpdate{ItemID: ts.ItemID, Patch: ItemPatch{TeacherScore: &score}})
	}
	if len(updates) == 0 {
		return res, nil
	}
	if _, err := s.store.UpdateItems(ctx, updates); err != nil {
		for _, u := range updates {
			res.fail(u.ItemID, err)
		}
		s.log.Warn("bulk teacher score failed", "audit", auditID, "err", err)
		return res, nil
	}
	for _, u := range updates {
		res.Succeeded = append(res.Succeeded, u.ItemID)
	}
	s.record(ctx, syncx.TypeTeacherScored, auditID, actor.UserID, map[string]any{"items": res.Succeeded})
	return res, nil
}

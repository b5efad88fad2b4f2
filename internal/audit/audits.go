package audit

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-audit/internal/errs"
	"github.com/mind-engage/mindengage-audit/internal/scoring"
	syncx "github.com/mind-engage/mindengage-audit/internal/sync"
)

// NewAudit describes an audit to create from the weight template.
type NewAudit struct {
	Type           AuditType `json:"type" validate:"required,oneof=regular group_practice master_template"`
	Title          string    `json:"title" validate:"max=200"`
	AuditorUserID  string    `json:"auditor_user_id"`
	AuditeeUserID  string    `json:"auditee_user_id"`
	AuditorGroupID string    `json:"auditor_group_id"`
	AuditeeGroupID string    `json:"auditee_group_id"`
}

func (n NewAudit) check(actor Actor) (NewAudit, error) {
	switch n.Type {
	case TypeRegular, TypeMasterTemplate:
		if n.AuditorUserID == "" {
			n.AuditorUserID = actor.UserID
		}
		if n.AuditeeUserID == "" {
			return n, errs.Validation(errs.CodeInvalidAudit, "%s audits need an auditee", n.Type)
		}
	case TypeGroupPractice:
		if n.AuditorGroupID == "" || n.AuditeeGroupID == "" {
			return n, errs.Validation(errs.CodeInvalidAudit, "group practice audits need an auditor and an auditee group")
		}
		if n.AuditorGroupID == n.AuditeeGroupID {
			return n, errs.Validation(errs.CodeInvalidAudit, "auditor and auditee group must differ")
		}
	case TypeMidterm, TypeFinal:
		return n, errs.Validation(errs.CodeInvalidAuditType, "%s audits are created by distribution", n.Type)
	default:
		return n, errs.Validation(errs.CodeInvalidAuditType, "unknown audit type %q", n.Type)
	}
	return n, nil
}

// ItemsFromTemplate materialises one DRAFTING item per template criterion.
func ItemsFromTemplate(t scoring.Template, auditID string, newID func() string, now time.Time) []EvaluationItem {
	out := make([]EvaluationItem, 0, t.Size())
	for _, c := range t.Categories {
		for _, sc := range c.Subcategories {
			for i, cr := range sc.Criteria {
				out = append(out, EvaluationItem{
					ID:                newID(),
					AuditID:           auditID,
					Category:          c.Name,
					Subcategory:       sc.Name,
					Criteria:          cr.Text,
					SortOrder:         i + 1,
					Weight:            cr.Weight,
					SubcategoryWeight: sc.Weight,
					CategoryWeight:    c.Weight,
					Status:            StatusDrafting,
					Version:           1,
					UpdatedAt:         now,
				})
			}
		}
	}
	return out
}

// CreateAudit creates an audit together with all of its template items.
func (s *Service) CreateAudit(ctx context.Context, actor Actor, n NewAudit) (Bundle, error) {
	if actor.Role != RoleAdmin && actor.Role != RoleEvaluator {
		return Bundle{}, errs.Authorization(errs.CodeWrongRole, "user %q may not create audits", actor.UserID)
	}
	n, err := n.check(actor)
	if err != nil {
		return Bundle{}, err
	}
	now := s.now()
	a := Audit{
		ID:             s.newID(),
		Type:           n.Type,
		Title:          n.Title,
		Status:         AuditActive,
		AuditorUserID:  n.AuditorUserID,
		AuditeeUserID:  n.AuditeeUserID,
		AuditorGroupID: n.AuditorGroupID,
		AuditeeGroupID: n.AuditeeGroupID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	b := Bundle{Audit: a, Items: ItemsFromTemplate(s.template, a.ID, s.newID, now)}
	if err := s.store.InsertAudits(ctx, []Bundle{b}); err != nil {
		return Bundle{}, err
	}
	s.log.Info("audit created", "audit", a.ID, "type", a.Type, "items", len(b.Items), "user", actor.UserID)
	s.record(ctx, syncx.TypeAuditCreated, a.ID, actor.UserID, map[string]any{"type": a.Type, "items": len(b.Items)})
	return b, nil
}

// AuditView is an audit together with the caller's resolved role on it.
type AuditView struct {
	Audit
	Role Role `json:"role"`
}

func (s *Service) GetAudit(ctx context.Context, actor Actor, id string) (AuditView, error) {
	a, err := s.store.GetAudit(ctx, id)
	if err != nil {
		return AuditView{}, err
	}
	role, err := s.readerRole(ctx, a, actor)
	if err != nil {
		return AuditView{}, err
	}
	return AuditView{Audit: a, Role: role}, nil
}

// readerRole resolves the actor's role on a for a read. Callers who resolve
// to observer have no relation to the audit and are turned away; on an exam
// that includes every other participant.
func (s *Service) readerRole(ctx context.Context, a Audit, actor Actor) (Role, error) {
	role, _, err := s.roleIn(ctx, a, actor)
	if err != nil {
		return "", err
	}
	if role == RoleObserver && actor.Role != RoleAdmin {
		return "", errs.Authorization(errs.CodeWrongRole, "user %q has no role on audit %s", actor.UserID, a.ID)
	}
	return role, nil
}

// AuthorizeEvidence checks that actor may read the evidence file stored
// under key. Keys outside audits/{auditID}/items/{itemID}/ are not evidence.
func (s *Service) AuthorizeEvidence(ctx context.Context, actor Actor, key string) error {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	if len(parts) < 5 || parts[0] != "audits" || parts[2] != "items" || parts[1] == "" || parts[3] == "" {
		return errs.NotFound("evidence", key)
	}
	a, err := s.store.GetAudit(ctx, parts[1])
	if err != nil {
		return err
	}
	_, err = s.readerRole(ctx, a, actor)
	return err
}

// DeleteAudit removes an audit and every item in it.
func (s *Service) DeleteAudit(ctx context.Context, actor Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.store.DeleteAudit(ctx, id); err != nil {
		return err
	}
	s.log.Info("audit deleted", "audit", id, "user", actor.UserID)
	s.record(ctx, syncx.TypeAuditDeleted, id, actor.UserID, struct{}{})
	return nil
}

// hideTeacherScores reports whether viewer must not see teacher scores yet.
func hideTeacherScores(a Audit, role Role) bool {
	return a.Type.IsExam() && !a.ScoreReleased && role != RoleAdmin
}

// ItemView is an item with its display number within its subcategory.
type ItemView struct {
	EvaluationItem
	Number             int  `json:"number"`
	TeacherScoreHidden bool `json:"teacher_score_hidden,omitempty"`
}

// ListItems returns the audit's items grouped by category and subcategory in
// template order and sorted by SortOrder within each subcategory.
func (s *Service) ListItems(ctx context.Context, actor Actor, auditID string) ([]ItemView, error) {
	a, err := s.store.GetAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	role, err := s.readerRole(ctx, a, actor)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, auditID)
	if err != nil {
		return nil, err
	}
	catRank := map[string]int{}
	subRank := map[[2]string]int{}
	for _, it := range items {
		if _, ok := catRank[it.Category]; !ok {
			catRank[it.Category] = len(catRank)
		}
		k := [2]string{it.Category, it.Subcategory}
		if _, ok := subRank[k]; !ok {
			subRank[k] = len(subRank)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		x, y := items[i], items[j]
		if catRank[x.Category] != catRank[y.Category] {
			return catRank[x.Category] < catRank[y.Category]
		}
		kx, ky := [2]string{x.Category, x.Subcategory}, [2]string{y.Category, y.Subcategory}
		if subRank[kx] != subRank[ky] {
			return subRank[kx] < subRank[ky]
		}
		return x.SortOrder < y.SortOrder
	})

	hide := hideTeacherScores(a, role)
	out := make([]ItemView, 0, len(items))
	n := 0
	var prev [2]string
	for i, it := range items {
		k := [2]string{it.Category, it.Subcategory}
		if i == 0 || k != prev {
			n = 0
			prev = k
		}
		n++
		v := ItemView{EvaluationItem: it, Number: n}
		if hide {
			v.TeacherScore = 0
			v.TeacherScoreHidden = true
		}
		out = append(out, v)
	}
	return out, nil
}

// ScorecardView is the scoring engine's output for one audit.
type ScorecardView struct {
	AuditID string `json:"audit_id"`
	scoring.Scorecard
	TeacherScoresHidden bool `json:"teacher_scores_hidden,omitempty"`
}

// Scorecard aggregates the audit's items. Exams use equal weights.
func (s *Service) Scorecard(ctx context.Context, actor Actor, auditID string) (ScorecardView, error) {
	a, err := s.store.GetAudit(ctx, auditID)
	if err != nil {
		return ScorecardView{}, err
	}
	role, err := s.readerRole(ctx, a, actor)
	if err != nil {
		return ScorecardView{}, err
	}
	items, err := s.store.ListItems(ctx, auditID)
	if err != nil {
		return ScorecardView{}, err
	}
	in := make([]scoring.Item, len(items))
	for i, it := range items {
		in[i] = it.ScoringItem()
	}
	sc := s.engine.Compute(in, a.ScoringMode())
	v := ScorecardView{AuditID: a.ID, Scorecard: sc}
	if hideTeacherScores(a, role) {
		v.TeacherScoresHidden = true
		v.TeacherTotal = 0
		v.TeacherPredicate = scoring.Predicate{}
		for i := range v.Categories {
			v.Categories[i].TeacherScore = 0
			for j := range v.Categories[i].Subcategories {
				v.Categories[i].Subcategories[j].TeacherScore = 0
			}
		}
	}
	return v, nil
}

// ReassignItems changes per-item assignment on a group practice audit. Only
// an admin or a leader of one of the audit's groups may do it, and assignees
// must belong to the group of their side.
func (s *Service) ReassignItems(ctx context.Context, actor Actor, auditID string, assignments []Assignment) (BatchResult, error) {
	var res BatchResult
	a, err := s.store.GetAudit(ctx, auditID)
	if err != nil {
		return res, err
	}
	if a.Type != TypeGroupPractice {
		return res, errs.Validation(errs.CodeNotGroupPractice, "audit %s is %s, assignment needs a group practice audit", a.ID, a.Type)
	}
	if actor.Role != RoleAdmin {
		groups, err := s.store.GroupMemberships(ctx, actor.UserID)
		if err != nil {
			return res, err
		}
		if !isLeader(a, groups) {
			return res, errs.Authorization(errs.CodeNotLeader, "user %q leads neither group of audit %s", actor.UserID, a.ID)
		}
	}
	items, err := s.store.ListItems(ctx, auditID)
	if err != nil {
		return res, err
	}
	inAudit := make(map[string]bool, len(items))
	for _, it := range items {
		inAudit[it.ID] = true
	}

	memberCache := map[string][]Membership{}
	memberOf := func(userID, groupID string) (bool, error) {
		ms, ok := memberCache[userID]
		if !ok {
			var err error
			if ms, err = s.store.GroupMemberships(ctx, userID); err != nil {
				return false, err
			}
			memberCache[userID] = ms
		}
		for _, m := range ms {
			if m.GroupID == groupID {
				return true, nil
			}
		}
		return false, nil
	}
	checkAssignee := func(userID *string, groupID string, side Role) error {
		if userID == nil || *userID == "" {
			return nil
		}
		ok, err := memberOf(*userID, groupID)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Validation(errs.CodeInvalidAudit, "user %q is not in the %s group %s", *userID, side, groupID)
		}
		return nil
	}

	var updates []ItemUpdate
	for _, as := range assignments {
		if !inAudit[as.ItemID] {
			res.fail(as.ItemID, errs.NotFound("item", as.ItemID))
			continue
		}
		if err := checkAssignee(as.EvaluatorUserID, a.AuditorGroupID, RoleEvaluator); err != nil {
			res.fail(as.ItemID, err)
			continue
		}
		if err := checkAssignee(as.AuditeeUserID, a.AuditeeGroupID, RoleAuditee); err != nil {
			res.fail(as.ItemID, err)
			continue
		}
		updates = append(updates, ItemUpdate{ItemID: as.ItemID, Patch: ItemPatch{
			AssignedEvaluatorUserID: as.EvaluatorUserID,
			AssignedAuditeeUserID:   as.AuditeeUserID,
		}})
	}
	if len(updates) == 0 {
		return res, nil
	}
	if _, err := s.store.UpdateItems(ctx, updates); err != nil {
		for _, u := range updates {
			res.fail(u.ItemID, err)
		}
		return res, nil
	}
	for _, u := range updates {
		res.Succeeded = append(res.Succeeded, u.ItemID)
	}
	s.log.Info("items reassigned", "audit", auditID, "items", len(res.Succeeded), "user", actor.UserID)
	s.record(ctx, syncx.TypeItemsReassigned, auditID, actor.UserID, assignments)
	return res, nil
}

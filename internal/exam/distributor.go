package exam

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-audit/internal/audit"
	"github.com/mind-engage/mindengage-audit/internal/errs"
	syncx "github.com/mind-engage/mindengage-audit/internal/sync"
)

// DistributeRequest asks for one exam audit per participant, each holding a
// random sample of the master template's items.
type DistributeRequest struct {
	MasterAuditID      string          `json:"master_audit_id" validate:"required"`
	ParticipantIDs     []string        `json:"participant_ids" validate:"required,min=1,dive,required"`
	Type               audit.AuditType `json:"type" validate:"required,oneof=midterm final"`
	Title              string          `json:"title" validate:"max=200"`
	TimeLimitMinutes   int             `json:"time_limit_minutes" validate:"gt=0"`
	ScheduledStartTime *time.Time      `json:"scheduled_start_time,omitempty"`
	// SampleSize overrides the service default when positive.
	SampleSize int `json:"sample_size,omitempty" validate:"gte=0"`
	// AllowShortPool samples the whole pool when it is smaller than SampleSize
	// instead of failing.
	AllowShortPool bool `json:"allow_short_pool,omitempty"`
}

type DistributedAudit struct {
	AuditID           string   `json:"audit_id"`
	ParticipantUserID string   `json:"participant_user_id"`
	ItemIDs           []string `json:"item_ids"`
}

type DistributeResult struct {
	MasterAuditID string             `json:"master_audit_id"`
	SampleSize    int                `json:"sample_size"`
	Audits        []DistributedAudit `json:"audits"`
}

// TotalItems is the number of items created across all participants.
func (r DistributeResult) TotalItems() int {
	n := 0
	for _, a := range r.Audits {
		n += len(a.ItemIDs)
	}
	return n
}

func (req DistributeRequest) check() error {
	if !req.Type.IsExam() {
		return errs.Validation(errs.CodeInvalidAuditType, "distribution creates exam audits, got %q", req.Type)
	}
	if req.TimeLimitMinutes <= 0 {
		return errs.Validation(errs.CodeInvalidTimeLimit, "time limit must be positive, got %d minutes", req.TimeLimitMinutes)
	}
	if len(req.ParticipantIDs) == 0 {
		return errs.Validation(errs.CodeNoParticipants, "no participants selected")
	}
	seen := make(map[string]bool, len(req.ParticipantIDs))
	for _, p := range req.ParticipantIDs {
		if strings.TrimSpace(p) == "" {
			return errs.Validation(errs.CodeNoParticipants, "empty participant id")
		}
		if seen[p] {
			return errs.Validation(errs.CodeDuplicateUser, "participant %q listed twice", p)
		}
		seen[p] = true
	}
	return nil
}

// sample draws k distinct indices of [0,n) uniformly and returns them in
// ascending order, so cloned items keep the template order.
func (s *Service) sample(n, k int) []int {
	s.rngMu.Lock()
	perm := s.rng.Perm(n)
	s.rngMu.Unlock()
	idx := perm[:k]
	slices.Sort(idx)
	return idx
}

// cloneItem copies a master item into an exam audit. Auditee content is kept,
// evaluator content and workflow fields start empty, and the item starts
// SUBMITTED so the participant reviews it as evaluator.
func cloneItem(src audit.EvaluationItem, id, auditID string, now time.Time) audit.EvaluationItem {
	return audit.EvaluationItem{
		ID:                 id,
		AuditID:            auditID,
		Category:           src.Category,
		Subcategory:        src.Subcategory,
		Criteria:           src.Criteria,
		SortOrder:          src.SortOrder,
		Weight:             src.Weight,
		SubcategoryWeight:  src.SubcategoryWeight,
		CategoryWeight:     src.CategoryWeight,
		AuditeeAnswer:      src.AuditeeAnswer,
		AuditeeScore:       src.AuditeeScore,
		AuditeeDescription: src.AuditeeDescription,
		EvidenceLink:       src.EvidenceLink,
		Status:             audit.StatusSubmitted,
		Version:            1,
		UpdatedAt:          now,
	}
}

// Distribute creates every participant's exam audit in one atomic insert.
// Either the whole cohort is created or nothing is.
func (s *Service) Distribute(ctx context.Context, actor audit.Actor, req DistributeRequest) (DistributeResult, error) {
	if err := requireAdmin(actor); err != nil {
		return DistributeResult{}, err
	}
	if err := req.check(); err != nil {
		return DistributeResult{}, err
	}
	master, err := s.store.GetAudit(ctx, req.MasterAuditID)
	if err != nil {
		return DistributeResult{}, err
	}
	if master.Type != audit.TypeMasterTemplate {
		return DistributeResult{}, errs.Validation(errs.CodeNotMasterTemplate, "audit %s is %s, not a master template", master.ID, master.Type)
	}
	pool, err := s.store.ListItems(ctx, master.ID)
	if err != nil {
		return DistributeResult{}, err
	}
	n := len(pool)
	if n == 0 {
		return DistributeResult{}, errs.Validation(errs.CodeEmptyPool, "master template %s has no items", master.ID)
	}
	k := s.sampleSize
	if req.SampleSize > 0 {
		k = req.SampleSize
	}
	if k > n {
		if !req.AllowShortPool {
			return DistributeResult{}, errs.Validation(errs.CodeSampleExceedsPool, "sample size %d exceeds the pool of %d items", k, n)
		}
		k = n
	}

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("%s (%s)", master.Title, req.Type)
	}
	now := s.now()
	res := DistributeResult{MasterAuditID: master.ID, SampleSize: k}
	bundles := make([]audit.Bundle, 0, len(req.ParticipantIDs))
	for _, p := range req.ParticipantIDs {
		a := audit.Audit{
			ID:                 s.newID(),
			Type:               req.Type,
			Title:              title,
			Status:             audit.AuditActive,
			AuditeeUserID:      master.AuditeeUserID,
			ParticipantUserID:  p,
			SourceAuditID:      master.ID,
			TimeLimitMinutes:   req.TimeLimitMinutes,
			ScheduledStartTime: req.ScheduledStartTime,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		items := make([]audit.EvaluationItem, 0, k)
		ids := make([]string, 0, k)
		for _, i := range s.sample(n, k) {
			it := cloneItem(pool[i], s.newID(), a.ID, now)
			items = append(items, it)
			ids = append(ids, it.ID)
		}
		bundles = append(bundles, audit.Bundle{Audit: a, Items: items})
		res.Audits = append(res.Audits, DistributedAudit{AuditID: a.ID, ParticipantUserID: p, ItemIDs: ids})
	}

	if err := s.store.InsertAudits(ctx, bundles); err != nil {
		return DistributeResult{}, fmt.Errorf("distribute %s: %w", master.ID, err)
	}
	s.log.Info("exam distributed", "master", master.ID, "type", req.Type,
		"participants", len(bundles), "sample", k, "pool", n, "user", actor.UserID)
	s.record(ctx, syncx.TypeExamDistributed, master.ID, actor.UserID, map[string]any{
		"type": req.Type, "participants": req.ParticipantIDs, "sample_size": k,
	})
	return res, nil
}

package exam

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-audit/internal/audit"
	"github.com/mind-engage/mindengage-audit/internal/errs"
	"github.com/mind-engage/mindengage-audit/internal/examtimer"
	syncx "github.com/mind-engage/mindengage-audit/internal/sync"
)

var (
	t0    = time.Date(2026, 5, 11, 8, 0, 0, 0, time.UTC)
	admin = audit.Actor{UserID: "root", Role: audit.RoleAdmin}
	pat   = audit.Actor{UserID: "pat", Role: audit.RoleEvaluator}
)

type fixture struct {
	svc    *Service
	store  *audit.MemoryStore
	events *syncx.MemoryLog
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: audit.NewInMemoryStore(), events: syncx.NewMemoryLog(), now: t0}
	f.svc = NewService(f.store,
		WithClock(func() time.Time { return f.now }),
		WithEvents(f.events),
		WithRand(rand.New(rand.NewPCG(7, 11))),
	)
	return f
}

// master stores a master template audit with n answered items.
func (f *fixture) master(t *testing.T, n int) audit.Audit {
	t.Helper()
	a := audit.Audit{
		ID: "master", Type: audit.TypeMasterTemplate, Title: "Reference", Status: audit.AuditActive,
		AuditorUserID: "root", AuditeeUserID: "ana", CreatedAt: t0, UpdatedAt: t0,
	}
	items := make([]audit.EvaluationItem, n)
	for i := range items {
		items[i] = audit.EvaluationItem{
			ID:                 fmt.Sprintf("m%02d", i),
			Category:           fmt.Sprintf("cat-%d", i%4),
			Subcategory:        "existence",
			Criteria:           fmt.Sprintf("criterion %02d", i),
			SortOrder:          i + 1,
			Weight:             100,
			SubcategoryWeight:  10,
			CategoryWeight:     25,
			AuditeeAnswer:      "B",
			AuditeeScore:       75,
			AuditeeDescription: fmt.Sprintf("description %02d", i),
			EvidenceLink:       "https://evidence.example/" + fmt.Sprint(i),
			EvaluatorAnswer:    "A",
			EvaluatorScore:     100,
			Note:               "master note",
			Status:             audit.StatusFinalAgreed,
			Version:            3,
		}
	}
	require.NoError(t, f.store.InsertAudits(context.Background(), []audit.Bundle{{Audit: a, Items: items}}))
	return a
}

func participants(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("student-%02d", i)
	}
	return out
}

func TestDistribute_SamplesPerParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.master(t, 25)

	res, err := f.svc.Distribute(ctx, admin, DistributeRequest{
		MasterAuditID: "master", ParticipantIDs: participants(10), Type: audit.TypeMidterm, TimeLimitMinutes: 90,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, res.SampleSize)
	require.Len(t, res.Audits, 10)
	assert.Equal(t, 200, res.TotalItems())

	masterItems, err := f.store.ListItems(ctx, "master")
	require.NoError(t, err)
	byCriteria := map[string]audit.EvaluationItem{}
	for _, it := range masterItems {
		byCriteria[it.Criteria] = it
	}

	allIDs := map[string]bool{}
	for i, d := range res.Audits {
		assert.Equal(t, participants(10)[i], d.ParticipantUserID)
		a, err := f.store.GetAudit(ctx, d.AuditID)
		require.NoError(t, err)
		assert.Equal(t, audit.TypeMidterm, a.Type)
		assert.Equal(t, d.ParticipantUserID, a.ParticipantUserID)
		assert.Equal(t, "ana", a.AuditeeUserID)
		assert.Equal(t, "master", a.SourceAuditID)
		assert.Nil(t, a.ExamStartTime)
		assert.Equal(t, 90, a.TimeLimitMinutes)

		items, err := f.store.ListItems(ctx, d.AuditID)
		require.NoError(t, err)
		require.Len(t, items, 20)
		seen := map[string]bool{}
		for _, it := range items {
			src, ok := byCriteria[it.Criteria]
			require.True(t, ok, "item %s is not from the master pool", it.ID)
			assert.False(t, seen[it.Criteria], "criterion sampled twice")
			seen[it.Criteria] = true
			assert.False(t, allIDs[it.ID], "item id reused")
			allIDs[it.ID] = true

			assert.NotEqual(t, src.ID, it.ID)
			assert.Equal(t, audit.StatusSubmitted, it.Status)
			assert.Equal(t, src.AuditeeAnswer, it.AuditeeAnswer)
			assert.Equal(t, src.AuditeeScore, it.AuditeeScore)
			assert.Equal(t, src.AuditeeDescription, it.AuditeeDescription)
			assert.Equal(t, src.EvidenceLink, it.EvidenceLink)
			assert.Empty(t, it.EvaluatorAnswer)
			assert.Empty(t, it.Note)
			assert.Zero(t, it.EvaluatorScore)
			assert.EqualValues(t, 1, it.Version)
		}
	}
	assert.Len(t, f.events.OfType(syncx.TypeExamDistributed), 1)
}

func TestDistribute_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.master(t, 5)
	base := DistributeRequest{MasterAuditID: "master", ParticipantIDs: participants(3), Type: audit.TypeFinal, TimeLimitMinutes: 60}

	_, err := f.svc.Distribute(ctx, pat, base)
	assert.True(t, errs.IsAuthorization(err))

	_, err = f.svc.Distribute(ctx, admin, base)
	assert.True(t, errs.IsValidation(err))
	assert.Equal(t, errs.CodeSampleExceedsPool, errs.CodeOf(err))

	req := base
	req.ParticipantIDs = []string{"a", "b", "a"}
	_, err = f.svc.Distribute(ctx, admin, req)
	assert.Equal(t, errs.CodeDuplicateUser, errs.CodeOf(err))

	req = base
	req.ParticipantIDs = nil
	_, err = f.svc.Distribute(ctx, admin, req)
	assert.Equal(t, errs.CodeNoParticipants, errs.CodeOf(err))

	req = base
	req.Type = audit.TypeRegular
	_, err = f.svc.Distribute(ctx, admin, req)
	assert.Equal(t, errs.CodeInvalidAuditType, errs.CodeOf(err))

	req = base
	req.TimeLimitMinutes = 0
	_, err = f.svc.Distribute(ctx, admin, req)
	assert.Equal(t, errs.CodeInvalidTimeLimit, errs.CodeOf(err))

	req = base
	req.MasterAuditID = "missing"
	_, err = f.svc.Distribute(ctx, admin, req)
	assert.True(t, errs.IsNotFound(err))

	// nothing was created by any failed call
	_, err = f.store.ListItems(ctx, "master")
	require.NoError(t, err)
	assert.Empty(t, f.events.OfType(syncx.TypeExamDistributed))
}

func TestDistribute_ShortPool(t *testing.T) {
	f := newFixture(t)
	f.master(t, 5)
	res, err := f.svc.Distribute(context.Background(), admin, DistributeRequest{
		MasterAuditID: "master", ParticipantIDs: participants(2), Type: audit.TypeFinal,
		TimeLimitMinutes: 60, AllowShortPool: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, res.SampleSize)
	assert.Equal(t, 10, res.TotalItems())
}

func TestDistribute_EmptyPool(t *testing.T) {
	f := newFixture(t)
	f.master(t, 0)
	_, err := f.svc.Distribute(context.Background(), admin, DistributeRequest{
		MasterAuditID: "master", ParticipantIDs: participants(2), Type: audit.TypeFinal,
		TimeLimitMinutes: 60, AllowShortPool: true,
	})
	assert.Equal(t, errs.CodeEmptyPool, errs.CodeOf(err))
}

func TestDistribute_NotMaster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.InsertAudits(ctx, []audit.Bundle{{Audit: audit.Audit{ID: "reg", Type: audit.TypeRegular}}}))
	_, err := f.svc.Distribute(ctx, admin, DistributeRequest{
		MasterAuditID: "reg", ParticipantIDs: participants(1), Type: audit.TypeFinal, TimeLimitMinutes: 60,
	})
	assert.Equal(t, errs.CodeNotMasterTemplate, errs.CodeOf(err))
}

// distributed gives pat one exam built from a 25-item master.
func (f *fixture) distributed(t *testing.T, scheduled *time.Time) string {
	t.Helper()
	f.master(t, 25)
	res, err := f.svc.Distribute(context.Background(), admin, DistributeRequest{
		MasterAuditID: "master", ParticipantIDs: []string{"pat"}, Type: audit.TypeMidterm,
		TimeLimitMinutes: 60, ScheduledStartTime: scheduled,
	})
	require.NoError(t, err)
	return res.Audits[0].AuditID
}

func TestStart_SecondCallIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.distributed(t, nil)

	v, err := f.svc.Timer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, examtimer.PhaseReadyToStart, v.State.Phase)

	_, err = f.svc.Start(ctx, audit.Actor{UserID: "other", Role: audit.RoleEvaluator}, id)
	assert.Equal(t, errs.CodeNotParticipant, errs.CodeOf(err))

	v, err = f.svc.Start(ctx, pat, id)
	require.NoError(t, err)
	assert.Equal(t, examtimer.PhaseInProgress, v.State.Phase)
	assert.EqualValues(t, 3600, v.RemainingSeconds)
	before, err := f.store.GetAudit(ctx, id)
	require.NoError(t, err)

	f.now = t0.Add(10 * time.Minute)
	v, err = f.svc.Start(ctx, pat, id)
	require.NoError(t, err)
	assert.EqualValues(t, 3000, v.RemainingSeconds)
	after, err := f.store.GetAudit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.ExamStartTime, after.ExamStartTime)
	assert.Len(t, f.events.OfType(syncx.TypeExamStarted), 1)
}

func TestStart_RaceLoserIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.distributed(t, nil)

	// another request started the exam between our read and our write
	started, err := f.store.StartExam(ctx, id, t0.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, started)

	v, err := f.svc.Start(ctx, pat, id)
	require.NoError(t, err)
	assert.EqualValues(t, 59*60, v.RemainingSeconds)
}

func TestStart_WaitingAndLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := t0.Add(time.Hour)
	id := f.distributed(t, &at)

	_, err := f.svc.Start(ctx, pat, id)
	assert.Equal(t, errs.CodeNotScheduled, errs.CodeOf(err))
	assert.True(t, errs.IsAuthorization(err))

	f.now = at
	_, err = f.svc.Start(ctx, pat, id)
	require.NoError(t, err)

	f.now = at.Add(61 * time.Minute)
	v, err := f.svc.Timer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, examtimer.PhaseLocked, v.State.Phase)
	assert.Equal(t, examtimer.LockExpired, v.State.Reason)

	_, err = f.svc.Start(ctx, pat, id)
	assert.Equal(t, errs.CodeExamLocked, errs.CodeOf(err))
}

func TestSubmitEarly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.distributed(t, nil)

	_, err := f.svc.SubmitEarly(ctx, pat, id)
	assert.Equal(t, errs.CodeExamNotStarted, errs.CodeOf(err))

	_, err = f.svc.Start(ctx, pat, id)
	require.NoError(t, err)
	f.now = t0.Add(5 * time.Minute)
	v, err := f.svc.SubmitEarly(ctx, pat, id)
	require.NoError(t, err)
	assert.Equal(t, examtimer.PhaseLocked, v.State.Phase)
	assert.Equal(t, examtimer.LockManual, v.State.Reason)

	a, err := f.store.GetAudit(ctx, id)
	require.NoError(t, err)
	assert.True(t, a.IsManuallyLocked)
	assert.Equal(t, audit.AuditLocked, a.Status)

	_, err = f.svc.SubmitEarly(ctx, pat, id)
	require.NoError(t, err)
}

func TestManualLockAndExtend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.distributed(t, nil)
	_, err := f.svc.Start(ctx, pat, id)
	require.NoError(t, err)

	_, err = f.svc.ToggleManualLock(ctx, pat, id, false)
	assert.True(t, errs.IsAuthorization(err))

	v, err := f.svc.ToggleManualLock(ctx, admin, id, true)
	require.NoError(t, err)
	assert.True(t, v.State.Locked())

	v, err = f.svc.ToggleManualLock(ctx, admin, id, false)
	require.NoError(t, err)
	assert.Equal(t, examtimer.PhaseInProgress, v.State.Phase)

	// unlocking after expiry keeps the exam closed
	f.now = t0.Add(2 * time.Hour)
	_, err = f.svc.ToggleManualLock(ctx, admin, id, true)
	require.NoError(t, err)
	v, err = f.svc.ToggleManualLock(ctx, admin, id, false)
	require.NoError(t, err)
	assert.Equal(t, examtimer.PhaseLocked, v.State.Phase)
	assert.Equal(t, examtimer.LockExpired, v.State.Reason)
	a, err := f.store.GetAudit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, audit.AuditLocked, a.Status)

	_, err = f.svc.ExtendTimeLimit(ctx, admin, id, 0)
	assert.Equal(t, errs.CodeInvalidTimeLimit, errs.CodeOf(err))

	v, err = f.svc.ExtendTimeLimit(ctx, admin, id, 90)
	require.NoError(t, err)
	assert.Equal(t, examtimer.PhaseInProgress, v.State.Phase)
	assert.EqualValues(t, 30*60, v.RemainingSeconds)
	a, err = f.store.GetAudit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 150, a.TimeLimitMinutes)
	assert.Equal(t, audit.AuditActive, a.Status)
}

func TestReleaseScores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.distributed(t, nil)

	_, err := f.svc.ReleaseScores(ctx, pat, id, true)
	assert.True(t, errs.IsAuthorization(err))

	a, err := f.svc.ReleaseScores(ctx, admin, id, true)
	require.NoError(t, err)
	assert.True(t, a.ScoreReleased)

	_, err = f.svc.ReleaseScores(ctx, admin, "master", true)
	assert.Equal(t, errs.CodeNotExam, errs.CodeOf(err))
}

// The participant reviews their exam through the audit workflow while the
// timer is running.
func TestExamFlowsThroughWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.distributed(t, nil)
	wf := audit.NewService(f.store, audit.WithClock(func() time.Time { return f.now }))

	items, err := f.store.ListItems(ctx, id)
	require.NoError(t, err)
	answer := "C"

	_, err = wf.Publish(ctx, pat, items[0].ID, audit.EvaluatorChanges{Answer: &answer})
	assert.Equal(t, errs.CodeExamNotStarted, errs.CodeOf(err))

	_, err = f.svc.Start(ctx, pat, id)
	require.NoError(t, err)
	it, err := wf.Publish(ctx, pat, items[0].ID, audit.EvaluatorChanges{Answer: &answer})
	require.NoError(t, err)
	assert.Equal(t, audit.StatusPublishedToAuditee, it.Status)

	sc, err := wf.Scorecard(ctx, pat, id)
	require.NoError(t, err)
	// 19 items keep the auditee's 75, one is scored 50, each worth 5 points
	assert.InDelta(t, 19*75.0/20+50.0/20, sc.Total, 0.01)

	_, err = f.svc.SubmitEarly(ctx, pat, id)
	require.NoError(t, err)
	_, err = wf.Publish(ctx, pat, items[1].ID, audit.EvaluatorChanges{})
	assert.Equal(t, errs.CodeExamLocked, errs.CodeOf(err))
}

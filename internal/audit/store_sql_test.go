package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-audit/internal/db"
	"github.com/mind-engage/mindengage-audit/internal/errs"
	"github.com/mind-engage/mindengage-audit/internal/scoring"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqlDB, err := db.Open(ctx, db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewSQLStore(sqlDB, string(db.DriverSQLite))
}

func sqlBundle(id string) Bundle {
	a := Audit{
		ID: id, Type: TypeRegular, Title: "sql", Status: AuditActive,
		AuditorUserID: "eva", AuditeeUserID: "ana", CreatedAt: t0, UpdatedAt: t0,
	}
	n := 0
	items := ItemsFromTemplate(scoring.DefaultTemplate(), id, func() string {
		n++
		return fmt.Sprintf("%s-i%02d", id, n)
	}, t0)
	return Bundle{Audit: a, Items: items}
}

func TestSQLStore_InsertAndRead(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()
	b := sqlBundle("a1")
	require.NoError(t, s.InsertAudits(ctx, []Bundle{b}))

	got, err := s.GetAudit(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, b.Audit, got)

	items, err := s.ListItems(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, items, len(b.Items))
	for i := range items {
		assert.Equal(t, b.Items[i], items[i])
	}

	_, err = s.GetAudit(ctx, "nope")
	assert.True(t, errs.IsNotFound(err))
	_, err = s.GetItem(ctx, "nope")
	assert.True(t, errs.IsNotFound(err))
	_, err = s.ListItems(ctx, "nope")
	assert.True(t, errs.IsNotFound(err))
}

func TestSQLStore_InsertIsAtomic(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertAudits(ctx, []Bundle{sqlBundle("a1")}))

	// the second bundle collides with a1, so b2 must not survive either
	err := s.InsertAudits(ctx, []Bundle{sqlBundle("b2"), sqlBundle("a1")})
	require.Error(t, err)
	_, err = s.GetAudit(ctx, "b2")
	assert.True(t, errs.IsNotFound(err))
}

func TestSQLStore_UpdateItemConditions(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()
	b := sqlBundle("a1")
	require.NoError(t, s.InsertAudits(ctx, []Bundle{b}))
	id := b.Items[0].ID

	answer, score := "B", 75.0
	it, err := s.UpdateItem(ctx, id, ItemPatch{Version: 1, FromStatus: StatusDrafting, AuditeeAnswer: &answer, AuditeeScore: &score})
	require.NoError(t, err)
	assert.Equal(t, "B", it.AuditeeAnswer)
	assert.EqualValues(t, 2, it.Version)

	_, err = s.UpdateItem(ctx, id, ItemPatch{Version: 1, AuditeeAnswer: &answer})
	assert.True(t, errs.IsConcurrency(err))

	submitted := StatusSubmitted
	_, err = s.UpdateItem(ctx, id, ItemPatch{FromStatus: StatusPublishedToAuditee, Status: &submitted})
	assert.True(t, errs.IsConcurrency(err))

	plan := "plan"
	_, err = s.UpdateItem(ctx, id, ItemPatch{RequireEmptyActionPlan: true, ActionPlan: &plan})
	require.NoError(t, err)
	_, err = s.UpdateItem(ctx, id, ItemPatch{RequireEmptyActionPlan: true, ActionPlan: &plan})
	assert.Equal(t, errs.CodeActionPlanLocked, errs.CodeOf(err))

	_, err = s.UpdateItem(ctx, "nope", ItemPatch{ActionPlan: &plan})
	assert.True(t, errs.IsNotFound(err))
}

func TestSQLStore_UpdateItemsIsAtomic(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()
	b := sqlBundle("a1")
	require.NoError(t, s.InsertAudits(ctx, []Bundle{b}))

	to := StatusSubmitted
	_, err := s.UpdateItems(ctx, []ItemUpdate{
		{ItemID: b.Items[0].ID, Patch: ItemPatch{FromStatus: StatusDrafting, Status: &to}},
		{ItemID: b.Items[1].ID, Patch: ItemPatch{FromStatus: StatusDisputed, Status: &to}},
	})
	require.Error(t, err)

	it, err := s.GetItem(ctx, b.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDrafting, it.Status)

	out, err := s.UpdateItems(ctx, []ItemUpdate{
		{ItemID: b.Items[0].ID, Patch: ItemPatch{FromStatus: StatusDrafting, Status: &to}},
		{ItemID: b.Items[1].ID, Patch: ItemPatch{FromStatus: StatusDrafting, Status: &to}},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, StatusSubmitted, out[1].Status)
}

func TestSQLStore_StartExamOnce(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()
	b := sqlBundle("x1")
	b.Audit.Type = TypeMidterm
	b.Audit.ParticipantUserID = "pat"
	b.Audit.TimeLimitMinutes = 90
	require.NoError(t, s.InsertAudits(ctx, []Bundle{b}))

	started, err := s.StartExam(ctx, "x1", t0)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = s.StartExam(ctx, "x1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, started)

	a, err := s.GetAudit(ctx, "x1")
	require.NoError(t, err)
	require.NotNil(t, a.ExamStartTime)
	assert.True(t, t0.Equal(*a.ExamStartTime))

	_, err = s.StartExam(ctx, "nope", t0)
	assert.True(t, errs.IsNotFound(err))
}

func TestSQLStore_UpdateAndDeleteAudit(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()
	b := sqlBundle("a1")
	require.NoError(t, s.InsertAudits(ctx, []Bundle{b}))

	locked, status, limit := true, AuditLocked, 30
	a, err := s.UpdateAudit(ctx, "a1", AuditPatch{IsManuallyLocked: &locked, Status: &status, TimeLimitMinutes: &limit})
	require.NoError(t, err)
	assert.True(t, a.IsManuallyLocked)
	assert.Equal(t, AuditLocked, a.Status)
	assert.Equal(t, 30, a.TimeLimitMinutes)

	require.NoError(t, s.DeleteAudit(ctx, "a1"))
	_, err = s.GetItem(ctx, b.Items[0].ID)
	assert.True(t, errs.IsNotFound(err))
	assert.True(t, errs.IsNotFound(s.DeleteAudit(ctx, "a1")))
}

func TestSQLStore_Memberships(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddMembership(ctx, Membership{GroupID: "g1", UserID: "eva"}))
	require.NoError(t, s.AddMembership(ctx, Membership{GroupID: "g1", UserID: "eva", Leader: true}))
	require.NoError(t, s.AddMembership(ctx, Membership{GroupID: "g2", UserID: "eva"}))

	ms, err := s.GroupMemberships(ctx, "eva")
	require.NoError(t, err)
	assert.Equal(t, []Membership{
		{GroupID: "g1", UserID: "eva", Leader: true},
		{GroupID: "g2", UserID: "eva"},
	}, ms)
}

func TestService_OverSQLStore(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()
	svc := NewService(s, WithClock(func() time.Time { return t0 }))

	b, err := svc.CreateAudit(ctx, admin, NewAudit{Type: TypeRegular, AuditorUserID: "eva", AuditeeUserID: "ana"})
	require.NoError(t, err)
	id := b.Items[0].ID

	_, err = svc.SaveAuditeeDraft(ctx, ana, id, AuditeeChanges{Answer: ptr("A")})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, ana, id, 0)
	require.NoError(t, err)
	res, err := svc.PublishAll(ctx, eva, b.Audit.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, res.Succeeded)
	it, err := svc.Agree(ctx, ana, id, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalAgreed, it.Status)
}

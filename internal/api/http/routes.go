package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-audit/internal/audit"
	authmw "github.com/mind-engage/mindengage-audit/internal/auth/middleware"
	"github.com/mind-engage/mindengage-audit/internal/exam"
	"github.com/mind-engage/mindengage-audit/internal/rbac"
	"github.com/mind-engage/mindengage-audit/internal/storage"
)

// Deps are the collaborators the API routes call into.
type Deps struct {
	Audits *audit.Service
	Exams  *exam.Service
	Users  *authmw.Users
	Blobs  storage.BlobStore
	Events EventFeed
	Guard  rbac.Guard
}

// Mount registers the protected API on r. The caller installs authentication
// first so that subject and role are in the request context.
func Mount(r chi.Router, d Deps) {
	g := d.Guard
	item := g.RequireAny(rbac.PermItemAuditee, rbac.PermItemReview)

	r.Route("/audits", func(ar chi.Router) {
		ar.With(g.Require(rbac.PermAuditCreate)).Post("/", CreateAuditHandler(d.Audits))
		ar.Route("/{auditID}", func(one chi.Router) {
			one.With(g.Require(rbac.PermAuditView)).Get("/", GetAuditHandler(d.Audits))
			one.With(g.Require(rbac.PermAuditDelete)).Delete("/", DeleteAuditHandler(d.Audits))
			one.With(g.Require(rbac.PermAuditView)).Get("/items", ListItemsHandler(d.Audits))
			one.With(g.Require(rbac.PermAuditView)).Get("/scorecard", ScorecardHandler(d.Audits))
			one.With(g.Require(rbac.PermItemReview)).Post("/publish", PublishAllHandler(d.Audits))
			one.With(g.Require(rbac.PermAuditAssign)).Post("/assignments", ReassignItemsHandler(d.Audits))
			one.With(g.Require(rbac.PermTeacherScore)).Post("/teacher-scores", TeacherScoresHandler(d.Audits))
		})
	})

	r.Route("/items/{itemID}", func(ir chi.Router) {
		ir.With(g.Require(rbac.PermItemAuditee)).Patch("/auditee", SaveAuditeeDraftHandler(d.Audits))
		ir.With(item).Patch("/evaluator", SaveEvaluatorReviewHandler(d.Audits))
		ir.With(g.Require(rbac.PermTeacherScore)).Put("/teacher-score", TeacherScoreHandler(d.Audits))
		ir.With(g.Require(rbac.PermEvidenceUpload)).Post("/evidence", UploadEvidenceHandler(d.Audits, d.Blobs))
		ir.With(item).Post("/{action}", TransitionHandler(d.Audits))
	})

	r.Route("/exams", func(er chi.Router) {
		er.With(g.Require(rbac.PermExamManage)).Post("/distribute", DistributeHandler(d.Exams))
		er.Route("/{auditID}", func(one chi.Router) {
			one.With(g.Require(rbac.PermAuditView)).Get("/timer", TimerHandler(d.Exams))
			one.With(g.Require(rbac.PermExamTake)).Post("/start", StartExamHandler(d.Exams))
			one.With(g.Require(rbac.PermExamTake)).Post("/submit", SubmitExamHandler(d.Exams))
			one.With(g.Require(rbac.PermExamManage)).Post("/lock", LockExamHandler(d.Exams))
			one.With(g.Require(rbac.PermExamManage)).Post("/extend", ExtendExamHandler(d.Exams))
			one.With(g.Require(rbac.PermExamManage)).Post("/release", ReleaseScoresHandler(d.Exams))
		})
	})

	if d.Users != nil {
		r.With(g.Require(rbac.PermUsersManage)).Post("/users/bulk", BulkUpsertUsersHandler(d.Users))
		r.With(g.Require(rbac.PermUsersManage)).Get("/users", ListUsersHandler(d.Users))
		r.Post("/users/change-password", ChangePasswordHandler(d.Users))
	}
	if d.Events != nil {
		r.With(g.Require(rbac.PermEventsRead)).Get("/events", EventsHandler(d.Events))
	}
	if d.Blobs != nil {
		r.With(g.Require(rbac.PermAuditView)).Get("/blobs/*", BlobHandler(d.Audits, d.Blobs))
	}
}

// Health answers 200 on /healthz and on /readyz while ready returns nil.
func Health(r chi.Router, ready func() error) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

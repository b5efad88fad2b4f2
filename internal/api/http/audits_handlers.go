package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-audit/internal/audit"
)

func CreateAuditHandler(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req audit.NewAudit
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		b, err := svc.CreateAudit(r.Context(), actorFrom(r), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"audit": b.Audit, "item_count": len(b.Items)})
	}
}

func GetAuditHandler(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.GetAudit(r.Context(), actorFrom(r), chi.URLParam(r, "auditID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func DeleteAuditHandler(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteAudit(r.Context(), actorFrom(r), chi.URLParam(r, "auditID")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListItemsHandler(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.ListItems(r.Context(), actorFrom(r), chi.URLParam(r, "auditID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func ScorecardHandler(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, err := svc.Scorecard(r.Context(), actorFrom(r), chi.URLParam(r, "auditID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sc)
	}
}

// batchStatus is 200 when every item went through and 207 otherwise; the
// body always lists both sides.
func batchStatus(res audit.BatchResult) int {
	if res.OK() {
		return http.StatusOK
	}
	return http.StatusMultiStatus
}

func PublishAllHandler(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.PublishAll(r.Context(), actorFrom(r), chi.URLParam(r, "auditID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, batchStatus(res), res)
	}
}

type assignmentsReq struct {
	Assignments []audit.Assignment `json:"assignments" validate:"required,min=1,dive"`
}

func ReassignItemsHandler(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignmentsReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := svc.ReassignItems(r.Context(), actorFrom(r), chi.URLParam(r, "auditID"), req.Assignments)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, batchStatus(res), res)
	}
}

type teacherScoresReq struct {
	Scores []audit.TeacherScore `json:"scores" validate:"required,min=1,dive"`
}

func TeacherScoresHandler(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req teacherScoresReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := svc.SetTeacherScores(r.Context(), actorFrom(r), chi.URLParam(r, "auditID"), req.Scores)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, batchStatus(res), res)
	}
}

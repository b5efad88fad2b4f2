package http

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-audit/internal/audit"
	"github.com/mind-engage/mindengage-audit/internal/errs"
	"github.com/mind-engage/mindengage-audit/internal/storage"
)

// maxEvidenceBytes caps one evidence upload.
const maxEvidenceBytes = 32 << 20

func SaveAuditeeDraftHandler(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req audit.AuditeeChanges
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		it, err := svc.SaveAuditeeDraft(r.Context(), actorFrom(r), chi.URLParam(r, "itemID"), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

func SaveEvaluatorReviewHandler(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req audit.EvaluatorChanges
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		it, err := svc.SaveEvaluatorReview(r.Context(), actorFrom(r), chi.URLParam(r, "itemID"), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

// transitionReq is the body of the item transition routes. Text carries the
// response, rebuttal or action plan depending on the route.
type transitionReq struct {
	Version  int64  `json:"version" validate:"gte=0"`
	Response string `json:"response"`
	Rebuttal string `json:"rebuttal"`
	Plan     string `json:"action_plan"`
}

// TransitionHandler serves POST /items/{itemID}/{action}.
func TransitionHandler(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, actor, id := r.Context(), actorFrom(r), chi.URLParam(r, "itemID")
		action := chi.URLParam(r, "action")

		var (
			it  audit.EvaluationItem
			err error
		)
		switch action {
		case "publish", "accept-dispute":
			var c audit.EvaluatorChanges
			if err := decode(r, &c); err != nil {
				writeError(w, r, err)
				return
			}
			if action == "publish" {
				it, err = svc.Publish(ctx, actor, id, c)
			} else {
				it, err = svc.AcceptDispute(ctx, actor, id, c)
			}
		case "submit", "agree", "disagree", "reject-dispute", "action-plan":
			var req transitionReq
			if err := decode(r, &req); err != nil {
				writeError(w, r, err)
				return
			}
			switch action {
			case "submit":
				it, err = svc.Submit(ctx, actor, id, req.Version)
			case "agree":
				it, err = svc.Agree(ctx, actor, id, req.Version)
			case "disagree":
				it, err = svc.Disagree(ctx, actor, id, req.Response, req.Version)
			case "reject-dispute":
				it, err = svc.RejectDispute(ctx, actor, id, req.Rebuttal, req.Version)
			case "action-plan":
				it, err = svc.SubmitActionPlan(ctx, actor, id, req.Plan, req.Version)
			}
		default:
			writeError(w, r, errs.NotFound("action", action))
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

type teacherScoreReq struct {
	Score *float64 `json:"score" validate:"required"`
}

func TeacherScoreHandler(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req teacherScoreReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		it, err := svc.SetTeacherScore(r.Context(), actorFrom(r), chi.URLParam(r, "itemID"), *req.Score)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

// UploadEvidenceHandler takes a multipart file= upload, stores it and saves
// its URL as the item's evidence link.
func UploadEvidenceHandler(svc *audit.Service, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxEvidenceBytes)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, errs.Validation(errs.CodeBadRequest, "file required"))
			return
		}
		defer f.Close()

		it, err := svc.AttachEvidence(r.Context(), actorFrom(r), chi.URLParam(r, "itemID"),
			func(auditID, itemID string) (string, func(), error) {
				key, err := bs.Put(storage.EvidenceKey(auditID, itemID, hdr.Filename), f)
				if err != nil {
					return "", nil, err
				}
				discard := func() {
					if err := bs.Delete(key); err != nil {
						slog.WarnContext(r.Context(), "evidence not removed", "key", key, "err", err)
					}
				}
				link, err := bs.SignedURL(key)
				if err != nil {
					discard()
					return "", nil, err
				}
				return link, discard, nil
			})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

// BlobHandler serves GET /blobs/* from the blob store to callers with a role
// on the audit the key belongs to.
func BlobHandler(svc *audit.Service, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		if err := svc.AuthorizeEvidence(r.Context(), actorFrom(r), key); err != nil {
			writeError(w, r, err)
			return
		}
		rc, err := bs.Get(key)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, rc)
	}
}

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-audit/internal/exam"
)

func DistributeHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exam.DistributeRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := svc.Distribute(r.Context(), actorFrom(r), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

func TimerHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Timer(r.Context(), chi.URLParam(r, "auditID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func StartExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Start(r.Context(), actorFrom(r), chi.URLParam(r, "auditID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func SubmitExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.SubmitEarly(r.Context(), actorFrom(r), chi.URLParam(r, "auditID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

type lockReq struct {
	Locked bool `json:"locked"`
}

func LockExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req lockReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		v, err := svc.ToggleManualLock(r.Context(), actorFrom(r), chi.URLParam(r, "auditID"), req.Locked)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

type extendReq struct {
	Minutes int `json:"minutes" validate:"gt=0"`
}

func ExtendExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extendReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		v, err := svc.ExtendTimeLimit(r.Context(), actorFrom(r), chi.URLParam(r, "auditID"), req.Minutes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

type releaseReq struct {
	Released bool `json:"released"`
}

func ReleaseScoresHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req releaseReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		a, err := svc.ReleaseScores(r.Context(), actorFrom(r), chi.URLParam(r, "auditID"), req.Released)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-audit/internal/audit"
	authmw "github.com/mind-engage/mindengage-audit/internal/auth/middleware"
	"github.com/mind-engage/mindengage-audit/internal/errs"
	"github.com/mind-engage/mindengage-audit/internal/rbac"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status for err's kind. Unclassified errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	body := errorBody{Code: string(errs.CodeOf(err)), Message: err.Error()}
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		body = errorBody{Code: "INTERNAL", Message: "internal error"}
	}
	var e *errs.Error
	if errors.As(err, &e) {
		body.Message = e.Message
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into v and runs its validate tags. An empty body
// decodes as the zero value.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errs.Validation(errs.CodeBadRequest, "bad json: %v", err)
	}
	return check(v)
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		fields := make([]string, 0, len(ves))
		for _, fe := range ves {
			fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
		}
		return errs.Validation(errs.CodeBadRequest, "invalid fields: %s", strings.Join(fields, ", "))
	}
	return errs.Validation(errs.CodeBadRequest, "%v", err)
}

func actorFrom(r *http.Request) audit.Actor {
	return audit.Actor{
		UserID: authmw.SubjectFromContext(r.Context()),
		Role:   audit.Role(rbac.RoleFromContext(r.Context())),
	}
}

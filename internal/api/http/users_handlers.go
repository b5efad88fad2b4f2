package http

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	authmw "github.com/mind-engage/mindengage-audit/internal/auth/middleware"
	"github.com/mind-engage/mindengage-audit/internal/errs"
)

type userRow struct {
	ID       string `json:"id" validate:"required"`
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=evaluator auditee admin observer"`
	Password string `json:"password,omitempty"` // plaintext optional (LAN-only)
}

type userRows struct {
	Users []userRow `validate:"dive"`
}

// BulkUpsertUsersHandler accepts a multipart file= (CSV or JSON) or a raw
// JSON array body.
func BulkUpsertUsersHandler(users *authmw.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []userRow
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				writeError(w, r, errs.Validation(errs.CodeBadRequest, "file required"))
				return
			}
			defer f.Close()
			rows, err = readUserRows(f)
			if err != nil {
				writeError(w, r, errs.Validation(errs.CodeBadRequest, "%v", err))
				return
			}
		} else if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			writeError(w, r, errs.Validation(errs.CodeBadRequest, "expected JSON array or multipart file"))
			return
		}
		if err := check(userRows{Users: rows}); err != nil {
			writeError(w, r, err)
			return
		}
		for _, row := range rows {
			u := authmw.User{ID: row.ID, Username: row.Username, Role: row.Role}
			if err := users.Upsert(r.Context(), u, row.Password); err != nil {
				writeError(w, r, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]int{"upserted": len(rows)})
	}
}

// readUserRows sniffs JSON vs CSV by the first non-space byte.
func readUserRows(r io.Reader) ([]userRow, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil {
			return nil, errors.New("empty file")
		}
		if b[0] == ' ' || b[0] == '\n' || b[0] == '\r' || b[0] == '\t' {
			_, _ = br.ReadByte()
			continue
		}
		if b[0] == '[' {
			var rows []userRow
			if err := json.NewDecoder(br).Decode(&rows); err != nil {
				return nil, errors.New("bad json")
			}
			return rows, nil
		}
		return parseCSV(br)
	}
}

func parseCSV(r io.Reader) ([]userRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"id", "username", "role"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	var out []userRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := userRow{
			ID:       strings.TrimSpace(rec[idx["id"]]),
			Username: strings.TrimSpace(rec[idx["username"]]),
			Role:     strings.ToLower(strings.TrimSpace(rec[idx["role"]])),
		}
		if i, ok := idx["password"]; ok && i < len(rec) {
			row.Password = rec[i]
		}
		out = append(out, row)
	}
	return out, nil
}

func ListUsersHandler(users *authmw.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := users.List(r.Context(), r.URL.Query().Get("role"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type changePasswordReq struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func ChangePasswordHandler(users *authmw.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req changePasswordReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		err := users.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword)
		if errors.Is(err, authmw.ErrInvalidCredentials) {
			writeError(w, r, errs.Authorization(errs.CodeBadCredentials, "incorrect old password"))
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

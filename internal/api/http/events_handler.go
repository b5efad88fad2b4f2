package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-audit/internal/errs"
	syncx "github.com/mind-engage/mindengage-audit/internal/sync"
)

type EventFeed interface {
	Since(ctx context.Context, after int64, limit int) ([]syncx.Event, error)
}

// EventsHandler serves GET /events?after=<seq>&limit=<n>, oldest first.
func EventsHandler(feed EventFeed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var after int64
		if v := q.Get("after"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				writeError(w, r, errs.Validation(errs.CodeBadRequest, "after must be a non-negative integer"))
				return
			}
			after = n
		}
		limit := 100
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 1000 {
				writeError(w, r, errs.Validation(errs.CodeBadRequest, "limit must be between 1 and 1000"))
				return
			}
			limit = n
		}
		events, err := feed.Since(r.Context(), after, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if events == nil {
			events = []syncx.Event{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/grocerybot/core/trace"
)

// NewTraceHandler exposes decision trace records via GET /api/trace.
// Supported filters are start and end (RFC3339), kind, branch and limit.
func NewTraceHandler(store trace.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := trace.Query{
			Kind:   trace.Kind(r.URL.Query().Get("kind")),
			Branch: r.URL.Query().Get("branch"),
		}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			q.Limit = n
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []trace.Record{}
		}
		writeJSON(w, records)
	})
}

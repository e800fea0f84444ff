package api

import (
	"net/http"

	"github.com/kilianp07/grocerybot/core/bt"
	"github.com/kilianp07/grocerybot/core/scheduler"
)

// TreeView is the response of GET /api/tree.
type TreeView struct {
	State scheduler.State `json:"state"`
	Tree  bt.Snapshot     `json:"tree"`
}

// NewTreeHandler serves the tree status. format=text renders the tree as an
// indented listing.
func NewTreeHandler(src TreeSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := src.Snapshot()
		if r.URL.Query().Get("format") == "text" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(snap.Render()))
			return
		}
		writeJSON(w, TreeView{State: src.State(), Tree: snap})
	})
}

// NewObjectsHandler lists identified objects via GET /api/objects.
func NewObjectsHandler(src ObjectSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, src.Objects())
	})
}

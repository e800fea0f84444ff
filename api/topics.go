package api

import (
	"net/http"
	"sort"

	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// TopicDetail is a topic description with its retained values.
type TopicDetail struct {
	eventbus.TopicInfo
	Values []any `json:"values"`
}

// NewTopicsHandler lists every topic via GET /api/topics.
func NewTopicsHandler(b *eventbus.Bus) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, b.Graph())
	})
}

// NewDescribeHandler describes one topic via GET /api/topics/describe?name=.
func NewDescribeHandler(b *eventbus.Bus) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		info, ok := b.Describe(name)
		if !ok {
			http.Error(w, "unknown topic "+name, http.StatusNotFound)
			return
		}
		writeJSON(w, TopicDetail{TopicInfo: info, Values: b.History(name)})
	})
}

// NewNodesHandler reports the topics of one identity via GET
// /api/nodes?id=, or every identity when id is empty.
func NewNodesHandler(b *eventbus.Bus) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("id"); id != "" {
			n := b.Node(id)
			if len(n.Publishes) == 0 && len(n.Subscribes) == 0 {
				http.Error(w, "unknown node "+id, http.StatusNotFound)
				return
			}
			writeJSON(w, n)
			return
		}
		seen := map[string]bool{}
		for _, t := range b.Graph() {
			for _, id := range t.Publishers {
				seen[id] = true
			}
			for _, id := range t.Subscribers {
				seen[id] = true
			}
		}
		ids := make([]string, 0, len(seen))
		for id := range seen {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		nodes := make([]eventbus.NodeInfo, 0, len(ids))
		for _, id := range ids {
			nodes = append(nodes, b.Node(id))
		}
		writeJSON(w, nodes)
	})
}

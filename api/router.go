// Package api exposes the bus wiring, the behaviour tree and the decision
// trace over HTTP for introspection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/grocerybot/core/bt"
	"github.com/kilianp07/grocerybot/core/identify"
	"github.com/kilianp07/grocerybot/core/logger"
	"github.com/kilianp07/grocerybot/core/scheduler"
	"github.com/kilianp07/grocerybot/core/trace"
	"github.com/kilianp07/grocerybot/infra/metrics"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// TreeSource reports the behaviour tree status.
type TreeSource interface {
	Snapshot() bt.Snapshot
	State() scheduler.State
}

// ObjectSource lists the identified objects.
type ObjectSource interface {
	Objects() []identify.Object
}

// Deps are the sources served by the router. Nil sources answer 404.
type Deps struct {
	Bus     *eventbus.Bus
	Tree    TreeSource
	Objects ObjectSource
	Trace   trace.Store
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
	// Token, when set, must be sent as "Authorization: Bearer <token>" on
	// every /api request.
	Token string
}

// NewRouter returns the API handler.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()
	if d.Bus != nil {
		mux.Handle("/api/topics", get(NewTopicsHandler(d.Bus)))
		mux.Handle("/api/topics/describe", get(NewDescribeHandler(d.Bus)))
		mux.Handle("/api/nodes", get(NewNodesHandler(d.Bus)))
	}
	if d.Tree != nil {
		mux.Handle("/api/tree", get(NewTreeHandler(d.Tree)))
	}
	if d.Objects != nil {
		mux.Handle("/api/objects", get(NewObjectsHandler(d.Objects)))
	}
	if d.Trace != nil {
		mux.Handle("/api/trace", get(NewTraceHandler(d.Trace)))
	}
	mux.Handle("/metrics", metrics.Handler(d.Gatherer))
	return authorize(mux, d.Token)
}

// Serve runs an HTTP server for h on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler, log logger.Logger) error {
	log = logger.OrNop(log)
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("api shutdown: %v", err)
		}
		cancel()
	}()
	log.Infof("serving api on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func get(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func authorize(h http.Handler, token string) http.Handler {
	if token == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

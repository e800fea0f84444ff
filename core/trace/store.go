// Package trace persists a decision trace of the control loop: behaviour
// tree branch changes, planning requests and task failures. Records are
// queued by the control loop and written by a background Writer so that slow
// storage never stalls a tick.
package trace

import (
	"context"
	"time"

	"github.com/kilianp07/grocerybot/core/model"
)

// Kind classifies a record.
type Kind string

const (
	KindTick   Kind = "tick"
	KindPlan   Kind = "plan"
	KindTask   Kind = "task"
	KindObject Kind = "object"
	KindMode   Kind = "mode"
)

// Record captures one decision of the control loop.
type Record struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Kind       Kind          `json:"kind"`
	Tick       int64         `json:"tick,omitempty"`
	Status     string        `json:"status,omitempty"`
	Branch     string        `json:"branch,omitempty"`
	From       *model.Point  `json:"from,omitempty"`
	Target     *model.Point  `json:"target,omitempty"`
	Waypoints  []model.Point `json:"waypoints,omitempty"`
	Iterations int           `json:"iterations,omitempty"`
	ObjectID   int           `json:"object_id,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Query defines filters for retrieving records. Zero fields match anything.
type Query struct {
	Start  time.Time
	End    time.Time
	Kind   Kind
	Branch string
	Limit  int
}

// Match reports whether r satisfies the time, kind and branch filters.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.Branch != "" && r.Branch != q.Branch {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// Recorder accepts records from the control loop without blocking.
type Recorder interface {
	Record(rec Record)
}

// Nop drops every record.
type Nop struct{}

func (Nop) Record(Record) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// Package identify numbers the objects targeted by the behaviour tree.
// Objects are told apart by position only, so one item seen from two places
// far enough apart can be registered twice.
package identify

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/grocerybot/core/logger"
	coremetrics "github.com/kilianp07/grocerybot/core/metrics"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/core/trace"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// ID is the bus identity of the registry.
const ID = "identify"

// Object is a registered target.
type Object struct {
	ID        int          `json:"id"`
	Position  model.Point3 `json:"position"`
	Sightings int          `json:"sightings"`
	FirstSeen time.Time    `json:"first_seen"`
	LastSeen  time.Time    `json:"last_seen"`
}

// Option customises a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(r *Registry) { r.log = logger.OrNop(l) } }

// WithMetrics sets the sink receiving new objects.
func WithMetrics(m coremetrics.MetricsSink) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTrace sets the recorder receiving new objects.
func WithTrace(t trace.Recorder) Option { return func(r *Registry) { r.trace = trace.OrNop(t) } }

// Registry keeps the objects seen so far.
type Registry struct {
	log     logger.Logger
	metrics coremetrics.MetricsSink
	trace   trace.Recorder
	now     func() time.Time

	mu      sync.RWMutex
	objects []Object
}

// New subscribes a registry to /task/detect_object.
func New(b *eventbus.Bus, opts ...Option) (*Registry, error) {
	r := &Registry{
		log:     logger.Nop{},
		metrics: coremetrics.NopSink{},
		trace:   trace.Nop{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if err := eventbus.Subscribe(b, model.TopicDetectObject, ID, func(p model.Point3) { r.Observe(p) }); err != nil {
		return nil, err
	}
	return r, nil
}

// Observe matches p against the known objects and registers it when it is
// further than model.SameObjectRadius from all of them. It reports whether
// the object is new.
func (r *Registry) Observe(p model.Point3) (Object, bool) {
	now := r.now()
	r.mu.Lock()
	for i := range r.objects {
		o := &r.objects[i]
		if dist3(o.Position, p) < model.SameObjectRadius {
			o.Sightings++
			o.LastSeen = now
			seen := *o
			r.mu.Unlock()
			r.log.Infof("detected object #%d", seen.ID)
			return seen, false
		}
	}
	o := Object{ID: len(r.objects) + 1, Position: p, Sightings: 1, FirstSeen: now, LastSeen: now}
	r.objects = append(r.objects, o)
	known := len(r.objects)
	r.mu.Unlock()

	r.log.Infof("registering object #%d at (%.2f, %.2f, %.2f)", o.ID, p.X, p.Y, p.Z)
	ev := coremetrics.ObjectEvent{ID: o.ID, X: p.X, Y: p.Y, Z: p.Z, Known: known, Time: now}
	if err := coremetrics.RecordObject(r.metrics, ev); err != nil {
		r.log.Warnf("record object: %v", err)
	}
	pos := p.XY()
	r.trace.Record(trace.Record{ID: uuid.NewString(), Timestamp: now, Kind: trace.KindObject, Target: &pos, ObjectID: o.ID})
	return o, true
}

// Objects returns the registered objects in registration order.
func (r *Registry) Objects() []Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Object(nil), r.objects...)
}

func dist3(a, b model.Point3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

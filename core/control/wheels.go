package control

import (
	"errors"
	"time"

	coremetrics "github.com/kilianp07/grocerybot/core/metrics"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// Wheels publishes differential drive commands in rad/s.
type Wheels struct {
	left    *eventbus.Publisher[float64]
	right   *eventbus.Publisher[float64]
	metrics coremetrics.MetricsSink
	lastL   float64
	lastR   float64
	seen    uint64
}

// NewWheels registers id as a publisher of both wheel topics. A nil sink
// disables wheel metrics.
func NewWheels(b *eventbus.Bus, id string, sink coremetrics.MetricsSink) (*Wheels, error) {
	left, err := eventbus.NewPublisher[float64](b, model.TopicWheelLeft, id)
	if err != nil {
		return nil, err
	}
	right, err := eventbus.NewPublisher[float64](b, model.TopicWheelRight, id)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	w := &Wheels{left: left, right: right, metrics: sink}
	err = eventbus.Subscribe(b, model.TopicWheelLeft, id+"/seen", func(float64) { w.seen++ })
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Set publishes the left then right wheel speed.
func (w *Wheels) Set(left, right float64) error {
	w.lastL, w.lastR = left, right
	err := errors.Join(w.left.Publish(left), w.right.Publish(right))
	if merr := coremetrics.RecordWheels(w.metrics, coremetrics.WheelEvent{Left: left, Right: right, Time: time.Now()}); merr != nil {
		err = errors.Join(err, merr)
	}
	return err
}

// Stop publishes zero on both wheels.
func (w *Wheels) Stop() error { return w.Set(0, 0) }

// Last returns the last published command.
func (w *Wheels) Last() (left, right float64) { return w.lastL, w.lastR }

// Writes counts the wheel commands seen on the bus from any publisher. A leaf
// compares it with the value read after its own command to tell whether it
// still owns the wheels.
func (w *Wheels) Writes() uint64 { return w.seen }

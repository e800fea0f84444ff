package metrics

import "time"

// TickEvent describes one behaviour tree tick.
type TickEvent struct {
	Tick       int64
	Status     string
	Branch     string
	Autonomous bool
	Duration   time.Duration
	Time       time.Time
}

// MetricsSink records control loop ticks.
type MetricsSink interface {
	RecordTick(ev TickEvent) error
}

// PlanEvent describes one path planning request.
type PlanEvent struct {
	Success    bool
	Iterations int
	Nodes      int
	Waypoints  int
	Length     float64
	Duration   time.Duration
	Time       time.Time
}

// PlanRecorder records planning requests.
type PlanRecorder interface {
	RecordPlan(ev PlanEvent) error
}

// WheelEvent is a wheel speed command in rad/s.
type WheelEvent struct {
	Left  float64
	Right float64
	Time  time.Time
}

// WheelRecorder records wheel commands.
type WheelRecorder interface {
	RecordWheels(ev WheelEvent) error
}

// ObjectEvent is emitted when the object registry learns a new object.
type ObjectEvent struct {
	ID    int
	X     float64
	Y     float64
	Z     float64
	Known int
	Time  time.Time
}

// ObjectRecorder records newly identified objects.
type ObjectRecorder interface {
	RecordObject(ev ObjectEvent) error
}

// TaskFailure describes a leaf that failed or panicked.
type TaskFailure struct {
	Task   string
	Reason string
	Time   time.Time
}

// TaskFailureRecorder records task failures.
type TaskFailureRecorder interface {
	RecordTaskFailure(ev TaskFailure) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordTick(TickEvent) error          { return nil }
func (NopSink) RecordPlan(PlanEvent) error          { return nil }
func (NopSink) RecordWheels(WheelEvent) error       { return nil }
func (NopSink) RecordObject(ObjectEvent) error      { return nil }
func (NopSink) RecordTaskFailure(TaskFailure) error { return nil }

// RecordPlan forwards ev when s supports plan events.
func RecordPlan(s MetricsSink, ev PlanEvent) error {
	if r, ok := s.(PlanRecorder); ok {
		return r.RecordPlan(ev)
	}
	return nil
}

// RecordWheels forwards ev when s supports wheel events.
func RecordWheels(s MetricsSink, ev WheelEvent) error {
	if r, ok := s.(WheelRecorder); ok {
		return r.RecordWheels(ev)
	}
	return nil
}

// RecordObject forwards ev when s supports object events.
func RecordObject(s MetricsSink, ev ObjectEvent) error {
	if r, ok := s.(ObjectRecorder); ok {
		return r.RecordObject(ev)
	}
	return nil
}

// RecordTaskFailure forwards ev when s supports failure events.
func RecordTaskFailure(s MetricsSink, ev TaskFailure) error {
	if r, ok := s.(TaskFailureRecorder); ok {
		return r.RecordTaskFailure(ev)
	}
	return nil
}

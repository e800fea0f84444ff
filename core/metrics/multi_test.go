package metrics

import (
	"errors"
	"testing"
)

type recordSink struct {
	ticks  int
	plans  int
	wheels int
}

func (r *recordSink) RecordTick(TickEvent) error {
	r.ticks++
	return nil
}

func (r *recordSink) RecordPlan(PlanEvent) error {
	r.plans++
	return nil
}

// tickOnly implements just the base interface.
type tickOnly struct{ ticks int }

func (t *tickOnly) RecordTick(TickEvent) error {
	t.ticks++
	return nil
}

type failingSink struct{}

func (failingSink) RecordTick(TickEvent) error { return errors.New("down") }

// TestMultiSink ensures events are forwarded to all sinks.
func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &tickOnly{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordTick(TickEvent{Tick: 1}); err != nil {
		t.Fatalf("record tick: %v", err)
	}
	if err := m.RecordPlan(PlanEvent{Success: true}); err != nil {
		t.Fatalf("record plan: %v", err)
	}
	if err := m.RecordWheels(WheelEvent{Left: 1}); err != nil {
		t.Fatalf("record wheels: %v", err)
	}
	if s1.ticks != 1 || s2.ticks != 1 {
		t.Fatalf("ticks not forwarded")
	}
	if s1.plans != 1 {
		t.Fatalf("plan not forwarded")
	}
}

func TestMultiSinkReturnsFirstError(t *testing.T) {
	s := &tickOnly{}
	m := NewMultiSink(failingSink{}, s)
	if err := m.RecordTick(TickEvent{}); err == nil {
		t.Fatalf("expected error")
	}
	if s.ticks != 0 {
		t.Fatalf("sink after failure should not be called")
	}
}

func TestRecordHelpersIgnoreUnsupported(t *testing.T) {
	if err := RecordPlan(&tickOnly{}, PlanEvent{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RecordObject(NopSink{}, ObjectEvent{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

type closingSink struct {
	tickOnly
	closed bool
}

func (c *closingSink) Close() { c.closed = true }

func TestMultiSinkClose(t *testing.T) {
	c := &closingSink{}
	m := NewMultiSink(&tickOnly{}, c)
	m.Close()
	if !c.closed {
		t.Fatalf("sink not closed")
	}
}

package metrics

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordTick forwards the tick to all sinks, returning the first error encountered.
func (m *MultiSink) RecordTick(ev TickEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordTick(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordPlan forwards planning events.
func (m *MultiSink) RecordPlan(ev PlanEvent) error {
	for _, s := range m.Sinks {
		if err := RecordPlan(s, ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordWheels forwards wheel commands.
func (m *MultiSink) RecordWheels(ev WheelEvent) error {
	for _, s := range m.Sinks {
		if err := RecordWheels(s, ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordObject forwards object events.
func (m *MultiSink) RecordObject(ev ObjectEvent) error {
	for _, s := range m.Sinks {
		if err := RecordObject(s, ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordTaskFailure forwards failure events.
func (m *MultiSink) RecordTaskFailure(ev TaskFailure) error {
	for _, s := range m.Sinks {
		if err := RecordTaskFailure(s, ev); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/grocerybot/core/metrics"
)

// PromSink records control loop events in Prometheus metrics.
type PromSink struct {
	ticks      *prometheus.CounterVec
	tickTime   prometheus.Histogram
	autonomous prometheus.Gauge
	plans      *prometheus.CounterVec
	planTime   prometheus.Histogram
	planLength prometheus.Histogram
	wheels     *prometheus.GaugeVec
	objects    prometheus.Gauge
	failures   *prometheus.CounterVec
}

// NewPromSink registers metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Metrics
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grocerybot_ticks_total",
			Help: "Behaviour tree ticks by resulting status",
		}, []string{"status"}),
		tickTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grocerybot_tick_duration_seconds",
			Help:    "Time spent ticking the behaviour tree",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 8),
		}),
		autonomous: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grocerybot_autonomous",
			Help: "1 while the behaviour tree drives the robot",
		}),
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grocerybot_plans_total",
			Help: "Path planning requests by outcome",
		}, []string{"success"}),
		planTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grocerybot_plan_duration_seconds",
			Help:    "Path planning latency",
			Buckets: prometheus.DefBuckets,
		}),
		planLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grocerybot_plan_length_meters",
			Help:    "Length of smoothed paths",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}),
		wheels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grocerybot_wheel_speed_rad_per_second",
			Help: "Last commanded wheel speed",
		}, []string{"wheel"}),
		objects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grocerybot_objects_known",
			Help: "Objects in the identification registry",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grocerybot_task_failures_total",
			Help: "Failed or panicking tasks",
		}, []string{"task"}),
	}
	var err error
	s.ticks = register(reg, s.ticks, &err)
	s.tickTime = register(reg, s.tickTime, &err)
	s.autonomous = register(reg, s.autonomous, &err)
	s.plans = register(reg, s.plans, &err)
	s.planTime = register(reg, s.planTime, &err)
	s.planLength = register(reg, s.planLength, &err)
	s.wheels = register(reg, s.wheels, &err)
	s.objects = register(reg, s.objects, &err)
	s.failures = register(reg, s.failures, &err)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// register registers c, returning the existing collector when an identical
// one is already registered. The first other error is kept in errp.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		if *errp == nil {
			*errp = err
		}
	}
	return c
}

// RecordTick counts the tick and its duration.
func (s *PromSink) RecordTick(ev coremetrics.TickEvent) error {
	s.ticks.WithLabelValues(ev.Status).Inc()
	s.tickTime.Observe(ev.Duration.Seconds())
	if ev.Autonomous {
		s.autonomous.Set(1)
	} else {
		s.autonomous.Set(0)
	}
	return nil
}

// RecordPlan counts planning requests.
func (s *PromSink) RecordPlan(ev coremetrics.PlanEvent) error {
	if ev.Success {
		s.plans.WithLabelValues("true").Inc()
		s.planLength.Observe(ev.Length)
	} else {
		s.plans.WithLabelValues("false").Inc()
	}
	s.planTime.Observe(ev.Duration.Seconds())
	return nil
}

func (s *PromSink) RecordWheels(ev coremetrics.WheelEvent) error {
	s.wheels.WithLabelValues("left").Set(ev.Left)
	s.wheels.WithLabelValues("right").Set(ev.Right)
	return nil
}

func (s *PromSink) RecordObject(ev coremetrics.ObjectEvent) error {
	s.objects.Set(float64(ev.Known))
	return nil
}

func (s *PromSink) RecordTaskFailure(ev coremetrics.TaskFailure) error {
	s.failures.WithLabelValues(ev.Task).Inc()
	return nil
}

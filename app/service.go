// Package app wires the control loop: the bus, the behaviour tree and its
// collaborators, the optional simulator and the telemetry and storage
// adapters.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/grocerybot/api"
	"github.com/kilianp07/grocerybot/config"
	"github.com/kilianp07/grocerybot/core/control"
	"github.com/kilianp07/grocerybot/core/grid"
	"github.com/kilianp07/grocerybot/core/identify"
	"github.com/kilianp07/grocerybot/core/mapping"
	coremetrics "github.com/kilianp07/grocerybot/core/metrics"
	"github.com/kilianp07/grocerybot/core/model"
	coremon "github.com/kilianp07/grocerybot/core/monitoring"
	"github.com/kilianp07/grocerybot/core/planner"
	"github.com/kilianp07/grocerybot/core/scheduler"
	"github.com/kilianp07/grocerybot/core/tasks"
	"github.com/kilianp07/grocerybot/core/teleop"
	"github.com/kilianp07/grocerybot/core/trace"
	"github.com/kilianp07/grocerybot/infra/logger"
	"github.com/kilianp07/grocerybot/infra/maps"
	"github.com/kilianp07/grocerybot/infra/metrics"
	inframon "github.com/kilianp07/grocerybot/infra/monitoring"
	"github.com/kilianp07/grocerybot/infra/mqtt"
	"github.com/kilianp07/grocerybot/internal/eventbus"
	"github.com/kilianp07/grocerybot/internal/sim"
)

// ID is the bus identity used for the initial topic values.
const ID = "app"

// ClockID publishes /cmd_tick.
const ClockID = "clock"

// Service owns the control loop. Every bus publish happens on the goroutine
// running Run or Step; other goroutines hand work over with Post.
type Service struct {
	cfg  *config.Config
	logs logger.Options
	log  logger.Logger

	Bus        *eventbus.Bus
	World      *tasks.World
	Map        *grid.Map
	Planner    *planner.PathPlanner
	Controller *control.Controller
	Tree       *tasks.Tree
	Scheduler  *scheduler.Scheduler
	Mapper     *mapping.Mapper
	Objects    *identify.Registry
	Teleop     *teleop.Teleop
	// Sim is nil unless sim.enabled is set.
	Sim *sim.Sim
	// Bridge is nil unless mqtt.enabled is set.
	Bridge *mqtt.Bridge

	metrics coremetrics.MetricsSink
	monitor coremon.Monitor
	store   trace.Store
	trace   *trace.Writer
	clock   *eventbus.Publisher[int]
	inbox   chan func()

	steps     atomic.Int64
	dropped   atomic.Uint64
	started   atomic.Bool
	closeOnce sync.Once
}

// New builds a Service from the configuration. A nil configuration uses the
// defaults. Bus wiring errors are fatal.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.SetDefaults()
	s := &Service{
		cfg:   cfg,
		logs:  cfg.Logging.Options(),
		inbox: make(chan func(), max(cfg.Loop.Inbox, 1)),
	}
	s.log = s.logs.New("service")

	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)
	s.monitor = mon

	if s.metrics, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	if s.store, err = trace.NewStore(cfg.Trace.Store); err != nil {
		return nil, fmt.Errorf("trace store: %w", err)
	}
	s.trace = trace.NewWriter(s.store, cfg.Trace.Buffer, s.logs.New("trace"))

	if err := s.build(); err != nil {
		_ = s.trace.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build() error {
	cfg := s.cfg
	s.Bus = eventbus.New(
		eventbus.WithHistory(cfg.Bus.History),
		eventbus.WithMaxDepth(cfg.Bus.MaxDepth),
		eventbus.WithLogger(s.logs.New("bus")),
	)
	var err error
	if s.World, err = tasks.NewWorld(s.Bus); err != nil {
		return fmt.Errorf("world: %w", err)
	}

	var raw *grid.Grid
	if cfg.Map.Path != "" {
		if raw, err = maps.LoadGrid(cfg.Map.Path, cfg.Grid.Threshold); err != nil {
			return fmt.Errorf("load map: %w", err)
		}
		s.log.Infof("loaded map %s with %d occupied cells", cfg.Map.Path, raw.Count())
	}
	if s.Map, err = grid.NewMap(cfg.Grid, raw); err != nil {
		return fmt.Errorf("map: %w", err)
	}
	s.Planner, err = planner.New(cfg.Planner, s.Map,
		planner.WithLogger(s.logs.New("planner")),
		planner.WithMetrics(s.metrics),
		planner.WithTrace(s.trace),
	)
	if err != nil {
		return fmt.Errorf("planner: %w", err)
	}
	wheels, err := control.NewWheels(s.Bus, control.ID, s.metrics)
	if err != nil {
		return fmt.Errorf("controller wheels: %w", err)
	}
	if s.Controller, err = control.NewController(cfg.Controller, s.Planner, s.World, wheels, s.logs.New("controller")); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	act, err := tasks.NewActuators(s.Bus, s.metrics)
	if err != nil {
		return fmt.Errorf("actuators: %w", err)
	}
	tcfg := cfg.Tasks
	if cfg.TasksFile != "" {
		if tcfg, err = scheduler.LoadConfig(cfg.TasksFile); err != nil {
			return fmt.Errorf("tasks file: %w", err)
		}
	}
	s.Tree, err = tasks.BuildTree(tcfg, tasks.Deps{
		World:      s.World,
		Controller: s.Controller,
		Actuators:  act,
		Log:        s.logs.New("tasks"),
	})
	if err != nil {
		return err
	}
	s.Scheduler, err = scheduler.New(s.Bus, s.Tree.Root,
		scheduler.WithLogger(s.logs.New("scheduler")),
		scheduler.WithMetrics(s.metrics),
		scheduler.WithTrace(s.trace),
		scheduler.WithMonitor(s.monitor),
	)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	var mapStore mapping.Store
	if cfg.Map.SavePath != "" {
		fs, err := maps.NewFileStore(cfg.Map.SavePath)
		if err != nil {
			return fmt.Errorf("map store: %w", err)
		}
		mapStore = fs
	}
	if s.Mapper, err = mapping.New(s.Bus, s.Map.Transform(), cfg.Map.Mapping, mapStore, s.Planner, s.logs.New("mapper")); err != nil {
		return fmt.Errorf("mapper: %w", err)
	}
	s.Objects, err = identify.New(s.Bus,
		identify.WithLogger(s.logs.New("identify")),
		identify.WithMetrics(s.metrics),
		identify.WithTrace(s.trace),
	)
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	if s.Teleop, err = teleop.New(s.Bus, cfg.Teleop, s.metrics, s.logs.New("teleop")); err != nil {
		return fmt.Errorf("teleop: %w", err)
	}

	if cfg.Sim.Enabled {
		simCfg := cfg.Sim
		if len(simCfg.Objects) == 0 {
			simCfg.Objects = sim.DefaultObjects
		}
		if s.Sim, err = sim.New(s.Bus, simCfg, s.Map.Raw(), s.Map.Transform(), s.logs.New("sim")); err != nil {
			return fmt.Errorf("sim: %w", err)
		}
	}
	if cfg.MQTT.Enabled {
		mcfg := cfg.MQTT
		mcfg.Sensors = mcfg.Sensors || !cfg.Sim.Enabled
		if s.Bridge, err = mqtt.NewBridge(s.Bus, mcfg, s.postOrDrop, s.logs.New("mqtt_bridge")); err != nil {
			return fmt.Errorf("mqtt bridge: %w", err)
		}
	}
	if s.clock, err = eventbus.NewPublisher[int](s.Bus, model.TopicTick, ClockID); err != nil {
		return err
	}
	inspectLog := s.logs.New("inspect")
	for _, topic := range cfg.Logging.Inspect {
		if err := inspect(s.Bus, topic, inspectLog); err != nil {
			return fmt.Errorf("inspect %s: %w", topic, err)
		}
	}
	return s.prime()
}

// prime publishes the initial actuator state and mode once every component
// has subscribed.
func (s *Service) prime() error {
	return errors.Join(
		eventbus.PublishOnce(s.Bus, model.TopicWheelLeft, ID, 0.0),
		eventbus.PublishOnce(s.Bus, model.TopicWheelRight, ID, 0.0),
		eventbus.PublishOnce(s.Bus, model.TopicArm, ID, model.ArmStandby),
		eventbus.PublishOnce(s.Bus, model.TopicGripper, ID, true),
		eventbus.PublishOnce(s.Bus, model.TopicAuto, ID, *s.cfg.Loop.Autonomous),
	)
}

func inspect(b *eventbus.Bus, topic string, log logger.Logger) error {
	switch topic {
	case model.TopicPose:
		return eventbus.Inspect[model.Pose](b, topic, log)
	case model.TopicDetections:
		return eventbus.Inspect[[]model.Detection](b, topic, log)
	case model.TopicLidar:
		return eventbus.Inspect[[]model.Point](b, topic, log)
	case model.TopicTick:
		return eventbus.Inspect[int](b, topic, log)
	case model.TopicAuto, model.TopicGripper:
		return eventbus.Inspect[bool](b, topic, log)
	case model.TopicWheelLeft, model.TopicWheelRight:
		return eventbus.Inspect[float64](b, topic, log)
	case model.TopicArm, model.TopicMap, model.TopicTeleopKey:
		return eventbus.Inspect[string](b, topic, log)
	case model.TopicDetectObject:
		return eventbus.Inspect[model.Point3](b, topic, log)
	}
	return fmt.Errorf("unknown topic")
}

// Post queues fn to run on the loop goroutine before the next tick. It
// reports false when the inbox is full.
func (s *Service) Post(fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	default:
		return false
	}
}

func (s *Service) postOrDrop(fn func()) {
	if !s.Post(fn) {
		if n := s.dropped.Add(1); n%100 == 1 {
			s.log.Warnf("inbox full, %d commands dropped", n)
		}
	}
}

func (s *Service) drain() int {
	n := 0
	for {
		select {
		case fn := <-s.inbox:
			s.guard("inbox", fn)
			n++
		default:
			return n
		}
	}
}

// Step runs one cycle: queued commands, one simulator step and one clock
// tick. A panic in any subscriber is reported and the cycle still
// completes. It must be called from the loop goroutine.
func (s *Service) Step() {
	s.drain()
	if s.Sim != nil {
		s.guard("sim", func() {
			if err := s.Sim.Step(s.cfg.Loop.Period()); err != nil {
				s.log.Errorf("sim step: %v", err)
			}
		})
	}
	s.guard("clock", func() {
		if err := s.clock.Publish(s.cfg.Loop.PeriodMS); err != nil {
			s.log.Errorf("publish tick: %v", err)
		}
	})
	s.steps.Add(1)
}

func (s *Service) guard(component string, fn func()) {
	if err := coremon.Guard(s.monitor, map[string]string{"component": component}, fn); err != nil {
		s.log.Errorf("%s: %v", component, err)
	}
}

// Steps returns the number of completed cycles.
func (s *Service) Steps() int64 { return s.steps.Load() }

// Dropped returns the number of commands rejected by a full inbox.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

// Handler returns the introspection API of the service.
func (s *Service) Handler() http.Handler {
	return api.NewRouter(api.Deps{
		Bus:     s.Bus,
		Tree:    s.Scheduler,
		Objects: s.Objects,
		Trace:   s.store,
		Token:   s.cfg.API.Token,
	})
}

// Run starts the background adapters and drives the loop until ctx is
// cancelled. Subsystem errors are logged and never stop the loop.
func (s *Service) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("service already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	spawn := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := coremon.Guard(s.monitor, map[string]string{"component": name}, fn); err != nil {
				s.log.Errorf("%s: %v", name, err)
			}
		}()
	}
	spawn("trace", func() { s.trace.Run(ctx) })
	if s.Bridge != nil {
		if err := s.Bridge.Connect(); err != nil {
			s.log.Errorf("mqtt connect: %v", err)
		}
		spawn("mqtt", func() { s.Bridge.Run(ctx) })
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		s.registerBusCollector()
		spawn("prometheus", func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		})
	}
	if s.cfg.API.Enabled {
		spawn("api", func() {
			if err := api.Serve(ctx, s.cfg.API.Addr, s.Handler(), s.logs.New("api")); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		})
	}

	s.log.Infof("control loop started, period %s, fast %t", s.cfg.Loop.Period(), s.cfg.Loop.Fast)
	if s.cfg.Loop.Fast && s.Sim != nil {
		for ctx.Err() == nil {
			s.Step()
		}
	} else {
		ticker := time.NewTicker(s.cfg.Loop.Period())
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				s.Step()
			}
		}
	}
	s.log.Infof("control loop stopped after %d steps", s.Steps())
	cancel()
	wg.Wait()
	return nil
}

func (s *Service) registerBusCollector() {
	err := prometheus.Register(metrics.NewBusCollector(s.Bus))
	var are prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &are) {
		s.log.Warnf("register bus collector: %v", err)
	}
}

// Close stops the actuators and releases the adapters.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if e := s.Controller.Stop(); e != nil {
			err = errors.Join(err, e)
		}
		if s.Bridge != nil {
			s.Bridge.Close()
		}
		err = errors.Join(err, s.trace.Close())
		if c, ok := s.metrics.(interface{ Close() }); ok {
			c.Close()
		}
		s.monitor.Flush(2 * time.Second)
	})
	return err
}

package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/grocerybot/core/metrics"
	"github.com/kilianp07/grocerybot/infra/logger"
)

// InfluxSink writes control loop events to an InfluxDB instance using the
// official client. Wheel commands are only written when they change.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
	robot    string

	lastL, lastR float64
	wheelsSeen   bool
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
// Points carry a robot tag.
func NewInfluxSink(url, token, org, bucket, robot string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	if robot == "" {
		robot = "grocerybot"
	}
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
		robot:    robot,
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket, robot string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket, robot)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordTick writes one bt_tick point.
func (s *InfluxSink) RecordTick(ev coremetrics.TickEvent) error {
	p := write.NewPointWithMeasurement("bt_tick").
		AddTag("robot", s.robot).
		AddTag("status", ev.Status).
		AddTag("autonomous", strconv.FormatBool(ev.Autonomous)).
		AddField("tick", ev.Tick).
		AddField("branch", ev.Branch).
		AddField("duration_us", ev.Duration.Microseconds()).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordPlan writes one path_plan point.
func (s *InfluxSink) RecordPlan(ev coremetrics.PlanEvent) error {
	p := write.NewPointWithMeasurement("path_plan").
		AddTag("robot", s.robot).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("iterations", ev.Iterations).
		AddField("nodes", ev.Nodes).
		AddField("waypoints", ev.Waypoints).
		AddField("length_m", round3(ev.Length)).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordWheels writes a wheel_cmd point when the command changed.
func (s *InfluxSink) RecordWheels(ev coremetrics.WheelEvent) error {
	if s.wheelsSeen && ev.Left == s.lastL && ev.Right == s.lastR {
		return nil
	}
	s.wheelsSeen, s.lastL, s.lastR = true, ev.Left, ev.Right
	p := write.NewPointWithMeasurement("wheel_cmd").
		AddTag("robot", s.robot).
		AddField("left", round3(ev.Left)).
		AddField("right", round3(ev.Right)).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordObject(ev coremetrics.ObjectEvent) error {
	p := write.NewPointWithMeasurement("object_identified").
		AddTag("robot", s.robot).
		AddTag("object_id", strconv.Itoa(ev.ID)).
		AddField("x", round3(ev.X)).
		AddField("y", round3(ev.Y)).
		AddField("z", round3(ev.Z)).
		AddField("known", ev.Known).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordTaskFailure(ev coremetrics.TaskFailure) error {
	p := write.NewPointWithMeasurement("task_failure").
		AddTag("robot", s.robot).
		AddTag("task", ev.Task).
		AddField("reason", ev.Reason).
		SetTime(ev.Time)
	return s.write(p)
}

// Close flushes and closes the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// Package mqtt mirrors bus telemetry to an MQTT broker and feeds remote
// commands back into the control loop.
package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremon "github.com/kilianp07/grocerybot/core/monitoring"
	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/infra/logger"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

// BridgeID is the bus identity of the bridge.
const BridgeID = "mqtt_bridge"

// Envelope wraps every bridge payload. Time is in unix milliseconds.
type Envelope[T any] struct {
	Topic string `json:"topic" cbor:"topic"`
	Time  int64  `json:"time" cbor:"time"`
	Value T      `json:"value" cbor:"value"`
}

// pahoClient is the subset of paho.Client used by the bridge.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

type outbound struct {
	topic   string
	payload Envelope[any]
}

type route struct {
	topic  string
	handle func(data []byte) error
}

// Bridge forwards bus values to MQTT and MQTT commands to the bus. Bus
// callbacks only enqueue; publishing happens in Run. Inbound commands are
// handed to post so they reach the bus on the control loop goroutine.
type Bridge struct {
	cfg    Config
	codec  Codec
	opts   *paho.ClientOptions
	cli    pahoClient
	relay  *eventbus.Relay[outbound]
	out    <-chan outbound
	post   func(func())
	routes []route
	log    logger.Logger
	now    func() time.Time

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewBridge registers the bridge on b. post must run the given function on
// the goroutine that owns the bus.
func NewBridge(b *eventbus.Bus, cfg Config, post func(func()), log logger.Logger) (*Bridge, error) {
	if post == nil {
		return nil, errors.New("mqtt bridge: post function required")
	}
	cfg.SetDefaults()
	codec, err := NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.New("mqtt_bridge")
	}
	br := &Bridge{
		cfg:   cfg,
		codec: codec,
		opts:  opts,
		relay: eventbus.NewRelay[outbound](cfg.Buffer),
		post:  post,
		log:   log,
		now:   time.Now,
	}
	br.out = br.relay.Listen()

	pose := time.Duration(cfg.PoseIntervalMS) * time.Millisecond
	err = errors.Join(
		mirror[model.Pose](br, b, model.TopicPose, pose),
		mirror[float64](br, b, model.TopicWheelLeft, 0),
		mirror[float64](br, b, model.TopicWheelRight, 0),
		mirror[string](br, b, model.TopicArm, 0),
		mirror[bool](br, b, model.TopicGripper, 0),
		mirror[bool](br, b, model.TopicAuto, 0),
		mirror[model.Point3](br, b, model.TopicDetectObject, 0),
		command[bool](br, b, "auto", model.TopicAuto),
		command[string](br, b, "key", model.TopicTeleopKey),
		command[string](br, b, "map", model.TopicMap),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Sensors {
		err = errors.Join(
			command[model.Pose](br, b, "pose", model.TopicPose),
			command[[]model.Detection](br, b, "detections", model.TopicDetections),
		)
		if err != nil {
			return nil, err
		}
	}
	return br, nil
}

// TelemetryTopic returns the MQTT topic mirroring a bus topic.
func (br *Bridge) TelemetryTopic(busTopic string) string {
	return br.cfg.Prefix + "/telemetry/" + strings.TrimPrefix(busTopic, "/")
}

// CommandTopic returns the MQTT topic of a remote command.
func (br *Bridge) CommandTopic(name string) string {
	return br.cfg.Prefix + "/cmd/" + name
}

func mirror[T any](br *Bridge, b *eventbus.Bus, topic string, every time.Duration) error {
	var last time.Time
	mqttTopic := br.TelemetryTopic(topic)
	return eventbus.Subscribe(b, topic, BridgeID, func(v T) {
		now := br.now()
		if every > 0 && !last.IsZero() && now.Sub(last) < every {
			return
		}
		last = now
		br.relay.Send(outbound{topic: mqttTopic, payload: Envelope[any]{Topic: topic, Time: now.UnixMilli(), Value: v}})
	})
}

func command[T any](br *Bridge, b *eventbus.Bus, name, topic string) error {
	pub, err := eventbus.NewPublisher[T](b, topic, BridgeID)
	if err != nil {
		return err
	}
	br.routes = append(br.routes, route{
		topic: br.CommandTopic(name),
		handle: func(data []byte) error {
			var env Envelope[T]
			if err := br.codec.Unmarshal(data, &env); err != nil {
				return err
			}
			br.post(func() {
				if err := pub.Publish(env.Value); err != nil {
					br.log.Errorf("forward %s: %v", topic, err)
				}
			})
			return nil
		},
	})
	return nil
}

// Connect connects to the broker, subscribes to the command topics on every
// (re)connection and announces the robot as online.
func (br *Bridge) Connect() error {
	br.opts.OnConnect = func(c paho.Client) {
		br.log.Infof("MQTT connected")
		br.subscribe(c)
	}
	br.opts.OnConnectionLost = func(_ paho.Client, err error) {
		br.log.Errorf("connection lost: %v", err)
	}
	br.opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		br.log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(br.opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	br.cli = c
	if br.cfg.LWTTopic != "" {
		c.Publish(br.cfg.LWTTopic, br.cfg.LWTQoS, true, "online").Wait()
	}
	return nil
}

func (br *Bridge) subscribe(c pahoClient) {
	qos := br.cfg.qos("command")
	for _, r := range br.routes {
		r := r
		token := c.Subscribe(r.topic, qos, func(_ paho.Client, m paho.Message) {
			if err := r.handle(m.Payload()); err != nil {
				br.log.Warnf("drop command on %s: %v", r.topic, err)
			}
		})
		if token.Wait() && token.Error() != nil {
			br.log.Errorf("subscribe %s: %v", r.topic, token.Error())
		}
	}
}

// Run publishes queued telemetry until ctx is done or the bridge is closed.
func (br *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-br.out:
			if !ok {
				return
			}
			if err := br.publish(msg); err != nil {
				br.failed.Add(1)
				coremon.CaptureException(err, map[string]string{"module": "mqtt", "topic": msg.topic})
			}
		}
	}
}

func (br *Bridge) publish(msg outbound) error {
	if br.cli == nil {
		return errors.New("mqtt bridge not connected")
	}
	payload, err := br.codec.Marshal(msg.payload)
	if err != nil {
		return err
	}
	qos := br.cfg.qos("telemetry")
	var publishErr error
	for attempt := 0; attempt <= br.cfg.MaxRetries; attempt++ {
		token := br.cli.Publish(msg.topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			br.sent.Add(1)
			return nil
		}
		br.log.Errorf("publish attempt %d on %s failed: %v", attempt+1, msg.topic, publishErr)
		if attempt < br.cfg.MaxRetries {
			time.Sleep(br.cfg.backoff() * time.Duration(1<<attempt))
		}
	}
	return publishErr
}

// Sent returns the number of telemetry messages delivered to the broker.
func (br *Bridge) Sent() uint64 { return br.sent.Load() }

// Failed returns the number of messages given up after retries.
func (br *Bridge) Failed() uint64 { return br.failed.Load() }

// Dropped returns the number of messages lost on a full queue.
func (br *Bridge) Dropped() uint64 { return br.relay.Dropped() }

// Close stops Run, marks the robot offline and disconnects.
func (br *Bridge) Close() {
	br.relay.Close()
	if br.cli != nil && br.cli.IsConnected() {
		if br.cfg.LWTTopic != "" {
			br.cli.Publish(br.cfg.LWTTopic, br.cfg.LWTQoS, true, br.cfg.LWTPayload).Wait()
		}
		br.cli.Disconnect(250)
	}
}

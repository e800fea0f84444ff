package mqtt

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/grocerybot/core/model"
	"github.com/kilianp07/grocerybot/internal/eventbus"
)

func startMosquitto(ctx context.Context, t *testing.T) string {
	t.Helper()
	conf := "listener 1883\nallow_anonymous true\npersistence false\n"
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0o644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("container start: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(ctx) })
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// TestBridgeWithBroker drives the bridge against a real Mosquitto broker:
// a remote client switches the robot to manual mode and sees the wheel
// telemetry.
func TestBridgeWithBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()
	broker := startMosquitto(ctx, t)

	remote := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("remote"))
	var connErr error
	for i := 0; i < 5; i++ {
		if token := remote.Connect(); token.Wait() && token.Error() != nil {
			connErr = token.Error()
			time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
			continue
		}
		connErr = nil
		break
	}
	if connErr != nil {
		t.Skipf("mosquitto not ready: %v", connErr)
	}
	defer remote.Disconnect(100)

	wheels := make(chan []byte, 4)
	if token := remote.Subscribe("it/telemetry/wheel/cmd_vel/left", 1, func(_ paho.Client, m paho.Message) {
		wheels <- m.Payload()
	}); token.Wait() && token.Error() != nil {
		t.Fatalf("subscribe: %v", token.Error())
	}

	b := eventbus.New()
	posted := make(chan func(), 4)
	br, err := NewBridge(b, Config{Broker: broker, Prefix: "it", QoS: map[string]byte{"command": 1, "telemetry": 1}}, func(fn func()) { posted <- fn }, nil)
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if err := br.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer br.Close()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go br.Run(runCtx)

	var auto []bool
	if err := eventbus.Subscribe(b, model.TopicAuto, "test", func(v bool) { auto = append(auto, v) }); err != nil {
		t.Fatalf("subscribe bus: %v", err)
	}
	payload, _ := jsonCodec{}.Marshal(Envelope[bool]{Topic: "auto", Value: false})
	remote.Publish("it/cmd/auto", 1, false, payload).Wait()
	select {
	case fn := <-posted:
		fn()
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for command")
	}
	if len(auto) != 1 || auto[0] {
		t.Fatalf("auto not forwarded: %v", auto)
	}

	left, _ := eventbus.NewPublisher[float64](b, model.TopicWheelLeft, "teleop")
	_ = left.Publish(2.5)
	select {
	case data := <-wheels:
		var env Envelope[float64]
		if err := (jsonCodec{}).Unmarshal(data, &env); err != nil || env.Value != 2.5 {
			t.Fatalf("unexpected telemetry %s: %v", data, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for telemetry")
	}
}

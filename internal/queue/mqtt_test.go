package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeMQTTClient implements only what the publisher uses; the embedded
// interface panics on anything else.
type fakeMQTTClient struct {
	paho.Client

	connectErr   error
	publishErr   error
	topic        string
	qos          byte
	retained     bool
	payload      []byte
	disconnected bool
}

func (c *fakeMQTTClient) Connect() paho.Token { return newToken(c.connectErr) }

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.topic, c.qos, c.retained = topic, qos, retained
	c.payload, _ = payload.([]byte)
	return newToken(c.publishErr)
}

func (c *fakeMQTTClient) Disconnect(quiesce uint) { c.disconnected = true }

func newTestMQTTPublisher(client *fakeMQTTClient) *MQTTPublisher {
	p := NewMQTTPublisher(MQTTConfig{Broker: "tcp://broker:1883", QoS: 1}, zap.NewNop().Sugar())
	p.newClient = func(opts *paho.ClientOptions) paho.Client {
		return client
	}
	return p
}

func TestMQTTPublish(t *testing.T) {
	client := &fakeMQTTClient{}
	p := newTestMQTTPublisher(client)

	if err := p.Publish(context.Background(), sampleObservation()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.topic != "weather_data" || client.qos != 1 || client.retained {
		t.Fatalf("unexpected publish: topic=%q qos=%d retained=%v", client.topic, client.qos, client.retained)
	}
	want, _ := Encode(sampleObservation())
	if string(client.payload) != string(want) {
		t.Fatalf("unexpected payload %s", client.payload)
	}
	if !client.disconnected {
		t.Fatalf("expected client to disconnect")
	}
}

func TestMQTTPublishErrors(t *testing.T) {
	t.Run("connect", func(t *testing.T) {
		client := &fakeMQTTClient{connectErr: errors.New("network unreachable")}
		p := newTestMQTTPublisher(client)

		if err := p.Publish(context.Background(), sampleObservation()); err == nil {
			t.Fatalf("expected connect error")
		}
		if client.payload != nil {
			t.Fatalf("nothing must be published without a connection")
		}
	})

	t.Run("publish", func(t *testing.T) {
		client := &fakeMQTTClient{publishErr: errors.New("not authorized")}
		p := newTestMQTTPublisher(client)

		if err := p.Publish(context.Background(), sampleObservation()); err == nil {
			t.Fatalf("expected publish error")
		}
		if !client.disconnected {
			t.Fatalf("expected client to disconnect after failure")
		}
	})
}

func TestNewPublisherSelection(t *testing.T) {
	logger := zap.NewNop().Sugar()

	pub, err := New(Config{Kind: KindAMQP}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := pub.(*AMQPPublisher); !ok {
		t.Fatalf("expected *AMQPPublisher, got %T", pub)
	}

	if _, err := New(Config{Kind: KindMQTT}, logger); err == nil {
		t.Fatalf("expected error for mqtt without broker")
	}

	pub, err = New(Config{Kind: KindMQTT, MQTT: MQTTConfig{Broker: "tcp://broker:1883"}}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := pub.(*MQTTPublisher); !ok {
		t.Fatalf("expected *MQTTPublisher, got %T", pub)
	}

	if _, err := New(Config{Kind: "kafka"}, logger); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

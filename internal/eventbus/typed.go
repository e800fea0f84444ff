package eventbus

import (
	"fmt"
	"reflect"

	"github.com/kilianp07/grocerybot/core/logger"
)

// Publisher is a typed handle on a topic.
type Publisher[T any] struct {
	bus   *Bus
	topic string
	id    string
}

// NewPublisher registers id as a publisher of topic. The topic is created with
// type T when absent.
func NewPublisher[T any](b *Bus, topic, id string) (*Publisher[T], error) {
	if err := b.addPublisher(topic, reflect.TypeOf((*T)(nil)).Elem(), id); err != nil {
		return nil, err
	}
	return &Publisher[T]{bus: b, topic: topic, id: id}, nil
}

// Publish sends v to the topic subscribers.
func (p *Publisher[T]) Publish(v T) error {
	return p.bus.publish(p.topic, v, false)
}

// Topic returns the topic name.
func (p *Publisher[T]) Topic() string { return p.topic }

// ID returns the publisher identity.
func (p *Publisher[T]) ID() string { return p.id }

// Subscribe registers fn on topic under id. The retained history is replayed
// into fn, oldest first, before Subscribe returns.
func Subscribe[T any](b *Bus, topic, id string, fn func(T)) error {
	if fn == nil {
		return &ConfigError{Topic: topic, ID: id, Err: fmt.Errorf("%w: nil callback", ErrConfiguration)}
	}
	wrapped := func(v any) {
		t, _ := v.(T)
		fn(t)
	}
	history, err := b.addSubscriber(topic, reflect.TypeOf((*T)(nil)).Elem(), id, wrapped)
	if err != nil {
		return err
	}
	for _, v := range history {
		wrapped(v)
	}
	return nil
}

// PublishOnce registers a one-off publisher and sends a single value. It is
// used to prime topics with initial state.
func PublishOnce[T any](b *Bus, topic, id string, v T) error {
	p, err := NewPublisher[T](b, topic, id)
	if err != nil {
		return err
	}
	return p.Publish(v)
}

// Inspect subscribes a logger to topic. Each inspector gets its own
// identity so several can watch the same topic.
func Inspect[T any](b *Bus, topic string, log logger.Logger) error {
	n := b.inspects.Add(1)
	id := fmt.Sprintf("inspector@%d", n)
	return Subscribe(b, topic, id, func(v T) {
		log.Infof("%s %s: %+v", id, topic, v)
	})
}

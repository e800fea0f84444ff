// Package eventbus implements the typed topic bus shared by every component of
// the control loop. Delivery is synchronous: Publish invokes each subscriber in
// registration order on the caller's goroutine and returns once all of them,
// including any nested publishes they trigger, have completed.
package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/kilianp07/grocerybot/core/logger"
)

const (
	// DefaultHistory is the number of values retained per topic.
	DefaultHistory = 10
	// DefaultMaxDepth bounds nested publishes triggered from callbacks.
	DefaultMaxDepth = 8
)

var (
	// ErrConfiguration is the parent of every registration error.
	ErrConfiguration = errors.New("bus configuration error")
	// ErrTypeMismatch reports a value or registration whose type differs
	// from the type captured when the topic was created.
	ErrTypeMismatch = fmt.Errorf("%w: type mismatch", ErrConfiguration)
	// ErrDuplicateIdentity reports an identity registered twice on a topic.
	ErrDuplicateIdentity = fmt.Errorf("%w: duplicate identity", ErrConfiguration)
	// ErrUnknownTopic is returned when publishing on a topic nobody registered.
	ErrUnknownTopic = errors.New("unknown topic")
	// ErrPublishDepth is returned when nested publishes exceed the depth limit.
	ErrPublishDepth = errors.New("publish depth exceeded")
)

// ConfigError carries the topic and identity of a failed registration.
type ConfigError struct {
	Topic string
	ID    string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("topic %s: %v", e.Topic, e.Err)
	}
	return fmt.Sprintf("topic %s (%s): %v", e.Topic, e.ID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type subscriber struct {
	id string
	fn func(any)
}

type topic struct {
	name       string
	typ        reflect.Type
	publishers []string
	subs       []subscriber
	history    []any
}

func (t *topic) accepts(v any) bool {
	if t.typ.Kind() == reflect.Interface {
		return v == nil || reflect.TypeOf(v).Implements(t.typ)
	}
	return reflect.TypeOf(v) == t.typ
}

// Option customises a Bus.
type Option func(*Bus)

// WithHistory sets the per-topic history size.
func WithHistory(n int) Option {
	return func(b *Bus) {
		if n >= 0 {
			b.history = n
		}
	}
}

// WithMaxDepth sets the maximum nesting of publishes from callbacks.
func WithMaxDepth(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxDepth = n
		}
	}
}

// WithLogger sets the logger used for diagnostics and inspectors.
func WithLogger(l logger.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// Bus is a registry of typed topics. The registry is safe for concurrent
// introspection; publishing is expected to happen from a single goroutine.
type Bus struct {
	mu       sync.RWMutex
	topics   map[string]*topic
	order    []string
	history  int
	maxDepth int
	depth    atomic.Int32
	inspects atomic.Int32
	log      logger.Logger
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		topics:   make(map[string]*topic),
		history:  DefaultHistory,
		maxDepth: DefaultMaxDepth,
		log:      logger.Nop{},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// lookup returns the topic, creating it with typ when absent. The caller must
// hold the write lock.
func (b *Bus) lookup(name string, typ reflect.Type) (*topic, error) {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{name: name, typ: typ}
		b.topics[name] = t
		b.order = append(b.order, name)
		return t, nil
	}
	if t.typ != typ {
		return nil, fmt.Errorf("%w: registered as %s, got %s", ErrTypeMismatch, t.typ, typ)
	}
	return t, nil
}

func (b *Bus) addPublisher(name string, typ reflect.Type, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(name, typ)
	if err != nil {
		return &ConfigError{Topic: name, ID: id, Err: err}
	}
	for _, p := range t.publishers {
		if p == id {
			return &ConfigError{Topic: name, ID: id, Err: ErrDuplicateIdentity}
		}
	}
	t.publishers = append(t.publishers, id)
	return nil
}

// addSubscriber registers fn and returns a copy of the retained history to
// replay once the lock is released.
func (b *Bus) addSubscriber(name string, typ reflect.Type, id string, fn func(any)) ([]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(name, typ)
	if err != nil {
		return nil, &ConfigError{Topic: name, ID: id, Err: err}
	}
	for _, s := range t.subs {
		if s.id == id {
			return nil, &ConfigError{Topic: name, ID: id, Err: ErrDuplicateIdentity}
		}
	}
	t.subs = append(t.subs, subscriber{id: id, fn: fn})
	return append([]any(nil), t.history...), nil
}

// Publish delivers v to every subscriber of the named topic. The dynamic type
// of v must match the topic type; on mismatch no subscriber is invoked and the
// history is left untouched.
func (b *Bus) Publish(name string, v any) error {
	return b.publish(name, v, true)
}

func (b *Bus) publish(name string, v any, check bool) error {
	b.mu.Lock()
	t, ok := b.topics[name]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTopic, name)
	}
	if check && !t.accepts(v) {
		b.mu.Unlock()
		return &ConfigError{Topic: name, Err: fmt.Errorf("%w: topic carries %s, got %T", ErrTypeMismatch, t.typ, v)}
	}
	depth := b.depth.Add(1)
	defer b.depth.Add(-1)
	if int(depth) > b.maxDepth {
		b.mu.Unlock()
		b.log.Errorf("publish on %s dropped at depth %d", name, depth)
		return fmt.Errorf("%w: %s at depth %d", ErrPublishDepth, name, depth)
	}
	if b.history > 0 {
		t.history = append(t.history, v)
		if over := len(t.history) - b.history; over > 0 {
			t.history = append(t.history[:0], t.history[over:]...)
		}
	}
	subs := append([]subscriber(nil), t.subs...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
	return nil
}

// Depth returns the current nesting level of publishes in progress.
func (b *Bus) Depth() int { return int(b.depth.Load()) }

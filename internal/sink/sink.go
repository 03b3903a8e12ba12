// Package sink defines event sinks that deliver serialized flow records to a
// downstream event stream.
package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/vesper/internal/core"
	"firestige.xyz/vesper/internal/log"
)

// Message is one serialized record addressed to a topic.
type Message struct {
	Topic       string
	Key         []byte
	Value       []byte
	ContentType string
	Time        time.Time
}

// Sink publishes messages. Publish returns nil once the message is accepted for
// delivery; an error is a failed publish and carries the reason.
type Sink interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Env carries process-level values sinks may attach to messages.
type Env struct {
	AgentID string
	Logger  log.Logger
}

// Factory creates a sink from its free-form options.
type Factory func(options map[string]any, env Env) (Sink, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a sink type available to New. Sink packages call it from init.
func Register(name string, fn Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic("sink: Register called twice for " + name)
	}
	factories[name] = fn
}

// New creates the sink registered under name.
func New(name string, options map[string]any, env Env) (Sink, error) {
	mu.RLock()
	fn, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", core.ErrUnknownSink, name, Registered())
	}
	if env.Logger == nil {
		env.Logger = log.GetLogger()
	}
	return fn(options, env)
}

// Registered lists the registered sink types.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeOptions decodes free-form options into out. Strings are accepted for
// numbers, booleans and durations so that values coming from environment
// variables decode the same as YAML values. Unknown keys are errors.
func DecodeOptions(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return nil
}

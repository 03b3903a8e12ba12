package flow

import (
	"fmt"
	"strings"

	"github.com/serialx/hashring"

	"firestige.xyz/vesper/internal/core"
)

// Default destination used by every record unless routing is configured.
const (
	DefaultTopic = "raw_metrics"
	DefaultKey   = "flow"
)

// Routing modes accepted by NewRouter.
const (
	RouteFixed    = "fixed"
	RouteFlow     = "flow"
	RouteHashRing = "hashring"
)

// Router maps a record to the topic and key it is published under.
type Router interface {
	Route(r Record) (topic, key string)
}

// FixedRouter publishes every record under the same topic and key.
type FixedRouter struct {
	Topic string
	Key   string
}

func (f FixedRouter) Route(Record) (string, string) {
	return f.Topic, f.Key
}

// FlowKeyRouter keys records by flow identity, so a partitioned sink keeps per-flow order.
type FlowKeyRouter struct {
	Topic string
}

func (f FlowKeyRouter) Route(r Record) (string, string) {
	return f.Topic, r.FlowKey()
}

// HashRingRouter spreads flows over several topics by consistent hashing of the flow key.
// Adding a topic only moves the flows that land on it.
type HashRingRouter struct {
	ring   *hashring.HashRing
	topics []string
}

// NewHashRingRouter creates a router over topics.
func NewHashRingRouter(topics []string) (*HashRingRouter, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: hashring routing needs at least one topic", core.ErrConfigInvalid)
	}
	return &HashRingRouter{
		ring:   hashring.New(topics),
		topics: topics,
	}, nil
}

func (h *HashRingRouter) Route(r Record) (string, string) {
	key := r.FlowKey()
	topic, ok := h.ring.GetNode(key)
	if !ok {
		topic = h.topics[0]
	}
	return topic, key
}

// RouterOptions selects and parameterizes a router.
type RouterOptions struct {
	Mode   string   // fixed (default), flow or hashring
	Topic  string   // fixed and flow modes; defaults to DefaultTopic
	Key    string   // fixed mode; defaults to DefaultKey
	Topics []string // hashring mode
}

// NewRouter builds the router described by opts.
func NewRouter(opts RouterOptions) (Router, error) {
	topic := opts.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	switch strings.ToLower(opts.Mode) {
	case "", RouteFixed:
		key := opts.Key
		if key == "" {
			key = DefaultKey
		}
		return FixedRouter{Topic: topic, Key: key}, nil
	case RouteFlow:
		return FlowKeyRouter{Topic: topic}, nil
	case RouteHashRing:
		r, err := NewHashRingRouter(opts.Topics)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownRouter, opts.Mode)
	}
}

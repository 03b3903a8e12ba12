package pipeline

import (
	"sync/atomic"
)

// counters holds the per-pipeline counters (atomic for readers on other goroutines).
type counters struct {
	Frames         atomic.Uint64
	DecodeFailures atomic.Uint64
	Records        atomic.Uint64
	EncodeErrors   atomic.Uint64
	Published      atomic.Uint64
	PublishErrors  atomic.Uint64
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Frames         uint64 `json:"frames"`
	DecodeFailures uint64 `json:"decode_failures"`
	Records        uint64 `json:"records"`
	EncodeErrors   uint64 `json:"encode_errors"`
	Published      uint64 `json:"published"`
	PublishErrors  uint64 `json:"publish_errors"`
}

func (c *counters) snapshot() Stats {
	return Stats{
		Frames:         c.Frames.Load(),
		DecodeFailures: c.DecodeFailures.Load(),
		Records:        c.Records.Load(),
		EncodeErrors:   c.EncodeErrors.Load(),
		Published:      c.Published.Load(),
		PublishErrors:  c.PublishErrors.Load(),
	}
}

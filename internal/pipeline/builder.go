package pipeline

import (
	"time"

	"firestige.xyz/vesper/internal/flow"
	"firestige.xyz/vesper/internal/log"
	"firestige.xyz/vesper/internal/sink"
	"firestige.xyz/vesper/internal/source"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			PublishTimeout: DefaultPublishTimeout,
		},
	}
}

func (b *Builder) WithSource(s source.Source) *Builder {
	b.config.Source = s
	return b
}

func (b *Builder) WithDecoder(d Decoder) *Builder {
	b.config.Decoder = d
	return b
}

func (b *Builder) WithCodec(c flow.Codec) *Builder {
	b.config.Codec = c
	return b
}

func (b *Builder) WithRouter(r flow.Router) *Builder {
	b.config.Router = r
	return b
}

func (b *Builder) WithSink(s sink.Sink) *Builder {
	b.config.Sink = s
	return b
}

// WithPublishTimeout bounds how long one publish may wait for its outcome.
func (b *Builder) WithPublishTimeout(d time.Duration) *Builder {
	b.config.PublishTimeout = d
	return b
}

func (b *Builder) WithLogger(l log.Logger) *Builder {
	b.config.Logger = l
	return b
}

// WithClock overrides the wall clock used for observed_at.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.config.Now = now
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	return New(b.config)
}

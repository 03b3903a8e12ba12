// Package pipeline runs the capture, decode, build, encode, route and publish loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"firestige.xyz/vesper/internal/core"
	"firestige.xyz/vesper/internal/core/decoder"
	"firestige.xyz/vesper/internal/flow"
	"firestige.xyz/vesper/internal/log"
	"firestige.xyz/vesper/internal/metrics"
	"firestige.xyz/vesper/internal/sink"
	"firestige.xyz/vesper/internal/source"
)

// DefaultPublishTimeout bounds one publish, matching the producer message timeout.
const DefaultPublishTimeout = 5 * time.Second

// Decoder turns a raw frame into headers. *decoder.Decoder implements it.
type Decoder interface {
	Decode(frame core.RawFrame) core.DecodedHeaders
}

// Config contains pipeline configuration. Source, Codec, Router and Sink are required.
type Config struct {
	Source         source.Source
	Decoder        Decoder     // defaults to decoder.New with default options
	Codec          flow.Codec  // required
	Router         flow.Router // required
	Sink           sink.Sink   // required, owned by the caller
	PublishTimeout time.Duration
	Logger         log.Logger
	Now            func() time.Time
}

// Pipeline is a single-threaded frame processing chain. Frames are handled one
// at a time in capture order and each publish outcome is awaited before the
// next frame is pulled.
type Pipeline struct {
	source         source.Source
	decoder        Decoder
	codec          flow.Codec
	router         flow.Router
	sink           sink.Sink
	publishTimeout time.Duration
	logger         log.Logger
	now            func() time.Time

	stats counters
}

// New creates a new pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Source == nil:
		return nil, fmt.Errorf("%w: pipeline requires a source", core.ErrConfigInvalid)
	case cfg.Codec == nil:
		return nil, fmt.Errorf("%w: pipeline requires a codec", core.ErrConfigInvalid)
	case cfg.Router == nil:
		return nil, fmt.Errorf("%w: pipeline requires a router", core.ErrConfigInvalid)
	case cfg.Sink == nil:
		return nil, fmt.Errorf("%w: pipeline requires a sink", core.ErrConfigInvalid)
	}
	if cfg.Decoder == nil {
		cfg.Decoder = decoder.New(decoder.Config{})
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Pipeline{
		source:         cfg.Source,
		decoder:        cfg.Decoder,
		codec:          cfg.Codec,
		router:         cfg.Router,
		sink:           cfg.Sink,
		publishTimeout: cfg.PublishTimeout,
		logger:         cfg.Logger.WithField("sink", cfg.Sink.Name()),
		now:            cfg.Now,
	}, nil
}

// Run pulls frames until the source ends or ctx is done. End of stream and
// cancellation return nil; any other source error is returned. Encode and
// publish failures are logged and counted, and the loop moves on.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.WithField("codec", p.codec.Name()).Info("pipeline starting")
	defer func() {
		p.logger.WithField("stats", p.Stats()).Info("pipeline stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := p.source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				p.logger.Info("capture source reached end of stream")
				return nil
			case ctx.Err() != nil:
				return nil
			default:
				return fmt.Errorf("capture source: %w", err)
			}
		}

		p.processFrame(ctx, frame)
	}
}

// processFrame handles one frame through to its publish outcome.
func (p *Pipeline) processFrame(ctx context.Context, frame core.RawFrame) {
	p.stats.Frames.Add(1)
	metrics.FramesTotal.WithLabelValues(frame.Framing.String()).Inc()

	headers := p.decoder.Decode(frame)
	if headers.Failure != nil {
		p.stats.DecodeFailures.Add(1)
		metrics.DecodeFailuresTotal.WithLabelValues(failureStage(headers.Failure)).Inc()
		if p.logger.IsDebugEnabled() {
			p.logger.WithError(headers.Failure).Debug("partial decode")
		}
	}

	record := flow.Build(headers, p.now())
	p.stats.Records.Add(1)
	metrics.RecordsTotal.WithLabelValues(record.Protocol).Inc()

	value, err := p.codec.Encode(record)
	if err != nil {
		p.stats.EncodeErrors.Add(1)
		metrics.EncodeErrorsTotal.WithLabelValues(p.codec.Name()).Inc()
		p.logger.WithError(err).WithField("flow", record.FlowKey()).Error("encode failed, frame skipped")
		return
	}

	topic, key := p.router.Route(record)
	msg := sink.Message{
		Topic:       topic,
		Key:         []byte(key),
		Value:       value,
		ContentType: p.codec.ContentType(),
		Time:        time.Unix(record.ObservedAt, 0),
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	start := time.Now()
	err = p.sink.Publish(pubCtx, msg)
	cancel()
	metrics.PublishLatencySeconds.WithLabelValues(p.sink.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		p.stats.PublishErrors.Add(1)
		metrics.PublishTotal.WithLabelValues(p.sink.Name(), metrics.OutcomeFailed).Inc()
		p.logger.WithError(err).WithField("topic", topic).Error("publish failed")
		return
	}
	p.stats.Published.Add(1)
	metrics.PublishTotal.WithLabelValues(p.sink.Name(), metrics.OutcomeAccepted).Inc()
}

// failureStage returns the metric label for a decode failure.
func failureStage(err error) string {
	var se *decoder.StageError
	if errors.As(err, &se) {
		return string(se.Stage)
	}
	return "unknown"
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return p.stats.snapshot()
}

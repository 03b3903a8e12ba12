package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firestige.xyz/vesper/internal/config"
	"firestige.xyz/vesper/internal/core/decoder"
	"firestige.xyz/vesper/internal/flow"
	"firestige.xyz/vesper/internal/log"
	"firestige.xyz/vesper/internal/metrics"
	"firestige.xyz/vesper/internal/pipeline"
	"firestige.xyz/vesper/internal/sink"
	"firestige.xyz/vesper/internal/source"
)

const shutdownTimeout = 5 * time.Second

// runOptions controls the parts of run that differ between start and replay.
type runOptions struct {
	serveMetrics bool
}

// run wires source, pipeline and sink from cfg and blocks until the source ends,
// a fatal error occurs, or the process receives SIGINT/SIGTERM.
func run(cfg *config.GlobalConfig, opts runOptions) (err error) {
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Close()

	logger := log.GetLogger().WithFields(map[string]interface{}{
		"node":     cfg.Node.ID,
		"hostname": cfg.Node.Hostname,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.serveMetrics && cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if serr := srv.Stop(shutdownCtx); serr != nil {
				logger.WithError(serr).Warn("metrics server stop failed")
			}
		}()
	}

	p, cleanup, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := p.Run(ctx); err != nil {
		logger.WithError(err).Error("pipeline terminated")
		return err
	}
	return nil
}

// buildPipeline opens the source and sink described by cfg. The returned
// cleanup closes both.
func buildPipeline(cfg *config.GlobalConfig, logger log.Logger) (*pipeline.Pipeline, func() error, error) {
	codec, err := flow.NewCodec(cfg.Codec.Name)
	if err != nil {
		return nil, nil, err
	}
	router, err := flow.NewRouter(routerOptions(cfg.Routing))
	if err != nil {
		return nil, nil, err
	}

	src, err := source.Open(sourceConfig(cfg.Capture))
	if err != nil {
		return nil, nil, fmt.Errorf("open %s source: %w", cfg.Capture.Type, err)
	}

	snk, err := sink.New(cfg.Sink.Type, cfg.Sink.Options, sink.Env{AgentID: cfg.Node.ID, Logger: logger})
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("create %s sink: %w", cfg.Sink.Type, err)
	}

	cleanup := func() error {
		return errors.Join(snk.Close(), src.Close())
	}

	p, err := pipeline.NewBuilder().
		WithSource(src).
		WithDecoder(decoder.New(decoder.Config{MaxVLANTags: cfg.Decoder.MaxVLANTags})).
		WithCodec(codec).
		WithRouter(router).
		WithSink(snk).
		WithPublishTimeout(cfg.Pipeline.PublishTimeout).
		WithLogger(logger).
		Build()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}

func sourceConfig(c config.CaptureConfig) source.Config {
	return source.Config{
		Type:         c.Type,
		Device:       c.Device,
		File:         c.File,
		SnapLen:      c.SnapLen,
		Promiscuous:  c.Promiscuous,
		Timeout:      c.Timeout,
		BPFFilter:    c.BPFFilter,
		BufferSizeMB: c.BufferSizeMB,
		FanoutID:     c.FanoutID,
	}
}

func routerOptions(r config.RoutingConfig) flow.RouterOptions {
	return flow.RouterOptions{
		Mode:   r.Mode,
		Topic:  r.Topic,
		Key:    r.Key,
		Topics: r.Topics,
	}
}

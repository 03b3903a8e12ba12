package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"firestige.xyz/vesper/internal/config"
)

// Init builds the global logger from configuration. Stdout is always an output;
// file and Loki outputs are added when enabled. Init may be called again, in
// which case the previous outputs are closed.
func Init(cfg config.LogConfig) error {
	l, w, err := build(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	prev := outputs
	logger, outputs = newLogrusAdapter(l), w
	mu.Unlock()

	if prev != nil {
		return prev.Close()
	}
	return nil
}

// Close flushes and closes the outputs opened by Init.
func Close() error {
	mu.Lock()
	w := outputs
	outputs = nil
	mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Close()
}

func build(cfg config.LogConfig) (*logrus.Logger, *MultiWriter, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	var formatter logrus.Formatter
	switch strings.ToLower(cfg.Format) {
	case "json":
		formatter = &logrus.JSONFormatter{TimestampFormat: timeLayoutOr(cfg.Time)}
	case "", "text":
		formatter = newFormatter(cfg.Pattern, cfg.Time)
	default:
		return nil, nil, fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
	}

	w := NewMultiWriter().Add(os.Stdout)

	if cfg.Outputs.File.Enabled {
		if _, err := w.AddFileAppender(cfg.Outputs.File); err != nil {
			return nil, nil, fmt.Errorf("failed to create file output: %w", err)
		}
	}

	if cfg.Outputs.Loki.Enabled {
		lw, err := createLokiWriter(cfg.Outputs.Loki)
		if err != nil {
			w.Close()
			return nil, nil, fmt.Errorf("failed to create loki output: %w", err)
		}
		w.Add(lw)
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(formatter)
	l.SetOutput(w)
	return l, w, nil
}

// parseLevel accepts debug, info, warn/warning, and error.
func parseLevel(levelStr string) (logrus.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown level: %s", levelStr)
	}
}

func timeLayoutOr(layout string) string {
	if layout == "" {
		return DefaultTimeLayout
	}
	return layout
}

// createLokiWriter creates a Loki writer.
func createLokiWriter(lc config.LokiOutputConfig) (io.WriteCloser, error) {
	lw, err := NewLokiWriter(LokiConfig{
		Endpoint:      lc.Endpoint,
		Labels:        lc.Labels,
		BatchSize:     lc.BatchSize,
		FlushInterval: lc.BatchTimeout,
	})
	if err != nil {
		return nil, err
	}
	return lw, nil
}

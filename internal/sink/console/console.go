// Package console implements a dry-run sink that prints messages instead of
// publishing them.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"firestige.xyz/vesper/internal/core"
	"firestige.xyz/vesper/internal/sink"
)

const Name = "console"

func init() {
	sink.Register(Name, func(options map[string]any, env sink.Env) (sink.Sink, error) {
		s, err := New(options)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

type Config struct {
	Output string `mapstructure:"output"` // stdout|stderr
}

// Sink writes one JSON line per message.
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

// line is the printed form of a message. Text values are printed as is, binary
// values (cbor, protobuf) as base64.
type line struct {
	Time        string          `json:"time"`
	Topic       string          `json:"topic"`
	Key         string          `json:"key"`
	ContentType string          `json:"content_type,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	Text        string          `json:"text,omitempty"`
	Binary      []byte          `json:"binary,omitempty"`
}

func New(options map[string]any) (*Sink, error) {
	cfg := Config{Output: "stdout"}
	if err := sink.DecodeOptions(options, &cfg); err != nil {
		return nil, fmt.Errorf("console sink: %w", err)
	}
	switch cfg.Output {
	case "stdout", "":
		return NewWriter(os.Stdout), nil
	case "stderr":
		return NewWriter(os.Stderr), nil
	default:
		return nil, fmt.Errorf("console sink: %w: output %q (must be stdout/stderr)", core.ErrConfigInvalid, cfg.Output)
	}
}

// NewWriter creates a console sink writing to w.
func NewWriter(w io.Writer) *Sink {
	return &Sink{w: w}
}

func (s *Sink) Name() string { return Name }

func (s *Sink) Publish(_ context.Context, msg sink.Message) error {
	l := line{
		Time:        msg.Time.UTC().Format(time.RFC3339),
		Topic:       msg.Topic,
		Key:         string(msg.Key),
		ContentType: msg.ContentType,
	}
	switch {
	case json.Valid(msg.Value):
		l.Value = msg.Value
	case utf8.Valid(msg.Value):
		l.Text = string(msg.Value)
	default:
		l.Binary = msg.Value
	}

	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrSinkClosed
	}
	_, err = s.w.Write(data)
	return err
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

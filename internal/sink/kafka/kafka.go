// Package kafka implements the Kafka sink.
// Each message is written synchronously so that Publish reports the broker outcome.
package kafka

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"firestige.xyz/vesper/internal/core"
	"firestige.xyz/vesper/internal/log"
	"firestige.xyz/vesper/internal/sink"
)

const Name = "kafka"

const (
	defaultBatchSize    = 1
	defaultBatchTimeout = 10 * time.Millisecond
	defaultCompression  = "none"
	defaultMaxAttempts  = 1
	defaultRequiredAcks = "one"

	headerAgentID     = "agent_id"
	headerContentType = "content-type"
)

func init() {
	sink.Register(Name, func(options map[string]any, env sink.Env) (sink.Sink, error) {
		s, err := New(options, env)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Config represents Kafka sink options.
type Config struct {
	Brokers                []string      `mapstructure:"brokers"`                   // required
	Compression            string        `mapstructure:"compression"`               // none|gzip|snappy|lz4|zstd
	BatchSize              int           `mapstructure:"batch_size"`                // default 1
	BatchTimeout           time.Duration `mapstructure:"batch_timeout"`             // default 10ms
	MaxAttempts            int           `mapstructure:"max_attempts"`              // default 1, no retries
	RequiredAcks           string        `mapstructure:"required_acks"`             // none|one|all
	AllowAutoTopicCreation bool          `mapstructure:"allow_auto_topic_creation"` // default true
	SASL                   SASLConfig    `mapstructure:"sasl"`
	TLS                    TLSConfig     `mapstructure:"tls"`
}

// SASLConfig enables SASL authentication when Mechanism is set.
type SASLConfig struct {
	Mechanism string `mapstructure:"mechanism"` // PLAIN|SCRAM-SHA-256|SCRAM-SHA-512
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

type TLSConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink publishes messages to Kafka.
type Sink struct {
	config  Config
	writer  messageWriter
	agentID string
	logger  log.Logger

	mu     sync.RWMutex
	closed bool
}

// ParseConfig decodes options and applies defaults.
func ParseConfig(options map[string]any) (Config, error) {
	cfg := Config{
		BatchSize:              defaultBatchSize,
		BatchTimeout:           defaultBatchTimeout,
		Compression:            defaultCompression,
		MaxAttempts:            defaultMaxAttempts,
		RequiredAcks:           defaultRequiredAcks,
		AllowAutoTopicCreation: true,
	}
	if err := sink.DecodeOptions(options, &cfg); err != nil {
		return cfg, fmt.Errorf("kafka sink: %w", err)
	}

	if len(cfg.Brokers) == 0 {
		return cfg, fmt.Errorf("kafka sink: %w: brokers is required", core.ErrConfigInvalid)
	}
	for i, b := range cfg.Brokers {
		if strings.TrimSpace(b) == "" {
			return cfg, fmt.Errorf("kafka sink: %w: empty broker at index %d", core.ErrConfigInvalid, i)
		}
	}
	if cfg.BatchSize <= 0 {
		return cfg, fmt.Errorf("kafka sink: %w: batch_size must be > 0", core.ErrConfigInvalid)
	}
	if cfg.MaxAttempts <= 0 {
		return cfg, fmt.Errorf("kafka sink: %w: max_attempts must be > 0", core.ErrConfigInvalid)
	}
	return cfg, nil
}

// New creates a Kafka sink from options.
func New(options map[string]any, env sink.Env) (*Sink, error) {
	cfg, err := ParseConfig(options)
	if err != nil {
		return nil, err
	}
	logger := env.Logger
	if logger == nil {
		logger = log.GetLogger()
	}

	w, err := newWriter(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"brokers":     cfg.Brokers,
		"compression": cfg.Compression,
		"acks":        cfg.RequiredAcks,
	}).Info("kafka sink ready")

	return newSink(cfg, w, env.AgentID, logger), nil
}

func newSink(cfg Config, w messageWriter, agentID string, logger log.Logger) *Sink {
	return &Sink{config: cfg, writer: w, agentID: agentID, logger: logger}
}

func newWriter(cfg Config, logger log.Logger) (*kafka.Writer, error) {
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	acks, err := requiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{}, // same key, same partition
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		MaxAttempts:            cfg.MaxAttempts,
		RequiredAcks:           acks,
		AllowAutoTopicCreation: cfg.AllowAutoTopicCreation,
		Compression:            codec,
		Async:                  false,
		Logger:                 kafka.LoggerFunc(logger.WithField("component", "kafka").Debugf),
		ErrorLogger:            kafka.LoggerFunc(logger.WithField("component", "kafka").Errorf),
	}

	mech, err := saslMechanism(cfg.SASL)
	if err != nil {
		return nil, err
	}
	if mech != nil || cfg.TLS.Enabled {
		transport := &kafka.Transport{SASL: mech}
		if cfg.TLS.Enabled {
			transport.TLS = &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec
			}
		}
		w.Transport = transport
	}
	return w, nil
}

func compressionCodec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "none", "":
		return 0, nil
	case "gzip":
		return compress.Gzip, nil
	case "snappy":
		return compress.Snappy, nil
	case "lz4":
		return compress.Lz4, nil
	case "zstd":
		return compress.Zstd, nil
	default:
		return 0, fmt.Errorf("kafka sink: %w: invalid compression type: %s", core.ErrConfigInvalid, name)
	}
}

func requiredAcks(name string) (kafka.RequiredAcks, error) {
	switch strings.ToLower(name) {
	case "none", "0":
		return kafka.RequireNone, nil
	case "one", "1", "":
		return kafka.RequireOne, nil
	case "all", "-1":
		return kafka.RequireAll, nil
	default:
		return 0, fmt.Errorf("kafka sink: %w: invalid required_acks: %s", core.ErrConfigInvalid, name)
	}
}

func saslMechanism(cfg SASLConfig) (sasl.Mechanism, error) {
	switch strings.ToUpper(cfg.Mechanism) {
	case "":
		return nil, nil
	case "PLAIN":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, fmt.Errorf("kafka sink: %w: unsupported sasl mechanism: %s", core.ErrConfigInvalid, cfg.Mechanism)
	}
}

// Name returns the sink name.
func (s *Sink) Name() string { return Name }

// Publish writes one message and waits for the broker acknowledgement configured
// by required_acks.
func (s *Sink) Publish(ctx context.Context, msg sink.Message) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.ErrSinkClosed
	}

	km := kafka.Message{
		Topic: msg.Topic,
		Key:   msg.Key,
		Value: msg.Value,
		Time:  msg.Time,
	}
	if msg.ContentType != "" {
		km.Headers = append(km.Headers, kafka.Header{Key: headerContentType, Value: []byte(msg.ContentType)})
	}
	if s.agentID != "" {
		km.Headers = append(km.Headers, kafka.Header{Key: headerAgentID, Value: []byte(s.agentID)})
	}

	if err := s.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("kafka write to %s failed: %w", msg.Topic, err)
	}
	return nil
}

// Close flushes and closes the writer. Publish fails with core.ErrSinkClosed afterwards.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.writer.Close(); err != nil {
		s.logger.WithError(err).Error("error closing kafka writer")
		return err
	}
	return nil
}

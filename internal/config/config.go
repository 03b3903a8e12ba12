// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"firestige.xyz/vesper/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `vesper:` root key in YAML.
type GlobalConfig struct {
	Node     NodeConfig     `mapstructure:"node" yaml:"node"`
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Decoder  DecoderConfig  `mapstructure:"decoder" yaml:"decoder"`
	Codec    CodecConfig    `mapstructure:"codec" yaml:"codec"`
	Routing  RoutingConfig  `mapstructure:"routing" yaml:"routing"`
	Sink     SinkConfig     `mapstructure:"sink" yaml:"sink"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ─── Node Identity ───

// NodeConfig identifies this collector instance.
type NodeConfig struct {
	ID       string `mapstructure:"id" yaml:"id"`             // Empty = random UUID per process
	Hostname string `mapstructure:"hostname" yaml:"hostname"` // Empty = os.Hostname()
}

// ─── Capture ───

// CaptureConfig selects and tunes the capture source.
type CaptureConfig struct {
	Type         string        `mapstructure:"type" yaml:"type"`     // pcap | afpacket | file
	Device       string        `mapstructure:"device" yaml:"device"` // Empty = first device reported by libpcap
	File         string        `mapstructure:"file" yaml:"file"`
	SnapLen      int           `mapstructure:"snap_len" yaml:"snap_len"`
	Promiscuous  bool          `mapstructure:"promiscuous" yaml:"promiscuous"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	BPFFilter    string        `mapstructure:"bpf_filter" yaml:"bpf_filter"`
	BufferSizeMB int           `mapstructure:"buffer_size_mb" yaml:"buffer_size_mb"` // afpacket only
	FanoutID     uint16        `mapstructure:"fanout_id" yaml:"fanout_id"`           // afpacket only
}

// ─── Decoding & Encoding ───

// DecoderConfig configures the L2-L4 decoder.
type DecoderConfig struct {
	MaxVLANTags int `mapstructure:"max_vlan_tags" yaml:"max_vlan_tags"`
}

// CodecConfig selects the wire format of flow records.
type CodecConfig struct {
	Name string `mapstructure:"name" yaml:"name"` // json | cbor | protobuf
}

// RoutingConfig maps records to topics and keys.
type RoutingConfig struct {
	Mode   string   `mapstructure:"mode" yaml:"mode"`   // fixed | flow | hashring
	Topic  string   `mapstructure:"topic" yaml:"topic"` // fixed and flow modes
	Key    string   `mapstructure:"key" yaml:"key"`     // fixed mode
	Topics []string `mapstructure:"topics" yaml:"topics"`
}

// ─── Sink ───

// SinkConfig selects the event sink. Options are decoded by the sink itself.
type SinkConfig struct {
	Type    string         `mapstructure:"type" yaml:"type"` // kafka | amqp | console
	Options map[string]any `mapstructure:"options" yaml:"options"`
}

// PipelineConfig tunes the capture loop.
type PipelineConfig struct {
	PublishTimeout time.Duration `mapstructure:"publish_timeout" yaml:"publish_timeout"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Pattern string           `mapstructure:"pattern" yaml:"pattern"`
	Time    string           `mapstructure:"time" yaml:"time"`
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
	Loki LokiOutputConfig `mapstructure:"loki" yaml:"loki"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// LokiOutputConfig configures Loki log output.
type LokiOutputConfig struct {
	Enabled      bool              `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string            `mapstructure:"endpoint" yaml:"endpoint"`
	Labels       map[string]string `mapstructure:"labels" yaml:"labels"`
	BatchSize    int               `mapstructure:"batch_size" yaml:"batch_size"`
	BatchTimeout time.Duration     `mapstructure:"batch_timeout" yaml:"batch_timeout"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `vesper: ...`.
type configRoot struct {
	Vesper GlobalConfig `mapstructure:"vesper"`
}

// Load loads configuration from file. An empty path loads defaults and environment only.
// The YAML file uses `vesper:` as root key; env vars use the VESPER_ prefix
// (e.g., VESPER_LOG_LEVEL). A .env file in the working directory is read first.
func Load(path string) (*GlobalConfig, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation, for callers that override fields first.
func Read(path string) (*GlobalConfig, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `vesper.` key prefix maps to `VESPER_` via the key replacer
	// (key "vesper.log.level" -> env "VESPER_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Vesper
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "vesper." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Capture defaults
	v.SetDefault("vesper.capture.type", "pcap")
	v.SetDefault("vesper.capture.snap_len", 65535)
	v.SetDefault("vesper.capture.promiscuous", true)
	v.SetDefault("vesper.capture.timeout", "10ms")
	v.SetDefault("vesper.capture.buffer_size_mb", 8)

	// Decoder, codec & routing defaults
	v.SetDefault("vesper.decoder.max_vlan_tags", 2)
	v.SetDefault("vesper.codec.name", "json")
	v.SetDefault("vesper.routing.mode", "fixed")
	v.SetDefault("vesper.routing.topic", "raw_metrics")
	v.SetDefault("vesper.routing.key", "flow")

	// Sink & pipeline defaults
	v.SetDefault("vesper.sink.type", "kafka")
	v.SetDefault("vesper.pipeline.publish_timeout", "5s")

	// Metrics defaults
	v.SetDefault("vesper.metrics.enabled", true)
	v.SetDefault("vesper.metrics.listen", ":9091")
	v.SetDefault("vesper.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("vesper.log.level", "info")
	v.SetDefault("vesper.log.format", "text")
	v.SetDefault("vesper.log.pattern", "%time [%level] %caller: %msg %field\n")
	v.SetDefault("vesper.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("vesper.log.outputs.file.enabled", false)
	v.SetDefault("vesper.log.outputs.file.path", "/var/log/vesper/vesper.log")
	v.SetDefault("vesper.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("vesper.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("vesper.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("vesper.log.outputs.file.rotation.compress", true)
	v.SetDefault("vesper.log.outputs.loki.batch_size", 100)
	v.SetDefault("vesper.log.outputs.loki.batch_timeout", "5s")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("log level %q (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return invalid("log format %q (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}
	if cfg.Log.Outputs.Loki.Enabled && cfg.Log.Outputs.Loki.Endpoint == "" {
		return invalid("log.outputs.loki.endpoint is required when loki output is enabled")
	}

	// ── Node identity ──
	if cfg.Node.ID == "" {
		cfg.Node.ID = uuid.NewString()
	}
	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	// ── Capture ──
	switch cfg.Capture.Type {
	case "pcap", "afpacket":
	case "file":
		if cfg.Capture.File == "" {
			return invalid("capture.file is required when capture.type=file")
		}
	default:
		return invalid("capture.type %q (must be pcap/afpacket/file)", cfg.Capture.Type)
	}
	if cfg.Capture.SnapLen <= 0 {
		return invalid("capture.snap_len must be positive, got %d", cfg.Capture.SnapLen)
	}

	// ── Codec & routing ──
	switch cfg.Codec.Name {
	case "json", "cbor", "protobuf":
	default:
		return invalid("codec.name %q (must be json/cbor/protobuf)", cfg.Codec.Name)
	}
	switch cfg.Routing.Mode {
	case "fixed", "flow":
	case "hashring":
		if len(cfg.Routing.Topics) == 0 {
			return invalid("routing.topics is required when routing.mode=hashring")
		}
	default:
		return invalid("routing.mode %q (must be fixed/flow/hashring)", cfg.Routing.Mode)
	}

	// ── Sink ──
	switch cfg.Sink.Type {
	case "kafka":
		applyLegacyBroker(&cfg.Sink)
	case "amqp", "console":
	default:
		return invalid("sink.type %q (must be kafka/amqp/console)", cfg.Sink.Type)
	}

	if cfg.Pipeline.PublishTimeout <= 0 {
		return invalid("pipeline.publish_timeout must be positive, got %s", cfg.Pipeline.PublishTimeout)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/vesper/internal/config"
)

func TestParseLevelValid(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"WARN", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := parseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestParseLevelInvalid(t *testing.T) {
	for _, input := range []string{"", "verbose", "fatal", "trace"} {
		t.Run(input, func(t *testing.T) {
			_, err := parseLevel(input)
			assert.Error(t, err)
		})
	}
}

func resetGlobal(t *testing.T) {
	t.Cleanup(func() {
		_ = Close()
		mu.Lock()
		logger = nil
		mu.Unlock()
	})
}

func TestInitStdoutOnly(t *testing.T) {
	resetGlobal(t)

	err := Init(config.LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)

	l := GetLogger()
	require.NotNil(t, l)
	assert.True(t, l.IsInfoEnabled())
	assert.False(t, l.IsDebugEnabled())
}

func TestInitWithFileOutput(t *testing.T) {
	resetGlobal(t)
	logPath := filepath.Join(t.TempDir(), "vesper.log")

	cfg := config.LogConfig{
		Level:  "debug",
		Format: "text",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{
				Enabled:  true,
				Path:     logPath,
				Rotation: config.RotationConfig{MaxSizeMB: 1, MaxBackups: 1},
			},
		},
	}
	require.NoError(t, Init(cfg))

	GetLogger().WithField("key", "value").Info("test message")
	require.NoError(t, Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test message")
	assert.Contains(t, string(data), "key=value")
	assert.Contains(t, string(data), "[info]")
}

func TestInitErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LogConfig
		want string
	}{
		{"invalid level", config.LogConfig{Level: "verbose", Format: "json"}, "invalid log level"},
		{"invalid format", config.LogConfig{Level: "info", Format: "xml"}, "unsupported log format"},
		{
			"missing file path",
			config.LogConfig{Level: "info", Format: "json", Outputs: config.LogOutputsConfig{
				File: config.FileOutputConfig{Enabled: true},
			}},
			"path",
		},
		{
			"missing loki endpoint",
			config.LogConfig{Level: "info", Format: "json", Outputs: config.LogOutputsConfig{
				Loki: config.LokiOutputConfig{Enabled: true},
			}},
			"endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetGlobal(t)
			err := Init(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetLoggerBeforeInit(t *testing.T) {
	resetGlobal(t)
	mu.Lock()
	logger = nil
	mu.Unlock()

	l := GetLogger()
	require.NotNil(t, l)
	assert.True(t, l.IsInfoEnabled())
	assert.Same(t, l, GetLogger())
}

func TestCreateFileWriter(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")
	w, err := createFileWriter(config.FileOutputConfig{
		Path:     logPath,
		Rotation: config.RotationConfig{MaxSizeMB: 10, MaxAgeDays: 7, MaxBackups: 3, Compress: true},
	})
	require.NoError(t, err)
	assert.Equal(t, logPath, w.Filename)
	assert.Equal(t, 10, w.MaxSize)
	assert.Equal(t, 7, w.MaxAge)
	assert.Equal(t, 3, w.MaxBackups)
	assert.True(t, w.Compress)

	_, err = createFileWriter(config.FileOutputConfig{})
	assert.Error(t, err)
}

func newTestLogger(buf *bytes.Buffer, level logrus.Level, f logrus.Formatter) Logger {
	l := logrus.New()
	l.SetOutput(buf)
	l.SetLevel(level)
	l.SetFormatter(f)
	return newLogrusAdapter(l)
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, logrus.WarnLevel, newFormatter("%level %msg\n", ""))

	l.Debug("debug line")
	l.Info("info line")
	l.Warn("warn line")
	l.Error("error line")

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "warning warn line")
	assert.Contains(t, out, "error error line")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, logrus.InfoLevel, &logrus.JSONFormatter{})

	l.WithFields(map[string]interface{}{"sink": "kafka", "topic": "raw_metrics"}).Info("published")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "published", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "kafka", entry["sink"])
	assert.Equal(t, "raw_metrics", entry["topic"])
}

func TestPatternFormatter(t *testing.T) {
	f := newFormatter("%time [%level] %msg %field", "15:04:05")
	entry := &logrus.Entry{
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.ErrorLevel,
		Message: "publish failed",
		Data: logrus.Fields{
			"topic": "raw_metrics",
			"error": errors.New("broker down"),
			"count": 3,
		},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "03:04:05 [error] publish failed count=3,error=broker down,topic=raw_metrics", string(out))
}

func TestPatternFormatterDefaults(t *testing.T) {
	f := newFormatter("", "")
	assert.Equal(t, DefaultPattern, f.pattern)
	assert.Equal(t, DefaultTimeLayout, f.time)
	assert.Len(t, f.tokens, 5)
}

func TestPatternFormatterGoroutine(t *testing.T) {
	f := newFormatter("%goroutine", "")
	out, err := f.Format(&logrus.Entry{})
	require.NoError(t, err)
	assert.NotEqual(t, "unknown", string(out))
	assert.NotContains(t, string(out), " ")
}

func TestPackageOf(t *testing.T) {
	assert.Equal(t, "decoder", packageOf("firestige.xyz/vesper/internal/core/decoder.(*Decoder).Decode"))
	assert.Equal(t, "main", packageOf("main.main"))
	assert.Equal(t, "unknown", packageOf(""))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("boom") }

type closeCounter struct {
	bytes.Buffer
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestMultiWriter(t *testing.T) {
	var a bytes.Buffer
	b := &closeCounter{}
	w := NewMultiWriter().Add(&a).Add(failingWriter{}).Add(b)
	assert.Equal(t, 3, w.Len())

	n, err := w.Write([]byte("line\n"))
	assert.Equal(t, 5, n)
	assert.Error(t, err)
	assert.Equal(t, "line\n", a.String())
	assert.Equal(t, "line\n", b.String())

	require.NoError(t, w.Close())
	assert.Equal(t, 1, b.closed)
}

func TestMultiWriterSkipsStdStreams(t *testing.T) {
	w := NewMultiWriter().Add(os.Stdout).Add(os.Stderr)
	require.NoError(t, w.Close())

	_, err := os.Stdout.Write([]byte{})
	assert.NoError(t, err)
}

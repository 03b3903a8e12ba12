package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const (
	defaultLokiBatchSize     = 100
	defaultLokiFlushInterval = 5 * time.Second
	lokiMaxRetries           = 3
	lokiRetryBaseDelay       = 100 * time.Millisecond
)

var errLokiClosed = errors.New("loki writer is closed")

// LokiConfig contains configuration for Loki writer.
type LokiConfig struct {
	Endpoint      string            // Loki push endpoint URL
	Labels        map[string]string // Stream labels
	BatchSize     int               // Number of log entries per batch
	FlushInterval time.Duration     // Upper bound on how long an entry waits in the batch
}

// LokiWriter implements io.Writer and pushes log lines to Grafana Loki in batches.
// Pushes happen on a background goroutine so that logging never waits on the network.
type LokiWriter struct {
	endpoint      string
	labels        map[string]string
	batchSize     int
	flushInterval time.Duration
	httpClient    *http.Client

	mu      sync.Mutex
	batch   []logEntry
	closed  bool
	flushCh chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup
}

type logEntry struct {
	timestamp time.Time
	line      string
}

// lokiPushRequest is the body of POST /loki/api/v1/push.
type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// NewLokiWriter creates a Loki writer and starts its flusher.
func NewLokiWriter(cfg LokiConfig) (*LokiWriter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("loki output requires 'endpoint' field")
	}

	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultLokiFlushInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultLokiBatchSize
	}

	labels := make(map[string]string, len(cfg.Labels)+1)
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	if _, ok := labels["job"]; !ok {
		labels["job"] = "vesper"
	}

	lw := &LokiWriter{
		endpoint:      cfg.Endpoint,
		labels:        labels,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		batch:         make([]logEntry, 0, batchSize),
		flushCh:       make(chan struct{}, 1),
		closeCh:       make(chan struct{}),
	}

	lw.wg.Add(1)
	go lw.flusher()

	return lw, nil
}

// Write implements io.Writer. It only queues the line.
func (lw *LokiWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.closed {
		return 0, errLokiClosed
	}

	lw.batch = append(lw.batch, logEntry{timestamp: time.Now(), line: string(p)})
	if len(lw.batch) >= lw.batchSize {
		select {
		case lw.flushCh <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

// Close stops the flusher and pushes whatever is still queued.
func (lw *LokiWriter) Close() error {
	lw.mu.Lock()
	if lw.closed {
		lw.mu.Unlock()
		return nil
	}
	lw.closed = true
	lw.mu.Unlock()

	close(lw.closeCh)
	lw.wg.Wait()

	return lw.flush()
}

func (lw *LokiWriter) flusher() {
	defer lw.wg.Done()

	ticker := time.NewTicker(lw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-lw.flushCh:
		case <-lw.closeCh:
			return
		}
		if err := lw.flush(); err != nil {
			// The logger itself writes here, so report on stderr only.
			fmt.Fprintf(os.Stderr, "loki flush error: %v\n", err)
		}
	}
}

// flush takes the current batch and pushes it.
func (lw *LokiWriter) flush() error {
	lw.mu.Lock()
	if len(lw.batch) == 0 {
		lw.mu.Unlock()
		return nil
	}
	entries := lw.batch
	lw.batch = make([]logEntry, 0, lw.batchSize)
	lw.mu.Unlock()

	values := make([][]string, len(entries))
	for i, entry := range entries {
		values[i] = []string{strconv.FormatInt(entry.timestamp.UnixNano(), 10), entry.line}
	}

	data, err := json.Marshal(lokiPushRequest{
		Streams: []lokiStream{{Stream: lw.labels, Values: values}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal loki request: %w", err)
	}
	return lw.sendWithRetry(data)
}

// sendWithRetry pushes data with exponential backoff.
func (lw *LokiWriter) sendWithRetry(data []byte) error {
	var lastErr error
	for attempt := 0; attempt < lokiMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(lokiRetryBaseDelay << (attempt - 1))
		}
		if lastErr = lw.send(data); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("loki push failed after %d attempts: %w", lokiMaxRetries, lastErr)
}

func (lw *LokiWriter) send(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lw.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := lw.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("loki push failed with status %d: %s", resp.StatusCode, body)
	}
	return nil
}

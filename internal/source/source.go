// Package source defines capture sources that feed raw frames into the pipeline.
package source

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/vesper/internal/core"
)

// Source is a blocking pull interface over captured frames.
type Source interface {
	// Next returns the next captured frame. It returns io.EOF at the end of the
	// stream and ctx.Err() once ctx is done.
	Next(ctx context.Context) (core.RawFrame, error)
	Close() error
}

// Config describes how to open a source. Fields a source type does not use are ignored.
type Config struct {
	Type         string        // pcap, afpacket or file
	Device       string        // Live capture interface, empty means the first device found
	File         string        // Offline capture file (pcap or pcapng)
	SnapLen      int           // Bytes captured per frame
	Promiscuous  bool          // Put the interface in promiscuous mode
	Timeout      time.Duration // Read timeout, bounds cancellation latency
	BPFFilter    string        // Kernel filter expression
	BufferSizeMB int           // AF_PACKET ring size
	FanoutID     uint16        // AF_PACKET fanout group, 0 disables fanout
}

// Opener creates a source from its configuration.
type Opener func(cfg Config) (Source, error)

var (
	mu      sync.RWMutex
	openers = make(map[string]Opener)
)

// Register makes a source type available to Open. Source packages call it from init.
func Register(name string, fn Opener) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := openers[name]; dup {
		panic("source: Register called twice for " + name)
	}
	openers[name] = fn
}

// Open creates the source named by cfg.Type.
func Open(cfg Config) (Source, error) {
	mu.RLock()
	fn, ok := openers[cfg.Type]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", core.ErrUnknownSource, cfg.Type, Registered())
	}
	return fn(cfg)
}

// Registered lists the registered source types.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FramingFor maps a capture link type to the framing the decoder understands.
func FramingFor(lt layers.LinkType) core.FramingType {
	switch lt {
	case layers.LinkTypeEthernet:
		return core.FramingEthernet
	case layers.LinkTypeLinuxSLL:
		return core.FramingLinuxSLL
	case layers.LinkTypeNull:
		return core.FramingNull
	default:
		return core.FramingOther
	}
}

// Reader adapts a gopacket.PacketDataSource to Source.
type Reader struct {
	src       gopacket.PacketDataSource
	framing   core.FramingType
	transient func(error) bool
}

// NewReader wraps src. Errors for which transient returns true are retried; transient may
// be nil.
func NewReader(src gopacket.PacketDataSource, framing core.FramingType, transient func(error) bool) *Reader {
	if transient == nil {
		transient = func(error) bool { return false }
	}
	return &Reader{src: src, framing: framing, transient: transient}
}

// Framing returns the framing attached to every frame.
func (r *Reader) Framing() core.FramingType {
	return r.framing
}

func (r *Reader) Next(ctx context.Context) (core.RawFrame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return core.RawFrame{}, err
		}

		data, ci, err := r.src.ReadPacketData()
		if err != nil {
			if r.transient(err) {
				continue
			}
			return core.RawFrame{}, err
		}

		return core.RawFrame{
			Framing:    r.framing,
			Data:       data,
			Timestamp:  ci.Timestamp,
			CaptureLen: uint32(ci.CaptureLength),
			OrigLen:    uint32(ci.Length),
		}, nil
	}
}

// Close closes the underlying data source when it is an io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

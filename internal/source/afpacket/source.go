//go:build linux

// Package afpacket captures live traffic through a Linux AF_PACKET TPACKET_V3 ring.
package afpacket

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/vesper/internal/core"
	"firestige.xyz/vesper/internal/source"
)

const Name = "afpacket"

const (
	defaultSnapLen      = 65535
	defaultBufferSizeMB = 8
	defaultTimeout      = 10 * time.Millisecond
)

func init() {
	source.Register(Name, func(cfg source.Config) (source.Source, error) {
		s, err := Open(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Source reads frames from a memory-mapped AF_PACKET ring.
type Source struct {
	*source.Reader
	handle *afpacket.TPacket
}

// Open creates the ring on cfg.Device (all interfaces when empty). Every frame is
// read as Ethernet, so a named device must be an Ethernet or loopback link.
func Open(cfg source.Config) (*Source, error) {
	snapLen := cfg.SnapLen
	if snapLen <= 0 {
		snapLen = defaultSnapLen
	}
	bufferSizeMB := cfg.BufferSizeMB
	if bufferSizeMB <= 0 {
		bufferSizeMB = defaultBufferSizeMB
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if err := checkEthernetLink(cfg.Device); err != nil {
		return nil, err
	}

	frameSize, blockSize, numBlocks, err := recomputeSize(bufferSizeMB, snapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("afpacket: ring size: %w", err)
	}

	opts := []interface{}{
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(timeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	}
	if cfg.Device != "" {
		opts = append(opts, afpacket.OptInterface(cfg.Device))
	}

	tp, err := afpacket.NewTPacket(opts...)
	if err != nil {
		return nil, fmt.Errorf("afpacket: open %s: %w", cfg.Device, err)
	}

	if cfg.FanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, cfg.FanoutID); err != nil {
			tp.Close()
			return nil, fmt.Errorf("afpacket: fanout %d: %w", cfg.FanoutID, err)
		}
	}

	if cfg.BPFFilter != "" {
		prog, err := compileBPF(cfg.BPFFilter, snapLen)
		if err != nil {
			tp.Close()
			return nil, err
		}
		if err := tp.SetBPF(prog); err != nil {
			tp.Close()
			return nil, fmt.Errorf("afpacket: attach bpf: %w", err)
		}
	}

	return &Source{
		Reader: source.NewReader(tp, core.FramingEthernet, isTimeout),
		handle: tp,
	}, nil
}

func (s *Source) Close() error {
	s.handle.Close()
	return nil
}

// compileBPF compiles a filter expression with libpcap into the raw form the ring accepts.
func compileBPF(expr string, snapLen int) ([]bpf.RawInstruction, error) {
	insts, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("afpacket: bpf filter %q: %w", expr, err)
	}
	raw := make([]bpf.RawInstruction, len(insts))
	for i, inst := range insts {
		raw[i] = bpf.RawInstruction{
			Op: inst.Code,
			Jt: inst.Jt,
			Jf: inst.Jf,
			K:  inst.K,
		}
	}
	return raw, nil
}

func isTimeout(err error) bool {
	return errors.Is(err, afpacket.ErrTimeout)
}

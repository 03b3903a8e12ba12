// Package file replays pcap and pcapng capture files.
package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/vesper/internal/core"
	"firestige.xyz/vesper/internal/source"
)

const Name = "file"

// pcapng files start with a Section Header Block.
var ngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

func init() {
	source.Register(Name, func(cfg source.Config) (source.Source, error) {
		s, err := Open(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// packetReader is implemented by both pcapgo.Reader and pcapgo.NgReader.
type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Source reads frames from a capture file in file order.
type Source struct {
	*source.Reader
	f        *os.File
	linkType layers.LinkType
	filter   *pcap.BPF
	path     string
}

// Open opens cfg.File. The format is detected from the file header.
func Open(cfg source.Config) (*Source, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("%w: file source needs a file path", core.ErrConfigInvalid)
	}

	f, err := os.Open(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", cfg.File, err)
	}

	r, err := newPacketReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file %s: %w", cfg.File, err)
	}

	s := &Source{
		f:        f,
		linkType: r.LinkType(),
		path:     cfg.File,
	}

	if cfg.BPFFilter != "" {
		snapLen := cfg.SnapLen
		if snapLen <= 0 {
			snapLen = 65535
		}
		s.filter, err = pcap.NewBPF(s.linkType, snapLen, cfg.BPFFilter)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("bpf filter %q: %w", cfg.BPFFilter, err)
		}
	}

	var src gopacket.PacketDataSource = r
	if s.filter != nil {
		src = &filtered{src: r, filter: s.filter}
	}
	s.Reader = source.NewReader(src, source.FramingFor(s.linkType), nil)
	return s, nil
}

func newPacketReader(br *bufio.Reader) (packetReader, error) {
	magic, err := br.Peek(len(ngMagic))
	if err != nil {
		return nil, err
	}
	if bytes.Equal(magic, ngMagic) {
		r, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	r, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// LinkType returns the link type declared by the file header.
func (s *Source) LinkType() layers.LinkType {
	return s.linkType
}

func (s *Source) Next(ctx context.Context) (core.RawFrame, error) {
	f, err := s.Reader.Next(ctx)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, ctx.Err()) {
		return f, fmt.Errorf("failed to read packet from %s: %w", s.path, err)
	}
	return f, err
}

func (s *Source) Close() error {
	return s.f.Close()
}

// filtered drops packets the BPF program rejects.
type filtered struct {
	src    gopacket.PacketDataSource
	filter *pcap.BPF
}

func (f *filtered) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	for {
		data, ci, err := f.src.ReadPacketData()
		if err != nil || f.filter.Matches(ci, data) {
			return data, ci, err
		}
	}
}

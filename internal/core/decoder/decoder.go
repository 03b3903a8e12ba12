package decoder

import (
	"fmt"

	"firestige.xyz/vesper/internal/core"
)

// DefaultMaxVLANTags covers single 802.1Q and QinQ frames.
const DefaultMaxVLANTags = 2

// Stage names the layer a decode failure happened in.
type Stage string

const (
	StageLink      Stage = "link"
	StageNetwork   Stage = "network"
	StageTransport Stage = "transport"
)

// StageError attaches the failing layer to a decode error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Config controls decoder behavior.
type Config struct {
	MaxVLANTags int // 802.1Q/802.1ad tags skipped before giving up; <= 0 means default
}

// Decoder turns raw frames into network and transport headers.
// It holds no per-frame state and is safe for concurrent use.
type Decoder struct {
	maxVLANTags int
}

// New creates a decoder.
func New(cfg Config) *Decoder {
	if cfg.MaxVLANTags <= 0 {
		cfg.MaxVLANTags = DefaultMaxVLANTags
	}
	return &Decoder{maxVLANTags: cfg.MaxVLANTags}
}

// Decode extracts whatever headers the frame carries. It never fails: layers that cannot be
// decoded are left absent and the first failure is recorded in DecodedHeaders.Failure.
func (d *Decoder) Decode(frame core.RawFrame) core.DecodedHeaders {
	var out core.DecodedHeaders

	view, err := Classify(frame.Framing, frame.Data)
	if err != nil {
		out.Failure = &StageError{Stage: StageLink, Err: err}
		return out
	}

	ipData := view.Data
	var want uint8
	if view.Layer == LayerEthernet {
		eth, payload, err := decodeEthernet(view.Data, d.maxVLANTags)
		if err != nil {
			out.Failure = &StageError{Stage: StageLink, Err: err}
			return out
		}
		switch eth.EtherType {
		case etherTypeIPv4:
			want = 4
		case etherTypeIPv6:
			want = 6
		default:
			out.Failure = &StageError{
				Stage: StageNetwork,
				Err:   fmt.Errorf("ethertype 0x%04x: %w", eth.EtherType, core.ErrUnsupportedProto),
			}
			return out
		}
		ipData = payload
	}

	ip, payload, err := decodeIP(ipData, want)
	if ip.Valid() {
		out.Network = ip
	}
	if err != nil {
		stage := StageNetwork
		if ip.Valid() {
			stage = StageTransport
		}
		out.Failure = &StageError{Stage: stage, Err: err}
		return out
	}
	if !ip.Valid() || ip.Fragment {
		return out
	}

	transport, err := decodeTransport(payload, ip.Protocol)
	if err != nil {
		out.Failure = &StageError{Stage: StageTransport, Err: err}
		return out
	}
	out.Transport = transport
	return out
}

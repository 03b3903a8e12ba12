package flow

import (
	"fmt"
	"strings"

	"firestige.xyz/vesper/internal/core"
)

// Codec serializes records for the wire.
type Codec interface {
	Name() string
	ContentType() string
	Encode(r Record) ([]byte, error)
	// Decode is strict: unknown or missing fields and invalid values are rejected
	// with core.ErrInvalidRecord.
	Decode(data []byte) (Record, error)
}

// Codec names accepted by NewCodec.
const (
	CodecJSON     = "json"
	CodecCBOR     = "cbor"
	CodecProtobuf = "protobuf"
)

// NewCodec returns the codec registered under name. An empty name selects JSON.
func NewCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecCBOR:
		c, err := NewCBORCodec()
		if err != nil {
			return nil, err
		}
		return c, nil
	case CodecProtobuf, "proto":
		return ProtobufCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownCodec, name)
	}
}

// wireRecord mirrors Record with pointer fields so that missing keys can be told apart
// from zero values during decoding.
type wireRecord struct {
	SourceAddress      *string `json:"source_address"`
	DestinationAddress *string `json:"destination_address"`
	SourcePort         *uint16 `json:"source_port"`
	DestinationPort    *uint16 `json:"destination_port"`
	Protocol           *string `json:"protocol_label"`
	ObservedAt         *int64  `json:"observed_at"`
}

func (w wireRecord) record() (Record, error) {
	if w.SourceAddress == nil || w.DestinationAddress == nil || w.SourcePort == nil ||
		w.DestinationPort == nil || w.Protocol == nil || w.ObservedAt == nil {
		return Record{}, fmt.Errorf("%w: missing field", core.ErrInvalidRecord)
	}

	r := Record{
		SourceAddress:      *w.SourceAddress,
		DestinationAddress: *w.DestinationAddress,
		SourcePort:         *w.SourcePort,
		DestinationPort:    *w.DestinationPort,
		Protocol:           *w.Protocol,
		ObservedAt:         *w.ObservedAt,
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

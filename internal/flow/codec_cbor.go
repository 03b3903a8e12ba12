package flow

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"firestige.xyz/vesper/internal/core"
)

// CBORCodec emits a CBOR map keyed like the JSON form, with deterministic key order.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec builds the encoder and strict decoder modes.
func NewCBORCodec() (*CBORCodec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encode mode: %w", err)
	}
	dec, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decode mode: %w", err)
	}
	return &CBORCodec{enc: enc, dec: dec}, nil
}

func (c *CBORCodec) Name() string        { return CodecCBOR }
func (c *CBORCodec) ContentType() string { return "application/cbor" }

func (c *CBORCodec) Encode(r Record) ([]byte, error) {
	return c.enc.Marshal(r)
}

func (c *CBORCodec) Decode(data []byte) (Record, error) {
	var w wireRecord
	if err := c.dec.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", core.ErrInvalidRecord, err)
	}
	return w.record()
}

package flow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"firestige.xyz/vesper/internal/core"
)

// JSONCodec emits a flat JSON object with the six record fields.
type JSONCodec struct{}

func (JSONCodec) Name() string        { return CodecJSON }
func (JSONCodec) ContentType() string { return "application/json" }

func (JSONCodec) Encode(r Record) ([]byte, error) {
	return json.Marshal(r)
}

func (JSONCodec) Decode(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireRecord
	if err := dec.Decode(&w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", core.ErrInvalidRecord, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Record{}, fmt.Errorf("%w: trailing data", core.ErrInvalidRecord)
	}
	return w.record()
}

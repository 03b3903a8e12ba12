package flow

import (
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"firestige.xyz/vesper/internal/core"
)

// ProtobufCodec emits a google.protobuf.Struct with the JSON field names, so consumers
// need no generated schema. observed_at travels as a decimal string, the proto3 JSON
// form of int64, since a Struct number is a float64.
type ProtobufCodec struct{}

func (ProtobufCodec) Name() string        { return CodecProtobuf }
func (ProtobufCodec) ContentType() string { return "application/x-protobuf" }

func (ProtobufCodec) Encode(r Record) ([]byte, error) {
	st := &structpb.Struct{Fields: map[string]*structpb.Value{
		"source_address":      structpb.NewStringValue(r.SourceAddress),
		"destination_address": structpb.NewStringValue(r.DestinationAddress),
		"source_port":         structpb.NewNumberValue(float64(r.SourcePort)),
		"destination_port":    structpb.NewNumberValue(float64(r.DestinationPort)),
		"protocol_label":      structpb.NewStringValue(r.Protocol),
		"observed_at":         structpb.NewStringValue(strconv.FormatInt(r.ObservedAt, 10)),
	}}
	return proto.MarshalOptions{Deterministic: true}.Marshal(st)
}

func (ProtobufCodec) Decode(data []byte) (Record, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return Record{}, fmt.Errorf("%w: %v", core.ErrInvalidRecord, err)
	}

	var w wireRecord
	for name, v := range st.GetFields() {
		var err error
		switch name {
		case "source_address":
			w.SourceAddress, err = stringField(name, v)
		case "destination_address":
			w.DestinationAddress, err = stringField(name, v)
		case "source_port":
			w.SourcePort, err = portField(name, v)
		case "destination_port":
			w.DestinationPort, err = portField(name, v)
		case "protocol_label":
			w.Protocol, err = stringField(name, v)
		case "observed_at":
			w.ObservedAt, err = timestampField(name, v)
		default:
			err = fmt.Errorf("%w: unknown field %q", core.ErrInvalidRecord, name)
		}
		if err != nil {
			return Record{}, err
		}
	}
	return w.record()
}

func stringField(name string, v *structpb.Value) (*string, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a string", core.ErrInvalidRecord, name)
	}
	return &s.StringValue, nil
}

func integralField(name string, v *structpb.Value, lo, hi float64) (float64, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a number", core.ErrInvalidRecord, name)
	}
	f := n.NumberValue
	if f != math.Trunc(f) || f < lo || f > hi {
		return 0, fmt.Errorf("%w: %s out of range: %v", core.ErrInvalidRecord, name, f)
	}
	return f, nil
}

func portField(name string, v *structpb.Value) (*uint16, error) {
	f, err := integralField(name, v, 0, math.MaxUint16)
	if err != nil {
		return nil, err
	}
	port := uint16(f)
	return &port, nil
}

// Only the canonical decimal form is accepted.
func timestampField(name string, v *structpb.Value) (*int64, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a decimal string", core.ErrInvalidRecord, name)
	}
	ts, err := strconv.ParseInt(s.StringValue, 10, 64)
	if err != nil || strconv.FormatInt(ts, 10) != s.StringValue {
		return nil, fmt.Errorf("%w: %s is not a canonical int64: %q", core.ErrInvalidRecord, name, s.StringValue)
	}
	return &ts, nil
}

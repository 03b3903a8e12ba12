// Package core defines core data structures with zero external dependencies.
package core

import "time"

// FramingType identifies the link-layer encapsulation declared by the capture source.
type FramingType uint8

const (
	FramingOther    FramingType = iota // Unknown link type, decoded as Ethernet
	FramingEthernet                    // DLT_EN10MB
	FramingLinuxSLL                    // DLT_LINUX_SLL, 16-byte cooked header
	FramingNull                        // DLT_NULL, 4-byte loopback header
)

// String returns the lowercase name used in logs and metric labels.
func (f FramingType) String() string {
	switch f {
	case FramingEthernet:
		return "ethernet"
	case FramingLinuxSLL:
		return "linux_sll"
	case FramingNull:
		return "null"
	default:
		return "other"
	}
}

// Transport protocol numbers.
const (
	ProtocolICMP   uint8 = 1
	ProtocolTCP    uint8 = 6
	ProtocolUDP    uint8 = 17
	ProtocolICMPv6 uint8 = 58
)

// RawFrame is one captured frame. Data is borrowed from the capture source and is never
// mutated by any pipeline stage.
type RawFrame struct {
	Framing    FramingType
	Data       []byte    // Raw frame including its link-layer header
	Timestamp  time.Time // Capture timestamp (kernel timestamp preferred)
	CaptureLen uint32    // Actual captured length
	OrigLen    uint32    // Original frame length
}

// DecodedHeaders is the result of best-effort L3/L4 decoding of one frame.
// Network and Transport are independent: either one may be absent.
type DecodedHeaders struct {
	Network   NetworkHeader
	Transport TransportHeader

	// Failure records the first layer that could not be decoded, nil when every
	// present layer decoded cleanly. It never stops record construction.
	Failure error
}

package decoder

import (
	"encoding/binary"

	"firestige.xyz/vesper/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20
)

// decodeTransport decodes transport layer header (TCP/UDP).
// Other protocols (ICMP, SCTP, ...) yield an absent header and no error.
func decodeTransport(data []byte, protocol uint8) (core.TransportHeader, error) {
	switch protocol {
	case core.ProtocolTCP:
		return decodeTCP(data)
	case core.ProtocolUDP:
		return decodeUDP(data)
	default:
		return core.TransportHeader{}, nil
	}
}

// decodeUDP decodes UDP header.
func decodeUDP(data []byte) (core.TransportHeader, error) {
	if len(data) < udpHeaderLen {
		return core.TransportHeader{}, core.ErrPacketTooShort
	}

	return core.TransportHeader{
		Protocol: core.ProtocolUDP,
		SrcPort:  binary.BigEndian.Uint16(data[0:2]),
		DstPort:  binary.BigEndian.Uint16(data[2:4]),
	}, nil
}

// decodeTCP decodes TCP header. The whole header including options must be captured.
func decodeTCP(data []byte) (core.TransportHeader, error) {
	if len(data) < tcpHeaderMinLen {
		return core.TransportHeader{}, core.ErrPacketTooShort
	}

	// Data offset is the upper 4 bits of byte 12, in 32-bit words
	headerLen := int(data[12]>>4) * 4
	if headerLen < tcpHeaderMinLen {
		return core.TransportHeader{}, core.ErrTruncatedHeader
	}
	if len(data) < headerLen {
		return core.TransportHeader{}, core.ErrPacketTooShort
	}

	return core.TransportHeader{
		Protocol: core.ProtocolTCP,
		SrcPort:  binary.BigEndian.Uint16(data[0:2]),
		DstPort:  binary.BigEndian.Uint16(data[2:4]),
	}, nil
}

package decoder

import (
	"encoding/binary"
	"net/netip"

	"firestige.xyz/vesper/internal/core"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40

	// IPv6 extension header chain is bounded to keep malformed chains cheap.
	maxIPv6ExtHeaders = 8

	ipv6HopByHop    = 0
	ipv6Routing     = 43
	ipv6Fragment    = 44
	ipv6AuthHeader  = 51
	ipv6DestOptions = 60
)

// decodeIP decodes an IPv4 or IPv6 header. want is the version announced by the link layer,
// 0 when the link layer carries no EtherType (SLL, Null).
//
// The returned header is valid whenever addresses could be read. A non-nil error next to a
// valid header means the upper-layer payload could not be located.
func decodeIP(data []byte, want uint8) (core.NetworkHeader, []byte, error) {
	if len(data) < 1 {
		return core.NetworkHeader{}, nil, core.ErrPacketTooShort
	}

	// Check IP version (first 4 bits)
	version := data[0] >> 4
	if want != 0 && version != want {
		return core.NetworkHeader{}, nil, core.ErrUnsupportedProto
	}

	switch version {
	case 4:
		return decodeIPv4(data)
	case 6:
		return decodeIPv6(data)
	default:
		return core.NetworkHeader{}, nil, core.ErrUnsupportedProto
	}
}

// decodeIPv4 decodes IPv4 header. The payload is trimmed to the total length so that
// Ethernet padding never reaches the transport decoder.
func decodeIPv4(data []byte) (core.NetworkHeader, []byte, error) {
	if len(data) < ipv4HeaderMinLen {
		return core.NetworkHeader{}, nil, core.ErrPacketTooShort
	}

	// IHL is in 32-bit words
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen {
		return core.NetworkHeader{}, nil, core.ErrTruncatedHeader
	}
	if len(data) < headerLen {
		return core.NetworkHeader{}, nil, core.ErrPacketTooShort
	}

	totalLen := int(binary.BigEndian.Uint16(data[2:4]))
	if totalLen < headerLen {
		return core.NetworkHeader{}, nil, core.ErrTruncatedHeader
	}

	ip := core.NetworkHeader{
		Version:  4,
		Protocol: data[9],
		SrcIP:    netip.AddrFrom4([4]byte(data[12:16])),
		DstIP:    netip.AddrFrom4([4]byte(data[16:20])),
	}

	// Fragment offset is the lower 13 bits of bytes 6-7
	if binary.BigEndian.Uint16(data[6:8])&0x1FFF != 0 {
		ip.Fragment = true
		return ip, nil, nil
	}

	end := len(data)
	if totalLen < end {
		end = totalLen
	}
	return ip, data[headerLen:end], nil
}

// decodeIPv6 decodes the fixed IPv6 header and walks its extension header chain.
func decodeIPv6(data []byte) (core.NetworkHeader, []byte, error) {
	if len(data) < ipv6HeaderLen {
		return core.NetworkHeader{}, nil, core.ErrPacketTooShort
	}

	ip := core.NetworkHeader{
		Version: 6,
		SrcIP:   netip.AddrFrom16([16]byte(data[8:24])),
		DstIP:   netip.AddrFrom16([16]byte(data[24:40])),
	}

	payload := data[ipv6HeaderLen:]
	if payloadLen := int(binary.BigEndian.Uint16(data[4:6])); payloadLen > 0 && payloadLen < len(payload) {
		payload = payload[:payloadLen]
	}

	next, payload, fragment, err := skipIPv6Extensions(data[6], payload)
	ip.Protocol = next
	ip.Fragment = fragment
	if err != nil || fragment {
		return ip, nil, err
	}
	return ip, payload, nil
}

// skipIPv6Extensions follows the Next Header chain until an upper-layer protocol is reached.
// It stops early at a non-initial fragment, which carries no upper-layer header.
func skipIPv6Extensions(next uint8, data []byte) (uint8, []byte, bool, error) {
	for i := 0; i < maxIPv6ExtHeaders; i++ {
		var headerLen int
		switch next {
		case ipv6HopByHop, ipv6Routing, ipv6DestOptions:
			if len(data) < 8 {
				return next, nil, false, core.ErrTruncatedHeader
			}
			headerLen = (int(data[1]) + 1) * 8
		case ipv6Fragment:
			if len(data) < 8 {
				return next, nil, false, core.ErrTruncatedHeader
			}
			if binary.BigEndian.Uint16(data[2:4])>>3 != 0 {
				return data[0], nil, true, nil
			}
			headerLen = 8
		case ipv6AuthHeader:
			if len(data) < 8 {
				return next, nil, false, core.ErrTruncatedHeader
			}
			headerLen = (int(data[1]) + 2) * 4
		default:
			return next, data, false, nil
		}

		if len(data) < headerLen {
			return next, nil, false, core.ErrTruncatedHeader
		}
		next = data[0]
		data = data[headerLen:]
	}
	return next, nil, false, core.ErrUnsupportedProto
}

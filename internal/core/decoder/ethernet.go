// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/vesper/internal/core"
)

const (
	ethernetHeaderLen = 14 // two MACs + EtherType
	vlanTagLen        = 4  // TCI + inner EtherType

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
	etherTypeVLAN = 0x8100 // 802.1Q
	etherTypeQinQ = 0x88A8 // 802.1ad
)

// ethernetHeader is the part of the L2 header the decoder needs.
type ethernetHeader struct {
	EtherType uint16 // innermost, after any VLAN tags
	Tags      int    // VLAN tags skipped
}

// decodeEthernet skips up to maxTags stacked VLAN tags and returns the header
// with the L3 payload.
func decodeEthernet(data []byte, maxTags int) (ethernetHeader, []byte, error) {
	if len(data) < ethernetHeaderLen {
		return ethernetHeader{}, nil, core.ErrPacketTooShort
	}

	var eth ethernetHeader
	etherType := binary.BigEndian.Uint16(data[12:ethernetHeaderLen])
	rest := data[ethernetHeaderLen:]

	for etherType == etherTypeVLAN || etherType == etherTypeQinQ {
		if eth.Tags == maxTags {
			return eth, nil, core.ErrUnsupportedProto
		}
		if len(rest) < vlanTagLen {
			return eth, nil, core.ErrPacketTooShort
		}
		eth.Tags++
		etherType = binary.BigEndian.Uint16(rest[2:vlanTagLen])
		rest = rest[vlanTagLen:]
	}

	eth.EtherType = etherType
	return eth, rest, nil
}

// Package core defines core types with zero external dependencies.
package core

import "net/netip"

// NetworkHeader represents the decoded L3 header (IPv4/IPv6).
type NetworkHeader struct {
	Version  uint8      // 4 or 6; 0 when no network header was decoded
	SrcIP    netip.Addr // Go stdlib value type, zero allocation
	DstIP    netip.Addr
	Protocol uint8 // Upper-layer protocol after IPv6 extension headers: TCP=6, UDP=17
	Fragment bool  // Non-initial fragment, no transport header follows
}

// Valid reports whether a network header was decoded.
func (h NetworkHeader) Valid() bool {
	return (h.Version == 4 || h.Version == 6) && h.SrcIP.IsValid() && h.DstIP.IsValid()
}

// TransportHeader represents the decoded L4 header (TCP/UDP).
type TransportHeader struct {
	Protocol uint8 // ProtocolTCP or ProtocolUDP; 0 when absent
	SrcPort  uint16
	DstPort  uint16
}

// Valid reports whether a TCP or UDP header was decoded.
func (h TransportHeader) Valid() bool {
	return h.Protocol == ProtocolTCP || h.Protocol == ProtocolUDP
}

// Package flow reduces decoded headers to flow records and serializes them.
package flow

import (
	"fmt"
	"net/netip"
	"time"

	"firestige.xyz/vesper/internal/core"
)

// UnknownAddress is reported when no network header could be decoded.
const UnknownAddress = "unknown"

// Protocol labels. A record never carries any other value.
const (
	LabelTCP   = "TCP"
	LabelUDP   = "UDP"
	LabelOther = "OTHER"
)

// Record is the per-frame summary published downstream.
type Record struct {
	SourceAddress      string `json:"source_address"`
	DestinationAddress string `json:"destination_address"`
	SourcePort         uint16 `json:"source_port"`
	DestinationPort    uint16 `json:"destination_port"`
	Protocol           string `json:"protocol_label"`
	ObservedAt         int64  `json:"observed_at"` // Unix seconds
}

// Build reduces decoded headers to a record. It is total: absent layers map to
// UnknownAddress, zero ports and LabelOther.
func Build(h core.DecodedHeaders, observedAt time.Time) Record {
	r := Record{
		SourceAddress:      UnknownAddress,
		DestinationAddress: UnknownAddress,
		Protocol:           LabelOther,
		ObservedAt:         observedAt.Unix(),
	}

	if h.Network.Valid() {
		r.SourceAddress = h.Network.SrcIP.String()
		r.DestinationAddress = h.Network.DstIP.String()
	}

	switch h.Transport.Protocol {
	case core.ProtocolTCP:
		r.Protocol = LabelTCP
	case core.ProtocolUDP:
		r.Protocol = LabelUDP
	default:
		return r
	}
	r.SourcePort = h.Transport.SrcPort
	r.DestinationPort = h.Transport.DstPort
	return r
}

// FlowKey identifies the directional 5-tuple of the record.
func (r Record) FlowKey() string {
	return fmt.Sprintf("%s:%d-%s:%d/%s",
		r.SourceAddress, r.SourcePort, r.DestinationAddress, r.DestinationPort, r.Protocol)
}

// Validate checks the invariants every built record satisfies.
func (r Record) Validate() error {
	switch r.Protocol {
	case LabelTCP, LabelUDP:
	case LabelOther:
		if r.SourcePort != 0 || r.DestinationPort != 0 {
			return fmt.Errorf("%w: ports set on %s record", core.ErrInvalidRecord, LabelOther)
		}
	default:
		return fmt.Errorf("%w: protocol label %q", core.ErrInvalidRecord, r.Protocol)
	}

	if err := validateAddress(r.SourceAddress); err != nil {
		return err
	}
	return validateAddress(r.DestinationAddress)
}

func validateAddress(s string) error {
	if s == UnknownAddress {
		return nil
	}
	if _, err := netip.ParseAddr(s); err != nil {
		return fmt.Errorf("%w: address %q", core.ErrInvalidRecord, s)
	}
	return nil
}

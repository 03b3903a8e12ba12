// Package decoder implements best-effort L2-L4 protocol stack decoding.
package decoder

import "firestige.xyz/vesper/internal/core"

const (
	linuxSLLHeaderLen = 16
	nullHeaderLen     = 4
)

// Layer names the header a View starts with.
type Layer uint8

const (
	LayerEthernet Layer = iota // Ethernet II header, stripped by the decoder
	LayerIP                    // IPv4 or IPv6 header
)

// View is a borrowed window into a frame, starting at the first header left to decode.
type View struct {
	Layer  Layer
	Offset int    // Bytes stripped from the start of the frame
	Data   []byte // data[Offset:], never a copy
}

// Classify strips fixed-length link headers and selects the decode path for a frame.
// Unknown framing types are decoded as Ethernet.
func Classify(framing core.FramingType, data []byte) (View, error) {
	switch framing {
	case core.FramingLinuxSLL:
		return stripFixed(data, linuxSLLHeaderLen)
	case core.FramingNull:
		return stripFixed(data, nullHeaderLen)
	default:
		return View{Layer: LayerEthernet, Data: data}, nil
	}
}

func stripFixed(data []byte, headerLen int) (View, error) {
	if len(data) < headerLen {
		return View{}, core.ErrPacketTooShort
	}
	return View{Layer: LayerIP, Offset: headerLen, Data: data[headerLen:]}, nil
}

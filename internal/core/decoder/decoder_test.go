package decoder

import (
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/vesper/internal/core"
)

var (
	testSrcMAC = net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	testDstMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ethernet(etherType layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: etherType}
}

func ipv4(proto layers.IPProtocol, src, dst string) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

func frame(framing core.FramingType, data []byte) core.RawFrame {
	return core.RawFrame{
		Framing:    framing,
		Data:       data,
		Timestamp:  time.Now(),
		CaptureLen: uint32(len(data)),
		OrigLen:    uint32(len(data)),
	}
}

func linuxSLL(proto layers.EthernetType, payload []byte) []byte {
	hdr := make([]byte, linuxSLLHeaderLen)
	hdr[1] = 0x04 // packet sent by us
	hdr[3] = 0x01 // ARPHRD_ETHER
	hdr[5] = 0x06 // address length
	copy(hdr[6:12], testSrcMAC)
	hdr[14], hdr[15] = byte(proto>>8), byte(proto)
	return append(hdr, payload...)
}

func TestDecodeEthernetIPv4TCP(t *testing.T) {
	ip := ipv4(layers.IPProtocolTCP, "10.0.0.1", "10.0.0.5")
	tcp := &layers.TCP{SrcPort: 443, DstPort: 51000, SYN: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	data := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp)

	h := New(Config{}).Decode(frame(core.FramingEthernet, data))

	require.NoError(t, h.Failure)
	assert.True(t, h.Network.Valid())
	assert.Equal(t, uint8(4), h.Network.Version)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), h.Network.SrcIP)
	assert.Equal(t, netip.MustParseAddr("10.0.0.5"), h.Network.DstIP)
	assert.Equal(t, core.TransportHeader{Protocol: core.ProtocolTCP, SrcPort: 443, DstPort: 51000}, h.Transport)
}

func TestDecodeLinuxSLLIPv4UDP(t *testing.T) {
	ip := ipv4(layers.IPProtocolUDP, "192.168.1.2", "192.168.1.10")
	udp := &layers.UDP{SrcPort: 53, DstPort: 40000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	payload := serialize(t, ip, udp, gopacket.Payload([]byte{0x12, 0x34}))

	h := New(Config{}).Decode(frame(core.FramingLinuxSLL, linuxSLL(layers.EthernetTypeIPv4, payload)))

	require.NoError(t, h.Failure)
	assert.Equal(t, "192.168.1.2", h.Network.SrcIP.String())
	assert.Equal(t, "192.168.1.10", h.Network.DstIP.String())
	assert.Equal(t, core.TransportHeader{Protocol: core.ProtocolUDP, SrcPort: 53, DstPort: 40000}, h.Transport)
}

func TestDecodeNullLoopback(t *testing.T) {
	ip := ipv4(layers.IPProtocolUDP, "127.0.0.1", "127.0.0.1")
	udp := &layers.UDP{SrcPort: 5000, DstPort: 5001}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	data := append([]byte{0x02, 0x00, 0x00, 0x00}, serialize(t, ip, udp)...)

	h := New(Config{}).Decode(frame(core.FramingNull, data))

	require.NoError(t, h.Failure)
	assert.Equal(t, uint16(5000), h.Transport.SrcPort)
	assert.Equal(t, uint16(5001), h.Transport.DstPort)
}

func TestDecodeTruncatedEthernet(t *testing.T) {
	h := New(Config{}).Decode(frame(core.FramingEthernet, make([]byte, 10)))

	assert.False(t, h.Network.Valid())
	assert.False(t, h.Transport.Valid())

	var stageErr *StageError
	require.True(t, errors.As(h.Failure, &stageErr))
	assert.Equal(t, StageLink, stageErr.Stage)
	assert.ErrorIs(t, h.Failure, core.ErrPacketTooShort)
}

func TestDecodeIPv6TCP(t *testing.T) {
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolTCP,
		SrcIP:      net.ParseIP("2001:db8::1"),
		DstIP:      net.ParseIP("2001:db8:0:0:1::2"),
	}
	tcp := &layers.TCP{SrcPort: 8080, DstPort: 61000, ACK: true, Window: 512}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	data := serialize(t, ethernet(layers.EthernetTypeIPv6), ip, tcp)

	h := New(Config{}).Decode(frame(core.FramingEthernet, data))

	require.NoError(t, h.Failure)
	assert.Equal(t, uint8(6), h.Network.Version)
	assert.Equal(t, "2001:db8::1", h.Network.SrcIP.String())
	assert.Equal(t, "2001:db8::1:0:0:2", h.Network.DstIP.String())
	assert.Equal(t, core.TransportHeader{Protocol: core.ProtocolTCP, SrcPort: 8080, DstPort: 61000}, h.Transport)
}

func TestDecodeIPv4ICMP(t *testing.T) {
	ip := ipv4(layers.IPProtocolICMPv4, "10.1.1.1", "10.1.1.2")
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	data := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, icmp)

	h := New(Config{}).Decode(frame(core.FramingEthernet, data))

	assert.NoError(t, h.Failure)
	assert.True(t, h.Network.Valid())
	assert.Equal(t, core.ProtocolICMP, h.Network.Protocol)
	assert.False(t, h.Transport.Valid())
}

func TestDecodeVLANTagged(t *testing.T) {
	ip := ipv4(layers.IPProtocolUDP, "172.16.0.1", "172.16.0.2")
	udp := &layers.UDP{SrcPort: 123, DstPort: 123}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	tagged := serialize(t,
		ethernet(layers.EthernetTypeDot1Q),
		&layers.Dot1Q{VLANIdentifier: 100, Type: layers.EthernetTypeIPv4},
		ip, udp)
	untagged := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, udp)

	d := New(Config{})
	assert.Equal(t, d.Decode(frame(core.FramingEthernet, untagged)), d.Decode(frame(core.FramingEthernet, tagged)))
}

func TestDecodeVLANLimit(t *testing.T) {
	ip := ipv4(layers.IPProtocolUDP, "172.16.0.1", "172.16.0.2")
	udp := &layers.UDP{SrcPort: 123, DstPort: 123}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	data := serialize(t,
		ethernet(layers.EthernetTypeQinQ),
		&layers.Dot1Q{VLANIdentifier: 20, Type: layers.EthernetTypeDot1Q},
		&layers.Dot1Q{VLANIdentifier: 10, Type: layers.EthernetTypeIPv4},
		ip, udp)

	h := New(Config{MaxVLANTags: 1}).Decode(frame(core.FramingEthernet, data))
	assert.False(t, h.Network.Valid())
	assert.ErrorIs(t, h.Failure, core.ErrUnsupportedProto)

	h = New(Config{}).Decode(frame(core.FramingEthernet, data))
	assert.NoError(t, h.Failure)
	assert.Equal(t, uint16(123), h.Transport.DstPort)
}

func TestDecodeIPv4NonInitialFragment(t *testing.T) {
	ip := ipv4(layers.IPProtocolUDP, "10.9.8.7", "10.9.8.6")
	ip.FragOffset = 185
	data := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, gopacket.Payload(make([]byte, 32)))

	h := New(Config{}).Decode(frame(core.FramingEthernet, data))

	assert.NoError(t, h.Failure)
	assert.True(t, h.Network.Fragment)
	assert.Equal(t, "10.9.8.7", h.Network.SrcIP.String())
	assert.False(t, h.Transport.Valid())
}

func TestDecodeNonIPEtherType(t *testing.T) {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   testSrcMAC,
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	data := serialize(t, ethernet(layers.EthernetTypeARP), arp)

	h := New(Config{}).Decode(frame(core.FramingEthernet, data))

	assert.False(t, h.Network.Valid())
	assert.ErrorIs(t, h.Failure, core.ErrUnsupportedProto)
}

func TestDecodeTruncatedTransport(t *testing.T) {
	ip := ipv4(layers.IPProtocolTCP, "10.0.0.1", "10.0.0.2")
	data := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, gopacket.Payload(make([]byte, 10)))

	h := New(Config{}).Decode(frame(core.FramingEthernet, data))

	assert.True(t, h.Network.Valid())
	assert.False(t, h.Transport.Valid())
	var stageErr *StageError
	require.True(t, errors.As(h.Failure, &stageErr))
	assert.Equal(t, StageTransport, stageErr.Stage)
}

func TestDecodeNeverPanics(t *testing.T) {
	d := New(Config{})
	ip := ipv4(layers.IPProtocolTCP, "10.0.0.1", "10.0.0.2")
	tcp := &layers.TCP{SrcPort: 1, DstPort: 2}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	full := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp)

	for _, framing := range []core.FramingType{core.FramingEthernet, core.FramingLinuxSLL, core.FramingNull, core.FramingOther} {
		for n := 0; n <= len(full); n++ {
			assert.NotPanics(t, func() { d.Decode(frame(framing, full[:n])) })
		}
	}
}

func BenchmarkDecode(b *testing.B) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x08, 0x00,
		0x45, 0x00, 0x00, 0x1C, 0x12, 0x34, 0x00, 0x00, 0x40, 0x11, 0x00, 0x00,
		192, 168, 1, 1, 192, 168, 1, 2,
		0x13, 0x88, 0x13, 0x89, 0x00, 0x08, 0x00, 0x00,
	}
	d := New(Config{})
	raw := core.RawFrame{Framing: core.FramingEthernet, Data: data}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = d.Decode(raw)
	}
}

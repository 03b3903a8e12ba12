package pipeline

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/vesper/internal/core"
	"firestige.xyz/vesper/internal/core/decoder"
	"firestige.xyz/vesper/internal/flow"
	"firestige.xyz/vesper/internal/log"
	"firestige.xyz/vesper/internal/sink"
	"firestige.xyz/vesper/internal/source"
)

var testNow = time.Unix(1700000000, 0)

// sliceSource replays frames then returns end, io.EOF by default.
type sliceSource struct {
	frames []core.RawFrame
	end    error
}

func (s *sliceSource) Next(ctx context.Context) (core.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return core.RawFrame{}, err
	}
	if len(s.frames) == 0 {
		if s.end != nil {
			return core.RawFrame{}, s.end
		}
		return core.RawFrame{}, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *sliceSource) Close() error { return nil }

// blockingSource blocks until ctx is done.
type blockingSource struct{}

func (blockingSource) Next(ctx context.Context) (core.RawFrame, error) {
	<-ctx.Done()
	return core.RawFrame{}, ctx.Err()
}

func (blockingSource) Close() error { return nil }

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Name() string { return "mock" }

func (m *mockSink) Publish(ctx context.Context, msg sink.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockSink) Close() error { return nil }

func (m *mockSink) published(t *testing.T) []sink.Message {
	t.Helper()
	var out []sink.Message
	for _, c := range m.Calls {
		if c.Method == "Publish" {
			out = append(out, c.Arguments.Get(1).(sink.Message))
		}
	}
	return out
}

type failingCodec struct{ flow.Codec }

func (failingCodec) Encode(flow.Record) ([]byte, error) { return nil, errors.New("encoder broken") }

func udpFrame(t *testing.T, src, dst string, sport, dport uint16) core.RawFrame {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.ParseIP(src).To4(), DstIP: net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload("x")))
	data := buf.Bytes()
	return core.RawFrame{
		Framing:    core.FramingEthernet,
		Data:       data,
		Timestamp:  testNow,
		CaptureLen: uint32(len(data)),
		OrigLen:    uint32(len(data)),
	}
}

func newTestPipeline(t *testing.T, src source.Source, s sink.Sink, codec flow.Codec) *Pipeline {
	t.Helper()
	if codec == nil {
		var err error
		codec, err = flow.NewCodec(flow.CodecJSON)
		require.NoError(t, err)
	}
	p, err := NewBuilder().
		WithSource(src).
		WithCodec(codec).
		WithRouter(flow.FixedRouter{Topic: flow.DefaultTopic, Key: flow.DefaultKey}).
		WithSink(s).
		WithPublishTimeout(50 * time.Millisecond).
		WithLogger(log.Discard()).
		WithClock(func() time.Time { return testNow }).
		Build()
	require.NoError(t, err)
	return p
}

func TestRunPublishesInCaptureOrder(t *testing.T) {
	src := &sliceSource{frames: []core.RawFrame{
		udpFrame(t, "10.0.0.1", "10.0.0.2", 1001, 53),
		udpFrame(t, "10.0.0.1", "10.0.0.2", 1002, 53),
		udpFrame(t, "10.0.0.1", "10.0.0.2", 1003, 53),
	}}
	s := &mockSink{}
	s.On("Publish", mock.Anything, mock.Anything).Return(nil)

	p := newTestPipeline(t, src, s, nil)
	require.NoError(t, p.Run(context.Background()))

	msgs := s.published(t)
	require.Len(t, msgs, 3)

	codec, _ := flow.NewCodec(flow.CodecJSON)
	for i, msg := range msgs {
		assert.Equal(t, "raw_metrics", msg.Topic)
		assert.Equal(t, []byte("flow"), msg.Key)
		assert.Equal(t, "application/json", msg.ContentType)
		assert.Equal(t, testNow, msg.Time)

		rec, err := codec.Decode(msg.Value)
		require.NoError(t, err)
		assert.Equal(t, flow.Record{
			SourceAddress:      "10.0.0.1",
			DestinationAddress: "10.0.0.2",
			SourcePort:         uint16(1001 + i),
			DestinationPort:    53,
			Protocol:           flow.LabelUDP,
			ObservedAt:         testNow.Unix(),
		}, rec)
	}

	assert.Equal(t, Stats{Frames: 3, Records: 3, Published: 3}, p.Stats())
}

func TestRunContinuesAfterPublishFailure(t *testing.T) {
	src := &sliceSource{frames: []core.RawFrame{
		udpFrame(t, "10.0.0.1", "10.0.0.2", 1001, 53),
		udpFrame(t, "10.0.0.1", "10.0.0.2", 1002, 53),
	}}
	s := &mockSink{}
	s.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker unavailable")).Once()
	s.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	p := newTestPipeline(t, src, s, nil)
	require.NoError(t, p.Run(context.Background()))

	s.AssertNumberOfCalls(t, "Publish", 2)
	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.PublishErrors)
	assert.Equal(t, uint64(1), stats.Published)
}

func TestRunPublishTimeoutIsFailure(t *testing.T) {
	src := &sliceSource{frames: []core.RawFrame{
		udpFrame(t, "10.0.0.1", "10.0.0.2", 1001, 53),
		udpFrame(t, "10.0.0.1", "10.0.0.2", 1002, 53),
	}}
	s := &mockSink{}
	s.On("Publish", mock.Anything, mock.Anything).Return(context.DeadlineExceeded).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		})

	p := newTestPipeline(t, src, s, nil)
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, uint64(2), p.Stats().PublishErrors)
}

func TestRunUndecodableFrameStillPublished(t *testing.T) {
	src := &sliceSource{frames: []core.RawFrame{
		{Framing: core.FramingLinuxSLL, Data: []byte{0x00, 0x01}},
	}}
	s := &mockSink{}
	s.On("Publish", mock.Anything, mock.Anything).Return(nil)

	p := newTestPipeline(t, src, s, nil)
	require.NoError(t, p.Run(context.Background()))

	msgs := s.published(t)
	require.Len(t, msgs, 1)
	codec, _ := flow.NewCodec(flow.CodecJSON)
	rec, err := codec.Decode(msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, flow.UnknownAddress, rec.SourceAddress)
	assert.Equal(t, flow.LabelOther, rec.Protocol)
	assert.Equal(t, uint64(1), p.Stats().DecodeFailures)
}

func TestRunEncodeFailureSkipsFrame(t *testing.T) {
	jsonCodec, _ := flow.NewCodec(flow.CodecJSON)
	src := &sliceSource{frames: []core.RawFrame{udpFrame(t, "10.0.0.1", "10.0.0.2", 1, 2)}}
	s := &mockSink{}

	p := newTestPipeline(t, src, s, failingCodec{jsonCodec})
	require.NoError(t, p.Run(context.Background()))

	s.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	assert.Equal(t, uint64(1), p.Stats().EncodeErrors)
}

func TestRunReturnsSourceError(t *testing.T) {
	boom := errors.New("interface went down")
	src := &sliceSource{
		frames: []core.RawFrame{udpFrame(t, "10.0.0.1", "10.0.0.2", 1, 2)},
		end:    boom,
	}
	s := &mockSink{}
	s.On("Publish", mock.Anything, mock.Anything).Return(nil)

	p := newTestPipeline(t, src, s, nil)
	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	s.AssertNumberOfCalls(t, "Publish", 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := &mockSink{}
	p := newTestPipeline(t, blockingSource{}, s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRequiresComponents(t *testing.T) {
	codec, _ := flow.NewCodec(flow.CodecJSON)
	router := flow.FixedRouter{Topic: flow.DefaultTopic, Key: flow.DefaultKey}
	src := &sliceSource{}
	s := &mockSink{}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no source", Config{Codec: codec, Router: router, Sink: s}},
		{"no codec", Config{Source: src, Router: router, Sink: s}},
		{"no router", Config{Source: src, Codec: codec, Sink: s}},
		{"no sink", Config{Source: src, Codec: codec, Router: router}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}

	p, err := New(Config{Source: src, Codec: codec, Router: router, Sink: s, Logger: log.Discard()})
	require.NoError(t, err)
	assert.Equal(t, DefaultPublishTimeout, p.publishTimeout)
	assert.NotNil(t, p.decoder)
}

func TestFailureStage(t *testing.T) {
	assert.Equal(t, "unknown", failureStage(errors.New("other")))
	assert.Equal(t, "transport", failureStage(&decoder.StageError{Stage: decoder.StageTransport, Err: core.ErrPacketTooShort}))
}

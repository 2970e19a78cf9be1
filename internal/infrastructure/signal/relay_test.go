package signal

import (
	"testing"

	"voxrelay/internal/core/domain"
	"voxrelay/internal/core/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T) (*AudioRelay, *Registry, *services.CallTable) {
	registry := NewRegistry(testLogger())
	calls := services.NewCallTable().(*services.CallTable)
	relay := NewAudioRelay(registry, calls, nil, testLogger())
	return relay, registry, calls
}

func TestRelay_ForwardsFrameUnmodified(t *testing.T) {
	relay, registry, calls := newTestRelay(t)

	senderConn, _ := testConnPair(t)
	receiverConn, receiverClient := testConnPair(t)
	registry.Register("1", senderConn)
	registry.Register("2", receiverConn)
	calls.Start("1", "2")

	frame, err := domain.EncodeAudioFrame(domain.FrameMeta{CallKey: "1->2", From: "1"}, []byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)

	require.NoError(t, relay.Relay(senderConn, frame))
	assert.Equal(t, frame, readBinary(t, receiverClient))
}

func TestRelay_ReceiverToInitiator(t *testing.T) {
	relay, registry, calls := newTestRelay(t)

	initiatorConn, initiatorClient := testConnPair(t)
	receiverConn, _ := testConnPair(t)
	registry.Register("1", initiatorConn)
	registry.Register("2", receiverConn)
	calls.Start("1", "2")

	// Frames flow both ways over the same directional key.
	frame, err := domain.EncodeAudioFrame(domain.FrameMeta{CallKey: "1->2", From: "2"}, []byte("reply audio"))
	require.NoError(t, err)

	require.NoError(t, relay.Relay(receiverConn, frame))
	assert.Equal(t, frame, readBinary(t, initiatorClient))
}

func TestRelay_DropsMalformedFrames(t *testing.T) {
	relay, _, _ := newTestRelay(t)
	senderConn, _ := testConnPair(t)

	err := relay.Relay(senderConn, []byte{0x00})
	assert.ErrorIs(t, err, domain.ErrFrameTooShort)

	err = relay.Relay(senderConn, []byte{0x00, 0x00, 0xff, 0xff, 'x', 'x'})
	assert.ErrorIs(t, err, domain.ErrMetaSizeOutOfRange)
}

func TestRelay_DropsFrameForUnknownCall(t *testing.T) {
	relay, registry, _ := newTestRelay(t)

	senderConn, _ := testConnPair(t)
	receiverConn, receiverClient := testConnPair(t)
	registry.Register("1", senderConn)
	registry.Register("2", receiverConn)

	frame, err := domain.EncodeAudioFrame(domain.FrameMeta{CallKey: "1->2", From: "1"}, []byte("stray"))
	require.NoError(t, err)

	err = relay.Relay(senderConn, frame)
	assert.ErrorIs(t, err, domain.ErrCallNotFound)
	expectSilence(t, receiverClient)
}

func TestRelay_DropsFrameForOfflineTarget(t *testing.T) {
	relay, registry, calls := newTestRelay(t)

	senderConn, _ := testConnPair(t)
	registry.Register("1", senderConn)
	calls.Start("1", "2")

	frame, err := domain.EncodeAudioFrame(domain.FrameMeta{CallKey: "1->2", From: "1"}, []byte("audio"))
	require.NoError(t, err)

	err = relay.Relay(senderConn, frame)
	assert.ErrorIs(t, err, domain.ErrClientNotConnected)
}

func TestRelay_FrameAfterCallEnded(t *testing.T) {
	relay, registry, calls := newTestRelay(t)

	senderConn, _ := testConnPair(t)
	receiverConn, receiverClient := testConnPair(t)
	registry.Register("1", senderConn)
	registry.Register("2", receiverConn)

	key := calls.Start("1", "2")
	calls.End(key)

	frame, err := domain.EncodeAudioFrame(domain.FrameMeta{CallKey: key, From: "1"}, []byte("late"))
	require.NoError(t, err)

	err = relay.Relay(senderConn, frame)
	assert.ErrorIs(t, err, domain.ErrCallNotFound)
	expectSilence(t, receiverClient)
}

package domain

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFrame(t *testing.T, metaJSON string, payload []byte) []byte {
	t.Helper()
	frame := make([]byte, FrameHeaderSize+len(metaJSON)+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(metaJSON)))
	copy(frame[FrameHeaderSize:], metaJSON)
	copy(frame[FrameHeaderSize+len(metaJSON):], payload)
	return frame
}

func TestDecodeAudioFrame_RoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0xff}
	frame, err := EncodeAudioFrame(FrameMeta{CallKey: "12->7", From: "12"}, payload)
	require.NoError(t, err)

	meta, got, err := DecodeAudioFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, CallKey("12->7"), meta.CallKey)
	assert.Equal(t, ClientID("12"), meta.From)
	assert.Equal(t, payload, got)
}

func TestDecodeAudioFrame_EmptyPayload(t *testing.T) {
	// A frame with zero audio bytes is still structurally valid.
	frame, err := EncodeAudioFrame(FrameMeta{CallKey: "a->b", From: "a"}, nil)
	require.NoError(t, err)

	meta, payload, err := DecodeAudioFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, CallKey("a->b"), meta.CallKey)
	assert.Empty(t, payload)
}

func TestDecodeAudioFrame_TooShort(t *testing.T) {
	for _, frame := range [][]byte{nil, {}, {0x00}, {0x00, 0x00, 0x01}} {
		_, _, err := DecodeAudioFrame(frame)
		assert.ErrorIs(t, err, ErrFrameTooShort)
	}
}

func TestDecodeAudioFrame_MetaSizeBounds(t *testing.T) {
	// Below minimum
	under := make([]byte, FrameHeaderSize+1)
	binary.BigEndian.PutUint32(under, 1)
	_, _, err := DecodeAudioFrame(under)
	assert.ErrorIs(t, err, ErrMetaSizeOutOfRange)

	// Above maximum
	over := make([]byte, FrameHeaderSize)
	binary.BigEndian.PutUint32(over, MaxMetaSize+1)
	_, _, err = DecodeAudioFrame(over)
	assert.ErrorIs(t, err, ErrMetaSizeOutOfRange)

	// Exactly at the bounds passes the size check (and then fails JSON
	// parsing, which is a different error).
	atMin := buildFrame(t, "{}", nil)
	_, _, err = DecodeAudioFrame(atMin)
	assert.NotErrorIs(t, err, ErrMetaSizeOutOfRange)
}

func TestDecodeAudioFrame_Truncated(t *testing.T) {
	frame := make([]byte, FrameHeaderSize+5)
	binary.BigEndian.PutUint32(frame, 100)
	_, _, err := DecodeAudioFrame(frame)
	assert.ErrorIs(t, err, ErrFrameTruncated)
}

func TestDecodeAudioFrame_BadJSON(t *testing.T) {
	frame := buildFrame(t, `not json at all`, []byte("audio"))
	_, _, err := DecodeAudioFrame(frame)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMetaFieldsMissing)
}

func TestDecodeAudioFrame_MissingFields(t *testing.T) {
	cases := []string{
		`{}`,
		`{"callKey":"12->7"}`,
		`{"from":"12"}`,
		`{"callKey":"","from":"12"}`,
	}
	for _, metaJSON := range cases {
		_, _, err := DecodeAudioFrame(buildFrame(t, metaJSON, []byte("x")))
		assert.ErrorIs(t, err, ErrMetaFieldsMissing, "meta %s", metaJSON)
	}
}

func TestDecodeAudioFrame_NumericFrom(t *testing.T) {
	// Browser clients send the sender id as a JSON number.
	meta, _, err := DecodeAudioFrame(buildFrame(t, `{"callKey":"12->7","from":12}`, []byte("x")))
	require.NoError(t, err)
	assert.Equal(t, ClientID("12"), meta.From)
}

func TestLooksLikeControl(t *testing.T) {
	assert.True(t, LooksLikeControl([]byte(`{"type":"register"}`)))
	assert.True(t, LooksLikeControl([]byte(`[1,2]`)))
	assert.False(t, LooksLikeControl([]byte{0x00, 0x00, 0x00, 0x10}))
	assert.False(t, LooksLikeControl(nil))
}

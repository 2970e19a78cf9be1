package domain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Audio frames are self-describing: a 4-byte big-endian metadata length,
// the metadata JSON, then the raw audio payload. The relay forwards the
// whole frame untouched so both ends parse the same bytes.
const (
	FrameHeaderSize = 4
	MinMetaSize     = 2
	MaxMetaSize     = 10240
)

// FrameMeta is the JSON header of an audio frame.
type FrameMeta struct {
	CallKey CallKey  `json:"callKey"`
	From    ClientID `json:"from"`
}

// DecodeAudioFrame validates the framing and returns the parsed metadata
// and the audio payload. The input slice is not copied.
func DecodeAudioFrame(frame []byte) (FrameMeta, []byte, error) {
	var meta FrameMeta

	if len(frame) < FrameHeaderSize {
		return meta, nil, ErrFrameTooShort
	}

	metaLen := int(binary.BigEndian.Uint32(frame))
	if metaLen < MinMetaSize || metaLen > MaxMetaSize {
		return meta, nil, fmt.Errorf("%w: %d bytes", ErrMetaSizeOutOfRange, metaLen)
	}
	if len(frame) < FrameHeaderSize+metaLen {
		return meta, nil, fmt.Errorf("%w: header claims %d metadata bytes, frame has %d",
			ErrFrameTruncated, metaLen, len(frame)-FrameHeaderSize)
	}

	if err := json.Unmarshal(frame[FrameHeaderSize:FrameHeaderSize+metaLen], &meta); err != nil {
		return meta, nil, fmt.Errorf("invalid frame metadata: %w", err)
	}
	if meta.CallKey == "" || meta.From.IsZero() {
		return meta, nil, ErrMetaFieldsMissing
	}

	return meta, frame[FrameHeaderSize+metaLen:], nil
}

// EncodeAudioFrame builds a frame from metadata and payload. Used by test
// clients; the relay itself never re-encodes.
func EncodeAudioFrame(meta FrameMeta, payload []byte) ([]byte, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, FrameHeaderSize+len(metaJSON)+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(metaJSON)))
	copy(frame[FrameHeaderSize:], metaJSON)
	copy(frame[FrameHeaderSize+len(metaJSON):], payload)
	return frame, nil
}

// LooksLikeControl sniffs a binary frame for an embedded JSON control
// message. Some proxies deliver text frames with the binary opcode.
func LooksLikeControl(frame []byte) bool {
	return len(frame) > 0 && (frame[0] == '{' || frame[0] == '[')
}

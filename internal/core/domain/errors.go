package domain

import "errors"

var (
	ErrClientNotConnected = errors.New("client not connected")
	ErrCallNotFound       = errors.New("call not found")
	ErrBadCallKey         = errors.New("malformed call key")
	ErrFrameTooShort      = errors.New("frame shorter than header")
	ErrMetaSizeOutOfRange = errors.New("metadata size out of range")
	ErrFrameTruncated     = errors.New("frame truncated")
	ErrMetaFieldsMissing  = errors.New("frame metadata missing callKey or from")
	ErrBackendUnavailable = errors.New("no backend session for client")
)

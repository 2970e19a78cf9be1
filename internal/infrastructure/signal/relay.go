package signal

import (
	"errors"
	"fmt"

	"voxrelay/internal/core/domain"
	"voxrelay/internal/core/ports"
	"voxrelay/internal/infrastructure/monitoring"

	"go.uber.org/zap"
)

// AudioRelay validates binary audio frames and forwards them to the other
// participant of the call named in the frame metadata. The original frame
// is forwarded byte-for-byte: the receiver parses the same header format,
// so re-framing would only invite encoding mismatches.
type AudioRelay struct {
	registry *Registry
	calls    ports.CallTable
	metrics  *monitoring.Collector
	logger   *zap.SugaredLogger
}

func NewAudioRelay(registry *Registry, calls ports.CallTable, metrics *monitoring.Collector, logger *zap.SugaredLogger) *AudioRelay {
	return &AudioRelay{
		registry: registry,
		calls:    calls,
		metrics:  metrics,
		logger:   logger,
	}
}

// Relay forwards frame on behalf of sender. A nil return means the frame
// reached the other participant; every drop returns a descriptive error
// that the caller logs and swallows, so one garbled frame can never take
// down the connection loop.
func (r *AudioRelay) Relay(sender *Conn, frame []byte) error {
	meta, _, err := domain.DecodeAudioFrame(frame)
	if err != nil {
		r.metrics.RecordFrameDropped(dropReason(err))
		return err
	}

	// A frame for a call that already ended (or never existed) is stray
	// audio and must not be forwarded.
	if _, exists := r.calls.Get(meta.CallKey); !exists {
		r.metrics.RecordFrameDropped(monitoring.DropUnknownCall)
		return fmt.Errorf("%w: %s", domain.ErrCallNotFound, meta.CallKey)
	}

	target, err := meta.CallKey.Other(meta.From)
	if err != nil {
		r.metrics.RecordFrameDropped(monitoring.DropBadCallKey)
		return err
	}

	if err := r.registry.SendBinary(target, frame); err != nil {
		if errors.Is(err, domain.ErrClientNotConnected) {
			r.metrics.RecordFrameDropped(monitoring.DropTargetOffline)
			return fmt.Errorf("target %s: %w", target, err)
		}
		r.metrics.RecordFrameDropped(monitoring.DropSendFailed)
		return fmt.Errorf("forward to %s: %w", target, err)
	}

	r.metrics.RecordFrameRelayed(len(frame))
	r.logger.Debugw("relayed audio frame",
		"call_key", meta.CallKey,
		"from", meta.From,
		"to", target,
		"bytes", len(frame),
	)
	return nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrFrameTooShort):
		return monitoring.DropFrameTooShort
	case errors.Is(err, domain.ErrMetaSizeOutOfRange):
		return monitoring.DropMetaSize
	case errors.Is(err, domain.ErrFrameTruncated):
		return monitoring.DropTruncated
	case errors.Is(err, domain.ErrMetaFieldsMissing):
		return monitoring.DropMissingFields
	default:
		return monitoring.DropBadMetadata
	}
}

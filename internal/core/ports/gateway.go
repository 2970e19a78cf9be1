package ports

import (
	"context"

	"voxrelay/internal/core/domain"
)

// ClientConn is one live bidirectional transport session as seen by the
// connection registry. Sends are fire-and-forget at the signaling layer:
// callers log failures and move on.
type ClientConn interface {
	// SessionID identifies this connection instance, independent of the
	// client identity bound to it. Used to detect stale registrations.
	SessionID() string

	// SendJSON writes a control message as a text frame.
	SendJSON(v interface{}) error

	// SendBinary writes a raw frame unmodified.
	SendBinary(frame []byte) error

	// Close terminates the transport. Safe to call more than once.
	Close() error
}

// PresenceBus mirrors registry and call-table transitions to other gateway
// instances. Implementations must be safe for concurrent use; a nil bus is
// replaced by a no-op.
type PresenceBus interface {
	PublishRegistered(ctx context.Context, id domain.ClientID) error
	PublishUnregistered(ctx context.Context, id domain.ClientID) error
	PublishCallStarted(ctx context.Context, key domain.CallKey) error
	PublishCallEnded(ctx context.Context, key domain.CallKey) error
	Close() error
}

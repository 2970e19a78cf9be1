package ports

import (
	"context"
	"time"

	"voxrelay/internal/core/domain"
)

// BackendMessage is one line received from the chat backend, queued until
// the owning client polls for it.
type BackendMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// BackendSession is one live command session against the chat backend.
type BackendSession interface {
	ClientID() domain.ClientID
	Connected() bool

	SendPrivateMessage(ctx context.Context, target domain.ClientID, text string) error
	SendGroupMessage(ctx context.Context, group, text string) error
	CreateGroup(ctx context.Context, name string) error
	JoinGroup(ctx context.Context, name string) error
	ListGroups(ctx context.Context) ([]string, error)
	SendVoiceNoteToUser(ctx context.Context, target domain.ClientID, filename string, data []byte) error
	SendVoiceNoteToGroup(ctx context.Context, group, filename string, data []byte) error

	// DrainMessages returns queued backend lines and clears the queue.
	DrainMessages() []BackendMessage

	Close() error
}

// BackendPool owns the sessions, one per connected client identity.
type BackendPool interface {
	// Connect dials the backend and returns the identity it assigned.
	Connect(ctx context.Context) (BackendSession, error)

	Session(id domain.ClientID) (BackendSession, bool)
	Disconnect(id domain.ClientID) error
	ConnectedIDs() []domain.ClientID
	Close() error
}

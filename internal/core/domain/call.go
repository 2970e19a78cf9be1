package domain

import (
	"strings"
	"time"
)

// KeySeparator joins the two participant ids into a call key.
// Identities must not contain it.
const KeySeparator = "->"

// CallKey names an in-progress call as "{initiatorId}->{receiverId}".
// The key is directional: "A->B" and "B->A" are distinct calls.
type CallKey string

func NewCallKey(caller, receiver ClientID) CallKey {
	return CallKey(string(caller) + KeySeparator + string(receiver))
}

func (k CallKey) String() string { return string(k) }

// Participants splits the key back into (initiator, receiver). This works
// even after the call record itself is gone, which is what the end/reject
// notification paths rely on.
func (k CallKey) Participants() (ClientID, ClientID, error) {
	from, to, ok := strings.Cut(string(k), KeySeparator)
	if !ok || from == "" || to == "" {
		return "", "", ErrBadCallKey
	}
	return ClientID(from), ClientID(to), nil
}

// Involves reports whether id is one of the two participants.
func (k CallKey) Involves(id ClientID) bool {
	from, to, err := k.Participants()
	if err != nil {
		return false
	}
	return from == id || to == id
}

// Other resolves the forwarding target for a frame sent by from: the
// initiator if from is the receiver, the receiver otherwise.
func (k CallKey) Other(from ClientID) (ClientID, error) {
	initiator, receiver, err := k.Participants()
	if err != nil {
		return "", err
	}
	if from == initiator {
		return receiver, nil
	}
	return initiator, nil
}

// CallState is the lifecycle of a call record. The wire protocol never
// distinguishes accepted from started; the state exists for clarity and
// for tests.
type CallState string

const (
	CallStarted  CallState = "started"
	CallAccepted CallState = "accepted"
)

// CallRecord is one in-progress call. Records are created on call-start,
// kept through accept, and removed on end, reject or disconnect of either
// participant.
type CallRecord struct {
	Key       CallKey
	Initiator ClientID
	Receiver  ClientID
	State     CallState
	StartedAt time.Time
}

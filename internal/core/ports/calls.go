package ports

import "voxrelay/internal/core/domain"

// CallTable tracks in-progress calls keyed by directional call keys.
// All mutations are atomic with respect to each other; absence of a key is
// never an error, matching the graceful-degradation contract of the
// signaling protocol.
type CallTable interface {
	// Start records a call and returns its key. A duplicate start with the
	// same pair overwrites the prior record.
	Start(caller, receiver domain.ClientID) domain.CallKey

	// Accept marks an existing record accepted. Returns false if the key
	// is unknown, in which case the caller ignores the event.
	Accept(key domain.CallKey) bool

	// Reject removes the record if present.
	Reject(key domain.CallKey) bool

	// End removes the record if present.
	End(key domain.CallKey) bool

	// Get returns a copy of the record for key.
	Get(key domain.CallKey) (domain.CallRecord, bool)

	// ActiveCallsInvolving returns the keys of every call the identity
	// participates in, as initiator or receiver.
	ActiveCallsInvolving(id domain.ClientID) []domain.CallKey

	// Len reports the number of in-progress calls.
	Len() int
}

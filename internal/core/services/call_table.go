package services

import (
	"sync"
	"time"

	"voxrelay/internal/core/domain"
	"voxrelay/internal/core/ports"
)

// CallTable is the in-memory table of in-progress calls. It is the only
// shared mutable call state in the gateway; every mutation happens under
// the mutex so concurrent start/end races on the same key cannot lose
// updates.
type CallTable struct {
	calls map[domain.CallKey]*domain.CallRecord
	mu    sync.RWMutex
}

func NewCallTable() ports.CallTable {
	return &CallTable{
		calls: make(map[domain.CallKey]*domain.CallRecord),
	}
}

func (t *CallTable) Start(caller, receiver domain.ClientID) domain.CallKey {
	key := domain.NewCallKey(caller, receiver)

	t.mu.Lock()
	defer t.mu.Unlock()

	// A duplicate call-start overwrites the prior record.
	t.calls[key] = &domain.CallRecord{
		Key:       key,
		Initiator: caller,
		Receiver:  receiver,
		State:     domain.CallStarted,
		StartedAt: time.Now(),
	}
	return key
}

func (t *CallTable) Accept(key domain.CallKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.calls[key]
	if !exists {
		return false
	}
	rec.State = domain.CallAccepted
	return true
}

func (t *CallTable) Reject(key domain.CallKey) bool {
	return t.remove(key)
}

func (t *CallTable) End(key domain.CallKey) bool {
	return t.remove(key)
}

func (t *CallTable) remove(key domain.CallKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.calls[key]; !exists {
		return false
	}
	delete(t.calls, key)
	return true
}

func (t *CallTable) Get(key domain.CallKey) (domain.CallRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, exists := t.calls[key]
	if !exists {
		return domain.CallRecord{}, false
	}
	return *rec, true
}

func (t *CallTable) ActiveCallsInvolving(id domain.ClientID) []domain.CallKey {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var keys []domain.CallKey
	for key, rec := range t.calls {
		if rec.Initiator == id || rec.Receiver == id {
			keys = append(keys, key)
		}
	}
	return keys
}

func (t *CallTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.calls)
}

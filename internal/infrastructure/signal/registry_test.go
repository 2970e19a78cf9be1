package signal

import (
	"testing"
	"time"

	"voxrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry(testLogger())
	conn, _ := testConnPair(t)

	evicted := registry.Register("7", conn)
	assert.False(t, evicted)
	assert.Equal(t, domain.ClientID("7"), conn.Identity())

	got, exists := registry.Lookup("7")
	require.True(t, exists)
	assert.Same(t, conn, got)
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_ReRegisterSameConnIdempotent(t *testing.T) {
	registry := NewRegistry(testLogger())
	conn, client := testConnPair(t)

	registry.Register("7", conn)
	evicted := registry.Register("7", conn)
	assert.False(t, evicted)

	// The connection must still be usable.
	require.NoError(t, registry.Send("7", map[string]string{"type": "ping"}))
	msg := readJSON(t, client)
	assert.Equal(t, "ping", msg["type"])
}

func TestRegistry_EvictsStaleConnection(t *testing.T) {
	registry := NewRegistry(testLogger())
	oldConn, oldClient := testConnPair(t)
	newConn, newClient := testConnPair(t)

	registry.Register("7", oldConn)
	evicted := registry.Register("7", newConn)
	assert.True(t, evicted)

	// The old transport is closed; its client read fails.
	oldClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := oldClient.ReadMessage()
	assert.Error(t, err)

	// Sends for the identity reach the new connection only.
	require.NoError(t, registry.Send("7", map[string]string{"type": "hello"}))
	msg := readJSON(t, newClient)
	assert.Equal(t, "hello", msg["type"])
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_UnregisterOnlyRemovesOwnBinding(t *testing.T) {
	registry := NewRegistry(testLogger())
	oldConn, _ := testConnPair(t)
	newConn, _ := testConnPair(t)

	registry.Register("7", oldConn)
	registry.Register("7", newConn)

	// The evicted connection's close handler races the new registration;
	// its unregister must not remove the new binding.
	assert.False(t, registry.Unregister("7", oldConn))
	_, exists := registry.Lookup("7")
	assert.True(t, exists)

	assert.True(t, registry.Unregister("7", newConn))
	_, exists = registry.Lookup("7")
	assert.False(t, exists)
}

func TestRegistry_SendToUnknownIdentity(t *testing.T) {
	registry := NewRegistry(testLogger())

	err := registry.Send("ghost", map[string]string{"type": "x"})
	assert.ErrorIs(t, err, domain.ErrClientNotConnected)

	err = registry.SendBinary("ghost", []byte{1, 2, 3})
	assert.ErrorIs(t, err, domain.ErrClientNotConnected)
}

func TestRegistry_BroadcastExcludesSender(t *testing.T) {
	registry := NewRegistry(testLogger())
	connA, clientA := testConnPair(t)
	connB, clientB := testConnPair(t)
	connC, clientC := testConnPair(t)

	registry.Register("a", connA)
	registry.Register("b", connB)
	registry.Register("c", connC)

	sent := registry.Broadcast(map[string]string{"type": "announce"}, "a")
	assert.Equal(t, 2, sent)

	assert.Equal(t, "announce", readJSON(t, clientB)["type"])
	assert.Equal(t, "announce", readJSON(t, clientC)["type"])
	expectSilence(t, clientA)
}

func TestRegistry_TrackUntrack(t *testing.T) {
	registry := NewRegistry(testLogger())
	conn, _ := testConnPair(t)

	registry.Track(conn)
	assert.Len(t, registry.Connections(), 1)

	registry.Untrack(conn)
	assert.Empty(t, registry.Connections())
}

func TestRegistry_Identities(t *testing.T) {
	registry := NewRegistry(testLogger())
	connA, _ := testConnPair(t)
	connB, _ := testConnPair(t)

	registry.Register("a", connA)
	registry.Register("b", connB)

	assert.ElementsMatch(t, []domain.ClientID{"a", "b"}, registry.Identities())
}

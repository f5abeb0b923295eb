package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoRoomCapacity(t *testing.T) {
	rl := NewRelay(testConfig())
	a := &fakeConn{}
	b := &fakeConn{}

	require.NoError(t, rl.Join("call-1", "alice", a))
	require.NoError(t, rl.Join("call-1", "bob", b))

	joined, ok := lastOf[PeerJoinedMessage](a)
	require.True(t, ok)
	assert.Equal(t, "bob", joined.ParticipantID)

	err := rl.Join("call-1", "mallory", &fakeConn{})
	assert.ErrorIs(t, err, ErrRoomFull)

	rl.mu.Lock()
	assert.Len(t, rl.rooms["call-1"].occupants, 2)
	rl.mu.Unlock()
}

func TestVideoJoinValidation(t *testing.T) {
	rl := NewRelay(testConfig())

	assert.ErrorIs(t, rl.Join("", "alice", &fakeConn{}), ErrInvalidInput)
	assert.ErrorIs(t, rl.Join("call-1", "", &fakeConn{}), ErrInvalidInput)
}

func TestRelaySignal(t *testing.T) {
	rl := NewRelay(testConfig())
	a := &fakeConn{}
	b := &fakeConn{}

	require.NoError(t, rl.Join("call-1", "alice", a))
	require.NoError(t, rl.Join("call-1", "bob", b))

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0..."}`)
	require.NoError(t, rl.RelaySignal("call-1", "alice", offer))

	relayed, ok := lastOf[SignalRelayMessage](b)
	require.True(t, ok)
	assert.Equal(t, "alice", relayed.ParticipantID)
	assert.JSONEq(t, string(offer), string(relayed.Signal))

	assert.Zero(t, countOf[SignalRelayMessage](a), "signals are never echoed to the sender")

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 UDP 2122252543 192.0.2.1 3478 typ host"}`)
	require.NoError(t, rl.RelaySignal("call-1", "bob", candidate))
	assert.Equal(t, 1, countOf[SignalRelayMessage](a))
}

func TestRelayRejectsMalformedSignals(t *testing.T) {
	rl := NewRelay(testConfig())
	a := &fakeConn{}
	b := &fakeConn{}

	require.NoError(t, rl.Join("call-1", "alice", a))
	require.NoError(t, rl.Join("call-1", "bob", b))

	for _, bad := range []string{`"offer"`, `42`, `{}`, `{"type":""}`, `[1,2]`} {
		err := rl.RelaySignal("call-1", "alice", json.RawMessage(bad))
		assert.ErrorIs(t, err, ErrInvalidSignal, "payload %s", bad)
	}
	assert.Zero(t, countOf[SignalRelayMessage](b))
}

func TestRelayIgnoresNonOccupants(t *testing.T) {
	rl := NewRelay(testConfig())
	a := &fakeConn{}

	require.NoError(t, rl.Join("call-1", "alice", a))

	err := rl.RelaySignal("call-1", "mallory", json.RawMessage(`{"type":"offer"}`))
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Zero(t, countOf[SignalRelayMessage](a))

	err = rl.RelaySignal("no-such-call", "alice", json.RawMessage(`{"type":"offer"}`))
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestLeaveNotifiesAndCleansUp(t *testing.T) {
	rl := NewRelay(testConfig())
	a := &fakeConn{}
	b := &fakeConn{}

	require.NoError(t, rl.Join("call-1", "alice", a))
	require.NoError(t, rl.Join("call-1", "bob", b))

	rl.Leave("call-1", "alice")

	left, ok := lastOf[PeerLeftMessage](b)
	require.True(t, ok)
	assert.Equal(t, "alice", left.ParticipantID)

	// Leaving twice is harmless.
	rl.Leave("call-1", "alice")

	rl.Leave("call-1", "bob")

	rl.mu.Lock()
	assert.Empty(t, rl.rooms, "empty video rooms are deleted")
	rl.mu.Unlock()
}

func TestDropConnection(t *testing.T) {
	rl := NewRelay(testConfig())
	a := &fakeConn{}
	b := &fakeConn{}

	require.NoError(t, rl.Join("call-1", "alice", a))
	require.NoError(t, rl.Join("call-1", "bob", b))

	rl.DropConnection("alice")

	left, ok := lastOf[PeerLeftMessage](b)
	require.True(t, ok)
	assert.Equal(t, "alice", left.ParticipantID)

	// A reconnecting peer takes the freed slot.
	require.NoError(t, rl.Join("call-1", "alice", &fakeConn{}))
}

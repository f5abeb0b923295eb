package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T) (*httptest.Server, *server) {
	t.Helper()

	cfg := testConfig()
	srv := &server{
		cfg:   cfg,
		rooms: NewRegistry(cfg, newListProvider(), defaultGames()...),
		video: NewRelay(cfg),
	}

	mux := httprouter.New()
	mux.GET("/ws", srv.serveWS())

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, srv
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil consumes frames until one carries the wanted type, skipping
// interleaved broadcasts this test doesn't care about.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame), "waiting for %q", wantType)
		got, _ := frame["type"].(string)
		if got == wantType {
			return frame
		}
		require.NotEqual(t, "error", got, "unexpected error while waiting for %q: %v", wantType, frame)
	}
}

func TestWebsocketFullGame(t *testing.T) {
	ts, _ := newWSServer(t)

	host := dialWS(t, ts)
	require.NoError(t, host.WriteJSON(map[string]any{
		"type":     msgCreateRoom,
		"hostId":   "host-1",
		"hostName": "Avery",
		"gameKind": "two-truths",
	}))

	created := readUntil(t, host, "room-created")
	code, _ := created["code"].(string)
	require.NotEmpty(t, code)
	roomView, _ := created["room"].(map[string]any)
	require.NotNil(t, roomView)
	roomID, _ := roomView["id"].(string)
	require.NotEmpty(t, roomID)
	assert.Equal(t, "waiting", roomView["state"])

	guest := dialWS(t, ts)
	require.NoError(t, guest.WriteJSON(map[string]any{
		"type":      msgJoinRoom,
		"guestId":   "guest-1",
		"guestName": "Blair",
		"code":      code,
	}))

	joined := readUntil(t, guest, "room-joined")
	joinedView, _ := joined["room"].(map[string]any)
	require.NotNil(t, joinedView)
	assert.Equal(t, "ready", joinedView["state"])

	update := readUntil(t, host, "room-update")
	updateView, _ := update["room"].(map[string]any)
	require.NotNil(t, updateView)
	assert.Equal(t, "ready", updateView["state"])
	assert.Len(t, updateView["participants"], 2)

	require.NoError(t, host.WriteJSON(map[string]any{
		"type":   msgStartRoundGame,
		"roomId": roomID,
	}))

	started := readUntil(t, host, "round-started")
	assert.Equal(t, float64(1), started["roundIndex"])
	assert.NotEmpty(t, started["prompt"])
	readUntil(t, guest, "round-started")

	require.NoError(t, host.WriteJSON(map[string]any{
		"type":          msgSubmitAnswer,
		"roomId":        roomID,
		"participantId": "host-1",
		"payload":       map[string]any{"statements": []string{"a", "b", "c"}, "lie": 1},
	}))

	ack := readUntil(t, guest, "submission-ack")
	assert.Equal(t, float64(1), ack["count"])
	assert.Equal(t, float64(2), ack["required"])

	require.NoError(t, guest.WriteJSON(map[string]any{
		"type":          msgSubmitAnswer,
		"roomId":        roomID,
		"participantId": "guest-1",
		"payload":       1,
	}))

	result := readUntil(t, guest, "round-result")
	detail, _ := result["detail"].(map[string]any)
	require.NotNil(t, detail)
	assert.Equal(t, true, detail["correct"])
	assert.Equal(t, "guest-1", detail["guesser"])

	scores, _ := result["scores"].(map[string]any)
	require.NotNil(t, scores)
	assert.Equal(t, float64(1), scores["guest-1"])

	readUntil(t, host, "round-result")

	// The short configured result delay rolls both sockets into round two.
	next := readUntil(t, host, "round-started")
	assert.Equal(t, float64(2), next["roundIndex"])
	readUntil(t, guest, "round-started")
}

func TestWebsocketJoinErrors(t *testing.T) {
	ts, _ := newWSServer(t)

	host := dialWS(t, ts)
	require.NoError(t, host.WriteJSON(map[string]any{
		"type":     msgCreateRoom,
		"hostId":   "host-1",
		"hostName": "Avery",
		"gameKind": "two-truths",
	}))
	created := readUntil(t, host, "room-created")
	code, _ := created["code"].(string)

	t.Run("unknown code", func(t *testing.T) {
		conn := dialWS(t, ts)
		require.NoError(t, conn.WriteJSON(map[string]any{
			"type":      msgJoinRoom,
			"guestId":   "guest-x",
			"guestName": "Nobody",
			"code":      "ZZZZZZ",
		}))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, "error", frame["type"])
		assert.Equal(t, ErrRoomNotFound.Kind, frame["kind"])
	})

	t.Run("room full", func(t *testing.T) {
		guest := dialWS(t, ts)
		require.NoError(t, guest.WriteJSON(map[string]any{
			"type":      msgJoinRoom,
			"guestId":   "guest-1",
			"guestName": "Blair",
			"code":      code,
		}))
		readUntil(t, guest, "room-joined")

		third := dialWS(t, ts)
		require.NoError(t, third.WriteJSON(map[string]any{
			"type":      msgJoinRoom,
			"guestId":   "guest-2",
			"guestName": "Casey",
			"code":      code,
		}))

		require.NoError(t, third.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frame map[string]any
		require.NoError(t, third.ReadJSON(&frame))
		assert.Equal(t, "error", frame["type"])
		assert.Equal(t, ErrRoomFull.Kind, frame["kind"])
	})

	t.Run("malformed frame", func(t *testing.T) {
		conn := dialWS(t, ts)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, "error", frame["type"])
		assert.Equal(t, ErrInvalidInput.Kind, frame["kind"])
	})
}

func TestWebsocketVideoSignaling(t *testing.T) {
	ts, _ := newWSServer(t)

	alice := dialWS(t, ts)
	require.NoError(t, alice.WriteJSON(map[string]any{
		"type":          msgJoinVideoRoom,
		"roomId":        "call-1",
		"participantId": "alice",
	}))

	bob := dialWS(t, ts)
	require.NoError(t, bob.WriteJSON(map[string]any{
		"type":          msgJoinVideoRoom,
		"roomId":        "call-1",
		"participantId": "bob",
	}))

	joined := readUntil(t, alice, "peer-joined")
	assert.Equal(t, "bob", joined["participantId"])

	require.NoError(t, alice.WriteJSON(map[string]any{
		"type":          msgVideoSignal,
		"roomId":        "call-1",
		"participantId": "alice",
		"signal":        map[string]any{"type": "offer", "sdp": "v=0..."},
	}))

	relayed := readUntil(t, bob, "video-signal")
	assert.Equal(t, "alice", relayed["participantId"])
	signal, _ := relayed["signal"].(map[string]any)
	require.NotNil(t, signal)
	assert.Equal(t, "offer", signal["type"])

	// Closing the socket drops the peer out of the call.
	require.NoError(t, alice.Close())
	left := readUntil(t, bob, "peer-left")
	assert.Equal(t, "alice", left["participantId"])
}

func TestWebsocketSocketBindsOnce(t *testing.T) {
	ts, srv := newWSServer(t)

	host := dialWS(t, ts)
	require.NoError(t, host.WriteJSON(map[string]any{
		"type":     msgCreateRoom,
		"hostId":   "host-1",
		"hostName": "Avery",
		"gameKind": "two-truths",
	}))
	created := readUntil(t, host, "room-created")
	code, _ := created["code"].(string)

	require.NoError(t, host.SetReadDeadline(time.Now().Add(5*time.Second)))

	// A second create on the same socket must not shadow the first identity.
	require.NoError(t, host.WriteJSON(map[string]any{
		"type":     msgCreateRoom,
		"hostId":   "host-2",
		"hostName": "Avery",
		"gameKind": "two-truths",
	}))
	var frame map[string]any
	require.NoError(t, host.ReadJSON(&frame))
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, ErrInvalidInput.Kind, frame["kind"])
	assert.Nil(t, srv.rooms.RoomByParticipant("host-2"))

	// Same for a join while bound.
	require.NoError(t, host.WriteJSON(map[string]any{
		"type":      msgJoinRoom,
		"guestId":   "guest-1",
		"guestName": "Blair",
		"code":      code,
	}))
	require.NoError(t, host.ReadJSON(&frame))
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, ErrInvalidInput.Kind, frame["kind"])

	// Disconnect cleanup still reaches the one bound identity: the room is
	// torn down and its code freed rather than lingering unevictable.
	require.NoError(t, host.Close())
	require.Eventually(t, func() bool {
		return srv.rooms.RoomByParticipant("host-1") == nil && srv.rooms.RoomByCode(code) == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketVideoIdentityMismatch(t *testing.T) {
	ts, srv := newWSServer(t)

	host := dialWS(t, ts)
	require.NoError(t, host.WriteJSON(map[string]any{
		"type":     msgCreateRoom,
		"hostId":   "host-1",
		"hostName": "Avery",
		"gameKind": "two-truths",
	}))
	readUntil(t, host, "room-created")

	// A bound socket may not take a relay seat under a foreign identity.
	require.NoError(t, host.WriteJSON(map[string]any{
		"type":          msgJoinVideoRoom,
		"roomId":        "call-1",
		"participantId": "impostor",
	}))
	require.NoError(t, host.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]any
	require.NoError(t, host.ReadJSON(&frame))
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, ErrNotAuthorized.Kind, frame["kind"])

	srv.video.mu.Lock()
	assert.Empty(t, srv.video.rooms)
	srv.video.mu.Unlock()

	// The socket's own identity is fine.
	require.NoError(t, host.WriteJSON(map[string]any{
		"type":          msgJoinVideoRoom,
		"roomId":        "call-1",
		"participantId": "host-1",
	}))

	mate := dialWS(t, ts)
	require.NoError(t, mate.WriteJSON(map[string]any{
		"type":          msgJoinVideoRoom,
		"roomId":        "call-1",
		"participantId": "mate",
	}))
	joined := readUntil(t, host, "peer-joined")
	assert.Equal(t, "mate", joined["participantId"])

	// The seat is reclaimed when the socket dies.
	require.NoError(t, host.Close())
	left := readUntil(t, mate, "peer-left")
	assert.Equal(t, "host-1", left["participantId"])

	require.Eventually(t, func() bool {
		srv.video.mu.Lock()
		defer srv.video.mu.Unlock()
		vr, ok := srv.video.rooms["call-1"]
		return ok && len(vr.occupants) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketDisconnectClosesRoom(t *testing.T) {
	ts, _ := newWSServer(t)

	host := dialWS(t, ts)
	require.NoError(t, host.WriteJSON(map[string]any{
		"type":     msgCreateRoom,
		"hostId":   "host-1",
		"hostName": "Avery",
		"gameKind": "question",
	}))
	created := readUntil(t, host, "room-created")
	code, _ := created["code"].(string)

	guest := dialWS(t, ts)
	require.NoError(t, guest.WriteJSON(map[string]any{
		"type":      msgJoinRoom,
		"guestId":   "guest-1",
		"guestName": "Blair",
		"code":      code,
	}))
	readUntil(t, guest, "room-joined")

	require.NoError(t, host.Close())

	closed := readUntil(t, guest, "room-closed")
	assert.Equal(t, "host-left", closed["reason"])
}

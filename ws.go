/*
Copyright © 2026 Duonode <duonode@posteo.net>
*/

package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type server struct {
	cfg   *Config
	rooms *Registry
	video *Relay
}

// Client is one websocket connection. Outbound messages go through a
// buffered channel and are dropped when the client can't keep up.
type Client struct {
	conn    *websocket.Conn
	limiter *rate.Limiter

	mu     sync.Mutex
	send   chan any
	closed bool

	// participantID binds the socket to a registry identity once the client
	// creates, joins, or rejoins a room. The binding is permanent for the
	// socket's lifetime; disconnect cleanup runs against it. Only readPump
	// writes it.
	participantID string
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan any, 16),
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
}

func (c *Client) Emit(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- v:
	default:
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (s *server) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errf(s.cfg, "SERVE: Websocket upgrade from %s failed: %v", realIP(r), err)
			return
		}

		client := newClient(conn)

		go client.writePump()
		s.readPump(client)
	}
}

func (s *server) readPump(c *Client) {
	defer func() {
		if c.participantID != "" {
			s.rooms.HandleDisconnect(c.participantID)
			s.video.DropConnection(c.participantID)
		}
		c.shutdown()
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			continue
		}
		s.dispatch(c, data)
	}
}

// dispatch routes one inbound frame. Handler failures turn into an "error"
// emission; nothing a client sends may take the process down.
func (s *server) dispatch(c *Client, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			errf(s.cfg, "SERVE: Recovered handler panic: %v", r)
			c.Emit(errorMessage(ErrInternal))
		}
	}()

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.Emit(errorMessage(ErrInvalidInput))
		return
	}

	switch envelope.Type {
	case msgCreateRoom:
		var msg CreateRoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Emit(errorMessage(ErrInvalidInput))
			return
		}
		s.handleCreateRoom(c, msg)

	case msgJoinRoom:
		var msg JoinRoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Emit(errorMessage(ErrInvalidInput))
			return
		}
		s.handleJoinRoom(c, msg)

	case msgRejoinRoom:
		var msg RejoinRoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Emit(errorMessage(ErrInvalidInput))
			return
		}
		s.handleRejoinRoom(c, msg)

	case msgStartRoundGame:
		var msg StartRoundGameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Emit(errorMessage(ErrInvalidInput))
			return
		}
		if c.participantID == "" {
			c.Emit(errorMessage(ErrNotAuthorized))
			return
		}
		if err := s.rooms.StartGame(msg.RoomID, c.participantID); err != nil {
			c.Emit(errorMessage(err))
		}

	case msgSubmitAnswer:
		var msg SubmitAnswerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Emit(errorMessage(ErrInvalidInput))
			return
		}
		s.handleSubmitAnswer(c, msg)

	case msgJoinVideoRoom, msgLeaveVideoRoom:
		var msg VideoRoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Emit(errorMessage(ErrInvalidInput))
			return
		}
		s.handleVideoRoom(c, msg)

	case msgVideoSignal:
		var msg VideoSignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Emit(errorMessage(ErrInvalidInput))
			return
		}
		if err := s.video.RelaySignal(msg.RoomID, msg.ParticipantID, msg.Signal); err != nil {
			c.Emit(errorMessage(err))
		}

	default:
		// Unknown types are ignored, not errors; old clients may lag.
	}
}

func (s *server) handleCreateRoom(c *Client, msg CreateRoomMessage) {
	if c.participantID != "" {
		c.Emit(errorMessage(ErrInvalidInput))
		return
	}

	hostID := msg.HostID
	if hostID == "" {
		hostID = uuid.NewString()
	}

	room, err := s.rooms.CreateRoom(hostID, msg.HostName, msg.GameKind, c)
	if err != nil {
		c.Emit(errorMessage(err))
		return
	}
	c.participantID = hostID

	room.mu.Lock()
	view := room.view()
	room.mu.Unlock()

	c.Emit(RoomCreatedMessage{Type: "room-created", Room: view, Code: view.Code})
}

func (s *server) handleJoinRoom(c *Client, msg JoinRoomMessage) {
	if c.participantID != "" {
		c.Emit(errorMessage(ErrInvalidInput))
		return
	}

	guestID := msg.GuestID
	if guestID == "" {
		guestID = uuid.NewString()
	}

	room, err := s.rooms.JoinRoom(guestID, msg.GuestName, msg.Code, c)
	if err != nil {
		c.Emit(errorMessage(err))
		return
	}
	c.participantID = guestID

	room.mu.Lock()
	view := room.view()
	room.mu.Unlock()

	c.Emit(RoomJoinedMessage{Type: "room-joined", Room: view})
}

func (s *server) handleRejoinRoom(c *Client, msg RejoinRoomMessage) {
	if c.participantID != "" {
		c.Emit(errorMessage(ErrInvalidInput))
		return
	}

	room, err := s.rooms.Rejoin(msg.ParticipantID, c)
	if err != nil {
		c.Emit(errorMessage(err))
		return
	}
	c.participantID = msg.ParticipantID

	room.mu.Lock()
	view := room.view()
	room.mu.Unlock()

	c.Emit(RoomJoinedMessage{Type: "room-joined", Room: view})
}

func (s *server) handleSubmitAnswer(c *Client, msg SubmitAnswerMessage) {
	participantID := msg.ParticipantID
	if participantID == "" {
		participantID = c.participantID
	}
	if participantID == "" || (c.participantID != "" && participantID != c.participantID) {
		c.Emit(errorMessage(ErrNotAuthorized))
		return
	}

	if err := s.rooms.Submit(msg.RoomID, participantID, msg.Payload); err != nil {
		c.Emit(errorMessage(err))
	}
}

func (s *server) handleVideoRoom(c *Client, msg VideoRoomMessage) {
	if msg.ParticipantID == "" {
		c.Emit(errorMessage(ErrInvalidInput))
		return
	}

	switch msg.Type {
	case msgJoinVideoRoom:
		// A bound socket must call under its own identity; otherwise the
		// relay seat would survive the socket's disconnect cleanup.
		if c.participantID != "" && msg.ParticipantID != c.participantID {
			c.Emit(errorMessage(ErrNotAuthorized))
			return
		}
		if err := s.video.Join(msg.RoomID, msg.ParticipantID, c); err != nil {
			c.Emit(errorMessage(err))
			return
		}
		// Bind video-only sockets too, so a dropped connection is cleaned
		// out of the relay.
		if c.participantID == "" {
			c.participantID = msg.ParticipantID
		}
	case msgLeaveVideoRoom:
		s.video.Leave(msg.RoomID, msg.ParticipantID)
	}
}

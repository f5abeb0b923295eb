/*
Copyright © 2026 Duonode <duonode@posteo.net>
*/

package main

import (
	"encoding/json"
	"errors"
	"time"
)

// Wire protocol: every websocket frame is a JSON object discriminated by its
// "type" field. One struct per variant, nothing dynamic.

// Inbound message types.
const (
	msgCreateRoom     = "create-room"
	msgJoinRoom       = "join-room"
	msgRejoinRoom     = "rejoin-room"
	msgStartRoundGame = "start-round-game"
	msgSubmitAnswer   = "submit-answer"
	msgJoinVideoRoom  = "join-video-room"
	msgLeaveVideoRoom = "leave-video-room"
	msgVideoSignal    = "video-signal"
)

type CreateRoomMessage struct {
	Type     string `json:"type"`
	HostID   string `json:"hostId"`
	HostName string `json:"hostName"`
	GameKind string `json:"gameKind"`
}

type JoinRoomMessage struct {
	Type      string `json:"type"`
	GuestID   string `json:"guestId"`
	GuestName string `json:"guestName"`
	Code      string `json:"code"`
}

type RejoinRoomMessage struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participantId"`
}

type StartRoundGameMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type SubmitAnswerMessage struct {
	Type          string          `json:"type"`
	RoomID        string          `json:"roomId"`
	ParticipantID string          `json:"participantId"`
	Payload       json.RawMessage `json:"payload"`
}

type VideoRoomMessage struct {
	Type          string `json:"type"` // "join-video-room" or "leave-video-room"
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
}

type VideoSignalMessage struct {
	Type          string          `json:"type"`
	RoomID        string          `json:"roomId"`
	ParticipantID string          `json:"participantId"`
	Signal        json.RawMessage `json:"signal"`
}

// Outbound messages.

type RoomCreatedMessage struct {
	Type string   `json:"type"` // "room-created"
	Room RoomView `json:"room"`
	Code string   `json:"code"`
}

type RoomJoinedMessage struct {
	Type string   `json:"type"` // "room-joined"
	Room RoomView `json:"room"`
}

type RoomUpdateMessage struct {
	Type string   `json:"type"` // "room-update"
	Room RoomView `json:"room"`
}

type RoomClosedMessage struct {
	Type   string `json:"type"` // "room-closed"
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

type RoundStartedMessage struct {
	Type       string    `json:"type"` // "round-started"
	RoomID     string    `json:"roomId"`
	Round      int       `json:"roundIndex"`
	MaxRounds  int       `json:"maxRounds"`
	Prompt     string    `json:"prompt"`
	DeadlineAt time.Time `json:"deadlineAt"`
}

type SubmissionAckMessage struct {
	Type     string `json:"type"` // "submission-ack"
	RoomID   string `json:"roomId"`
	Round    int    `json:"roundIndex"`
	Count    int    `json:"count"`
	Required int    `json:"required"`
}

type RoundResultMessage struct {
	Type        string           `json:"type"` // "round-result"
	RoomID      string           `json:"roomId"`
	Round       int              `json:"roundIndex"`
	MaxRounds   int              `json:"maxRounds"`
	Submissions []SubmissionView `json:"submissions"`
	Scores      map[string]int   `json:"scores"`
	Detail      map[string]any   `json:"detail,omitempty"`
}

type GameOverMessage struct {
	Type   string         `json:"type"` // "game-over"
	RoomID string         `json:"roomId"`
	Scores map[string]int `json:"scores"`
}

type PeerJoinedMessage struct {
	Type          string `json:"type"` // "peer-joined"
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
}

type PeerLeftMessage struct {
	Type          string `json:"type"` // "peer-left"
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
}

type PeerDisconnectedMessage struct {
	Type          string `json:"type"` // "peer-disconnected"
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
}

type SignalRelayMessage struct {
	Type          string          `json:"type"` // "video-signal"
	RoomID        string          `json:"roomId"`
	ParticipantID string          `json:"participantId"`
	Signal        json.RawMessage `json:"signal"`
}

type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Views are the JSON projections of the in-memory model, built while the
// room lock is held so they never show a half-applied mutation.

type RoomView struct {
	ID           string            `json:"id"`
	Code         string            `json:"code"`
	GameKind     string            `json:"gameKind"`
	State        string            `json:"state"`
	Participants []ParticipantView `json:"participants"`
	Scores       map[string]int    `json:"scores"`
	Round        *RoundView        `json:"round,omitempty"`
}

type ParticipantView struct {
	ID        string `json:"id"`
	Name      string `json:"displayName"`
	Role      string `json:"role"`
	Connected bool   `json:"connected"`
}

type RoundView struct {
	Index      int       `json:"index"`
	MaxRounds  int       `json:"maxRounds"`
	Prompt     string    `json:"prompt"`
	DeadlineAt time.Time `json:"deadlineAt"`
	Submitted  []string  `json:"submitted"` // participant ids in arrival order
}

type SubmissionView struct {
	ParticipantID string          `json:"participantId"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	At            time.Time       `json:"at"`
	TimedOut      bool            `json:"timedOut"`
}

func errorMessage(err error) ErrorMessage {
	var ce *CoordError
	if errors.As(err, &ce) {
		return ErrorMessage{Type: "error", Kind: ce.Kind, Message: ce.Message}
	}
	return ErrorMessage{Type: "error", Kind: ErrInternal.Kind, Message: ErrInternal.Message}
}

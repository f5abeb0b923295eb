/*
Copyright © 2026 Duonode <duonode@posteo.net>
*/

package main

import (
	"encoding/json"
	"sync"
)

// Relay forwards WebRTC negotiation payloads between the two occupants of a
// video room without interpreting them. Video rooms live in their own
// side-table: a call can outlive the game room it started from. No retries;
// the peer connection layer owns its own negotiation recovery.
type Relay struct {
	cfg *Config

	mu    sync.Mutex
	rooms map[string]*videoRoom
}

type videoRoom struct {
	occupants map[string]Emitter
	order     []string
}

func NewRelay(cfg *Config) *Relay {
	return &Relay{
		cfg:   cfg,
		rooms: make(map[string]*videoRoom),
	}
}

func (rl *Relay) Join(roomID, participantID string, conn Emitter) error {
	if roomID == "" || participantID == "" || conn == nil {
		return ErrInvalidInput
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	vr, ok := rl.rooms[roomID]
	if !ok {
		vr = &videoRoom{occupants: make(map[string]Emitter)}
		rl.rooms[roomID] = vr
	}

	if _, present := vr.occupants[participantID]; !present {
		if len(vr.occupants) >= 2 {
			return ErrRoomFull
		}
		vr.order = append(vr.order, participantID)
	}
	vr.occupants[participantID] = conn

	for id, other := range vr.occupants {
		if id != participantID {
			other.Emit(PeerJoinedMessage{
				Type:          "peer-joined",
				RoomID:        roomID,
				ParticipantID: participantID,
			})
		}
	}

	logf(rl.cfg, "VIDEO: Participant %s joined video room %s (%d present)", participantID, roomID, len(vr.occupants))

	return nil
}

// validSignal checks the minimal shape: a JSON object carrying either a
// negotiation type or an ICE candidate field. Contents stay opaque.
func validSignal(signal json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(signal, &obj); err != nil {
		return false
	}

	if raw, ok := obj["type"]; ok {
		var t string
		if err := json.Unmarshal(raw, &t); err == nil && t != "" {
			return true
		}
	}
	_, ok := obj["candidate"]
	return ok
}

func (rl *Relay) RelaySignal(roomID, fromID string, signal json.RawMessage) error {
	if roomID == "" || fromID == "" {
		return ErrInvalidInput
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	vr, ok := rl.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if _, present := vr.occupants[fromID]; !present {
		return ErrNotAuthorized
	}
	if !validSignal(signal) {
		return ErrInvalidSignal
	}

	for id, other := range vr.occupants {
		if id != fromID {
			other.Emit(SignalRelayMessage{
				Type:          "video-signal",
				RoomID:        roomID,
				ParticipantID: fromID,
				Signal:        signal,
			})
		}
	}

	return nil
}

func (rl *Relay) Leave(roomID, participantID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.leaveLocked(roomID, participantID)
}

func (rl *Relay) leaveLocked(roomID, participantID string) {
	vr, ok := rl.rooms[roomID]
	if !ok {
		return
	}
	if _, present := vr.occupants[participantID]; !present {
		return
	}

	delete(vr.occupants, participantID)
	order := vr.order[:0]
	for _, id := range vr.order {
		if id != participantID {
			order = append(order, id)
		}
	}
	vr.order = order

	if len(vr.occupants) == 0 {
		delete(rl.rooms, roomID)
		logf(rl.cfg, "VIDEO: Video room %s emptied", roomID)
		return
	}

	for _, other := range vr.occupants {
		other.Emit(PeerLeftMessage{
			Type:          "peer-left",
			RoomID:        roomID,
			ParticipantID: participantID,
		})
	}

	logf(rl.cfg, "VIDEO: Participant %s left video room %s", participantID, roomID)
}

// DropConnection removes a participant from every video room they occupy,
// used when their socket dies without an explicit leave.
func (rl *Relay) DropConnection(participantID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	ids := make([]string, 0, len(rl.rooms))
	for id, vr := range rl.rooms {
		if _, present := vr.occupants[participantID]; present {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		rl.leaveLocked(id, participantID)
	}
}

/*
Copyright © 2026 Duonode <duonode@posteo.net>
*/

package main

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the single authority over live rooms: creation, join-by-code,
// participant lookup, deletion, and idle eviction. One instance per server
// process (or per test). The registry lock guards only the three indexes;
// room state is guarded by each room's own lock. Where both are needed the
// room lock is taken first.
type Registry struct {
	cfg      *Config
	provider ContentProvider
	games    map[string]Game

	mu           sync.Mutex
	rooms        map[string]*Room   // id -> room
	codes        map[string]string  // join code -> room id
	participants map[string]string  // participant id -> room id
}

func NewRegistry(cfg *Config, provider ContentProvider, games ...Game) *Registry {
	reg := &Registry{
		cfg:          cfg,
		provider:     provider,
		games:        make(map[string]Game, len(games)),
		rooms:        make(map[string]*Room),
		codes:        make(map[string]string),
		participants: make(map[string]string),
	}
	for _, g := range games {
		reg.games[g.Kind()] = g
	}
	return reg
}

const codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomCode(n int) string {
	max := byte(255 - (256 % len(codeLetters)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, codeLetters[int(b)%len(codeLetters)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}
}

// newCodeLocked generates a join code unique among live rooms. Collisions
// retry; exhausting the attempt budget means the code space is effectively
// full, which is a configuration error, not an expected runtime state.
func (reg *Registry) newCodeLocked() (string, error) {
	for i := 0; i < 10000; i++ {
		code := randomCode(reg.cfg.codeLength)
		if _, taken := reg.codes[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodesExhausted
}

func (reg *Registry) CreateRoom(hostID, hostName, gameKind string, conn Emitter) (*Room, error) {
	if hostID == "" || hostName == "" {
		return nil, ErrInvalidInput
	}
	if _, ok := reg.games[gameKind]; !ok {
		return nil, ErrInvalidInput
	}

	host := &Participant{
		ID:        hostID,
		Name:      hostName,
		Role:      RoleHost,
		Connected: true,
		conn:      conn,
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.participants[hostID]; ok {
		return nil, ErrInvalidInput
	}

	code, err := reg.newCodeLocked()
	if err != nil {
		return nil, err
	}

	room := &Room{
		ID:           uuid.NewString(),
		Code:         code,
		GameKind:     gameKind,
		State:        StateWaiting,
		Participants: []*Participant{host},
		Scores:       map[string]int{hostID: 0},
		LastActivity: time.Now(),
	}

	reg.rooms[room.ID] = room
	reg.codes[code] = room.ID
	reg.participants[hostID] = room.ID

	logf(reg.cfg, "ROOMS: Created %s room %s (code %s) for host %q", gameKind, room.ID, code, hostName)

	return room, nil
}

func (reg *Registry) JoinRoom(guestID, guestName, code string, conn Emitter) (*Room, error) {
	if guestID == "" || guestName == "" || code == "" {
		return nil, ErrInvalidInput
	}

	room := reg.RoomByCode(strings.ToUpper(code))
	if room == nil {
		return nil, ErrRoomNotFound
	}

	// Reserve the participant ID before taking the seat, so two concurrent
	// joins under the same ID cannot both pass the duplicate check. Rolled
	// back if the room rejects the join.
	reg.mu.Lock()
	if _, taken := reg.participants[guestID]; taken {
		reg.mu.Unlock()
		return nil, ErrInvalidInput
	}
	reg.participants[guestID] = room.ID
	reg.mu.Unlock()

	room.mu.Lock()
	defer room.mu.Unlock()

	var joinErr error
	switch {
	case room.closed:
		joinErr = ErrRoomNotFound
	case len(room.Participants) >= 2:
		joinErr = ErrRoomFull
	case room.State != StateWaiting:
		joinErr = ErrRoomNotJoinable
	}
	if joinErr != nil {
		reg.releaseParticipant(guestID, room.ID)
		return nil, joinErr
	}

	guest := &Participant{
		ID:        guestID,
		Name:      guestName,
		Role:      RoleGuest,
		Connected: true,
		conn:      conn,
	}
	room.Participants = append(room.Participants, guest)
	room.Scores[guestID] = 0
	room.State = StateReady
	room.touch()

	// Host learns about the new arrival; the joiner gets the room back
	// directly from this call.
	if host := room.host(); host != nil && host.Connected && host.conn != nil {
		host.conn.Emit(RoomUpdateMessage{Type: "room-update", Room: room.view()})
	}

	logf(reg.cfg, "ROOMS: Guest %q joined room %s", guestName, room.ID)

	return room, nil
}

// Rejoin re-binds a new connection to a participant that disconnected
// mid-game, keeping their seat, score, and any recorded submission.
func (reg *Registry) Rejoin(participantID string, conn Emitter) (*Room, error) {
	if participantID == "" {
		return nil, ErrInvalidInput
	}

	room := reg.RoomByParticipant(participantID)
	if room == nil {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return nil, ErrRoomNotFound
	}
	p := room.participant(participantID)
	if p == nil {
		return nil, ErrRoomNotFound
	}

	p.conn = conn
	p.Connected = true
	room.touch()
	room.broadcast(RoomUpdateMessage{Type: "room-update", Room: room.view()})

	logf(reg.cfg, "ROOMS: Participant %s reconnected to room %s", participantID, room.ID)

	return room, nil
}

// releaseParticipant undoes a JoinRoom reservation after the room rejected
// the join. Only clears the entry if it still points at the rejecting room.
func (reg *Registry) releaseParticipant(participantID, roomID string) {
	reg.mu.Lock()
	if reg.participants[participantID] == roomID {
		delete(reg.participants, participantID)
	}
	reg.mu.Unlock()
}

func (reg *Registry) roomByID(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[roomID]
}

func (reg *Registry) RoomByCode(code string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if id, ok := reg.codes[code]; ok {
		return reg.rooms[id]
	}
	return nil
}

func (reg *Registry) RoomByParticipant(participantID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if id, ok := reg.participants[participantID]; ok {
		return reg.rooms[id]
	}
	return nil
}

// DeleteRoom removes the room and every index entry pointing at it, and
// cancels its pending timers. Safe to call more than once.
func (reg *Registry) DeleteRoom(roomID string) {
	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	reg.mu.Unlock()
	if !ok {
		return
	}

	room.mu.Lock()
	room.closed = true
	room.cancelTimers()
	code := room.Code
	ids := make([]string, 0, len(room.Participants))
	for _, p := range room.Participants {
		ids = append(ids, p.ID)
	}
	room.mu.Unlock()

	reg.mu.Lock()
	delete(reg.rooms, roomID)
	delete(reg.codes, code)
	for _, id := range ids {
		if reg.participants[id] == roomID {
			delete(reg.participants, id)
		}
	}
	reg.mu.Unlock()

	logf(reg.cfg, "ROOMS: Deleted room %s (code %s)", roomID, code)
}

// SweepLoop periodically evicts rooms whose participants have all been gone
// longer than the configured timeout.
func (reg *Registry) SweepLoop(ctx context.Context) {
	ticker := time.NewTicker(reg.cfg.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			reg.sweep(now)
		}
	}
}

func (reg *Registry) sweep(now time.Time) {
	reg.mu.Lock()
	candidates := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		candidates = append(candidates, room)
	}
	reg.mu.Unlock()

	cutoff := now.Add(-reg.cfg.roomTimeout)

	for _, room := range candidates {
		room.mu.Lock()
		stale := !room.closed && room.connectedCount() == 0 && room.LastActivity.Before(cutoff)
		room.mu.Unlock()

		if stale {
			logf(reg.cfg, "ROOMS: Evicting idle room %s", room.ID)
			reg.DeleteRoom(room.ID)
		}
	}
}

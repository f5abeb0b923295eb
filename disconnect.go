/*
Copyright © 2026 Duonode <duonode@posteo.net>
*/

package main

// HandleDisconnect reconciles room state after a participant's connection
// drops. Duplicate notifications for the same participant are no-ops: once
// handled, either the room is gone, the participant is unindexed, or their
// Connected flag is already false.
func (reg *Registry) HandleDisconnect(participantID string) {
	room := reg.RoomByParticipant(participantID)
	if room == nil {
		return
	}

	room.mu.Lock()

	if room.closed {
		room.mu.Unlock()
		return
	}
	p := room.participant(participantID)
	if p == nil {
		room.mu.Unlock()
		return
	}

	switch room.State {
	case StateWaiting, StateReady:
		if p.Role == RoleHost {
			// No game meaningfully started; tear the room down.
			for _, other := range room.Participants {
				if other.ID != p.ID && other.Connected && other.conn != nil {
					other.conn.Emit(RoomClosedMessage{
						Type:   "room-closed",
						RoomID: room.ID,
						Reason: "host-left",
					})
				}
			}
			room.mu.Unlock()

			logf(reg.cfg, "ROOMS: Host %s left room %s before start, closing", participantID, room.ID)
			reg.DeleteRoom(room.ID)
			return
		}

		// Guest left a pre-game room: free the seat and let the host wait
		// for someone else.
		room.removeParticipant(p.ID)
		room.State = StateWaiting
		room.touch()

		reg.mu.Lock()
		delete(reg.participants, p.ID)
		reg.mu.Unlock()

		room.broadcast(RoomUpdateMessage{Type: "room-update", Room: room.view()})
		room.mu.Unlock()

		logf(reg.cfg, "ROOMS: Guest %s left room %s, back to waiting", participantID, room.ID)

	case StateInRound, StateFinished:
		if !p.Connected {
			room.mu.Unlock()
			return
		}

		// Keep the seat and any recorded submission so the participant can
		// reconnect under the same identity. The idle sweep reclaims rooms
		// nobody comes back to.
		p.Connected = false
		p.conn = nil
		room.touch()

		room.broadcast(PeerDisconnectedMessage{
			Type:          "peer-disconnected",
			RoomID:        room.ID,
			ParticipantID: participantID,
		})
		room.mu.Unlock()

		logf(reg.cfg, "ROOMS: Participant %s disconnected from room %s mid-game", participantID, room.ID)

	default:
		room.mu.Unlock()
	}
}

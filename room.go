/*
Copyright © 2026 Duonode <duonode@posteo.net>
*/

package main

import (
	"encoding/json"
	"sync"
	"time"
)

type RoomState int

const (
	StateWaiting RoomState = iota
	StateReady
	StateInRound
	StateFinished
)

func (s RoomState) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateReady:
		return "ready"
	case StateInRound:
		return "in-round"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}

const (
	RoleHost  = "host"
	RoleGuest = "guest"
)

// Emitter is the connection reference held per participant. The websocket
// layer implements it with a buffered channel; tests use an in-memory fake.
// Emit never blocks and never reports delivery.
type Emitter interface {
	Emit(v any)
}

type Participant struct {
	ID        string
	Name      string
	Role      string
	Connected bool
	conn      Emitter
}

type Submission struct {
	ParticipantID string
	Payload       json.RawMessage
	At            time.Time
	TimedOut      bool
}

type RoundState struct {
	Index      int
	MaxRounds  int
	Prompt     string
	DeadlineAt time.Time
	Resolved   bool

	// Arrival order matters: the first entry answered first.
	Submissions []Submission

	deadline *time.Timer
}

func (rs *RoundState) submission(participantID string) *Submission {
	for i := range rs.Submissions {
		if rs.Submissions[i].ParticipantID == participantID {
			return &rs.Submissions[i]
		}
	}
	return nil
}

// Room owns its participants and its current round. All mutation happens
// through Registry methods while mu is held; timer callbacks re-acquire it.
type Room struct {
	mu sync.Mutex

	ID           string
	Code         string
	GameKind     string
	State        RoomState
	Participants []*Participant
	Round        *RoundState
	Scores       map[string]int
	LastActivity time.Time

	// Set once by DeleteRoom so in-flight timer callbacks become no-ops.
	closed  bool
	advance *time.Timer
}

func (r *Room) touch() {
	r.LastActivity = time.Now()
}

func (r *Room) participant(id string) *Participant {
	for _, p := range r.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) host() *Participant {
	for _, p := range r.Participants {
		if p.Role == RoleHost {
			return p
		}
	}
	return nil
}

func (r *Room) removeParticipant(id string) {
	dst := r.Participants[:0]
	for _, p := range r.Participants {
		if p.ID == id {
			continue
		}
		dst = append(dst, p)
	}
	r.Participants = dst
	delete(r.Scores, id)
}

func (r *Room) connectedCount() int {
	count := 0
	for _, p := range r.Participants {
		if p.Connected {
			count++
		}
	}
	return count
}

// broadcast sends to every participant with a live connection. Callers must
// hold r.mu. Delivery is fire-and-forget.
func (r *Room) broadcast(v any) {
	for _, p := range r.Participants {
		if p.Connected && p.conn != nil {
			p.conn.Emit(v)
		}
	}
}

func (r *Room) cancelTimers() {
	if r.Round != nil && r.Round.deadline != nil {
		r.Round.deadline.Stop()
		r.Round.deadline = nil
	}
	if r.advance != nil {
		r.advance.Stop()
		r.advance = nil
	}
}

func (r *Room) scoresCopy() map[string]int {
	scores := make(map[string]int, len(r.Scores))
	for id, score := range r.Scores {
		scores[id] = score
	}
	return scores
}

// view must be called with r.mu held.
func (r *Room) view() RoomView {
	participants := make([]ParticipantView, 0, len(r.Participants))
	for _, p := range r.Participants {
		participants = append(participants, ParticipantView{
			ID:        p.ID,
			Name:      p.Name,
			Role:      p.Role,
			Connected: p.Connected,
		})
	}

	view := RoomView{
		ID:           r.ID,
		Code:         r.Code,
		GameKind:     r.GameKind,
		State:        r.State.String(),
		Participants: participants,
		Scores:       r.scoresCopy(),
	}

	if r.Round != nil {
		submitted := make([]string, 0, len(r.Round.Submissions))
		for _, sub := range r.Round.Submissions {
			submitted = append(submitted, sub.ParticipantID)
		}
		view.Round = &RoundView{
			Index:      r.Round.Index,
			MaxRounds:  r.Round.MaxRounds,
			Prompt:     r.Round.Prompt,
			DeadlineAt: r.Round.DeadlineAt,
			Submitted:  submitted,
		}
	}

	return view
}

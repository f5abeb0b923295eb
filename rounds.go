/*
Copyright © 2026 Duonode <duonode@posteo.net>
*/

package main

import (
	"encoding/json"
	"time"
)

// Round lifecycle. A round resolves exactly once: either when every
// participant has submitted, or when the deadline timer fires and the
// missing slots are sentinel-filled. The Resolved flag and the
// first-write-wins submission list are the only ordering guards needed;
// a timer racing a final submission loses harmlessly.

// StartGame begins round 1. Host-only, requires both seats filled.
func (reg *Registry) StartGame(roomID, participantID string) error {
	room := reg.roomByID(roomID)
	if room == nil {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return ErrRoomNotFound
	}
	host := room.host()
	if host == nil || host.ID != participantID {
		return ErrNotAuthorized
	}
	if room.State == StateInRound || room.State == StateFinished {
		return ErrAlreadyInProgress
	}
	if len(room.Participants) < 2 {
		return ErrNotEnoughPlayers
	}

	room.touch()

	return reg.startRoundLocked(room, 1)
}

func (reg *Registry) startRoundLocked(room *Room, index int) error {
	game := reg.games[room.GameKind]

	// Fetch the prompt before touching any state, so a provider failure
	// leaves the room exactly as it was.
	prompt, err := reg.provider.NextPrompt(room.GameKind, index)
	if err != nil {
		return err
	}

	room.State = StateInRound
	round := &RoundState{
		Index:      index,
		MaxRounds:  game.Rounds(),
		Prompt:     prompt,
		DeadlineAt: time.Now().Add(game.RoundLength()),
	}
	room.Round = round

	round.deadline = time.AfterFunc(game.RoundLength(), func() {
		reg.roundDeadline(room, index)
	})

	room.broadcast(RoundStartedMessage{
		Type:       "round-started",
		RoomID:     room.ID,
		Round:      index,
		MaxRounds:  round.MaxRounds,
		Prompt:     prompt,
		DeadlineAt: round.DeadlineAt,
	})

	logf(reg.cfg, "GAMES: Room %s started round %d/%d", room.ID, index, round.MaxRounds)

	return nil
}

// Submit records a participant's answer for the current round. A second
// submission from the same participant, or one arriving after the round
// resolved, is a silent no-op.
func (reg *Registry) Submit(roomID, participantID string, payload json.RawMessage) error {
	room := reg.roomByID(roomID)
	if room == nil {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return ErrRoomNotFound
	}
	if room.participant(participantID) == nil {
		return ErrNotAuthorized
	}
	if room.State != StateInRound || room.Round == nil {
		return ErrInvalidInput
	}

	round := room.Round
	if round.Resolved || round.submission(participantID) != nil {
		return nil
	}

	round.Submissions = append(round.Submissions, Submission{
		ParticipantID: participantID,
		Payload:       payload,
		At:            time.Now(),
	})
	room.touch()

	if len(round.Submissions) >= len(room.Participants) {
		reg.resolveLocked(room)
		return nil
	}

	room.broadcast(SubmissionAckMessage{
		Type:     "submission-ack",
		RoomID:   room.ID,
		Round:    round.Index,
		Count:    len(round.Submissions),
		Required: len(room.Participants),
	})

	return nil
}

// roundDeadline fires from the round timer. Missing submissions are filled
// with a "no response" sentinel stamped at the deadline, then the round
// resolves normally. A timer firing after a natural resolution is a no-op.
func (reg *Registry) roundDeadline(room *Room, index int) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || room.State != StateInRound {
		return
	}
	round := room.Round
	if round == nil || round.Index != index || round.Resolved {
		return
	}

	filled := 0
	for _, p := range room.Participants {
		if round.submission(p.ID) == nil {
			round.Submissions = append(round.Submissions, Submission{
				ParticipantID: p.ID,
				At:            round.DeadlineAt,
				TimedOut:      true,
			})
			filled++
		}
	}

	logf(reg.cfg, "GAMES: Room %s round %d timed out, %d sentinel submission(s)", room.ID, index, filled)

	reg.resolveLocked(room)
}

func (reg *Registry) resolveLocked(room *Room) {
	round := room.Round
	if round == nil || round.Resolved {
		return
	}
	round.Resolved = true

	if round.deadline != nil {
		round.deadline.Stop()
		round.deadline = nil
	}

	game := reg.games[room.GameKind]
	detail := game.Score(round, room)

	views := make([]SubmissionView, 0, len(round.Submissions))
	for _, sub := range round.Submissions {
		views = append(views, SubmissionView{
			ParticipantID: sub.ParticipantID,
			Payload:       sub.Payload,
			At:            sub.At,
			TimedOut:      sub.TimedOut,
		})
	}

	room.broadcast(RoundResultMessage{
		Type:        "round-result",
		RoomID:      room.ID,
		Round:       round.Index,
		MaxRounds:   round.MaxRounds,
		Submissions: views,
		Scores:      room.scoresCopy(),
		Detail:      detail,
	})
	room.touch()

	logf(reg.cfg, "GAMES: Room %s resolved round %d/%d", room.ID, round.Index, round.MaxRounds)

	// Give both clients a moment to display the result before moving on.
	next := round.Index + 1
	if round.Index < round.MaxRounds {
		room.advance = time.AfterFunc(reg.cfg.resultDelay, func() {
			reg.advanceRound(room, next)
		})
	} else {
		room.advance = time.AfterFunc(reg.cfg.resultDelay, func() {
			reg.finishGame(room)
		})
	}
}

func (reg *Registry) advanceRound(room *Room, index int) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || room.State != StateInRound {
		return
	}
	if room.Round == nil || room.Round.Index != index-1 || !room.Round.Resolved {
		return
	}

	if err := reg.startRoundLocked(room, index); err != nil {
		// Timer path has no caller to report to; end the game cleanly.
		errf(reg.cfg, "GAMES: Room %s could not start round %d: %v", room.ID, index, err)
		reg.finishLocked(room)
	}
}

func (reg *Registry) finishGame(room *Room) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || room.State != StateInRound {
		return
	}

	reg.finishLocked(room)
}

func (reg *Registry) finishLocked(room *Room) {
	room.State = StateFinished
	room.Round = nil
	room.touch()

	room.broadcast(GameOverMessage{
		Type:   "game-over",
		RoomID: room.ID,
		Scores: room.scoresCopy(),
	})

	logf(reg.cfg, "GAMES: Room %s finished, scores %v", room.ID, room.Scores)
}

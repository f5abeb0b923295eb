/*
Copyright © 2026 Duonode <duonode@posteo.net>
*/

package main

import (
	"encoding/json"
	"time"
)

// ContentProvider supplies the prompt text for a round. The coordination
// core treats it as opaque; swapping in an AI-backed provider changes
// nothing here.
type ContentProvider interface {
	NextPrompt(gameKind string, round int) (string, error)
}

// Game is the pluggable strategy for one game kind: how many rounds it
// runs, how long each round lasts, and how a resolved round is scored.
// Score is called with the room lock held and may update room.Scores.
type Game interface {
	Kind() string
	Rounds() int
	RoundLength() time.Duration
	Score(round *RoundState, room *Room) map[string]any
}

// TwoTruthsGame: one player submits three statements and the index of the
// lie, the other submits a guess at that index. A correct guess scores a
// point for the guesser.
type TwoTruthsGame struct {
	NumRounds int
	Length    time.Duration
}

func (g TwoTruthsGame) Kind() string {
	return "two-truths"
}

func (g TwoTruthsGame) Rounds() int {
	return g.NumRounds
}

func (g TwoTruthsGame) RoundLength() time.Duration {
	return g.Length
}

type truthsPayload struct {
	Statements []string `json:"statements"`
	Lie        *int     `json:"lie"`
}

type guessPayload struct {
	Guess *int `json:"guess"`
}

// parseGuess accepts either a bare number or {"guess": n}.
func parseGuess(raw json.RawMessage) *int {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var gp guessPayload
	if err := json.Unmarshal(raw, &gp); err == nil && gp.Guess != nil {
		return gp.Guess
	}
	return nil
}

func (g TwoTruthsGame) Score(round *RoundState, room *Room) map[string]any {
	var truths *truthsPayload
	var guess *int
	var guesserID string

	for _, sub := range round.Submissions {
		if sub.TimedOut || len(sub.Payload) == 0 {
			continue
		}

		var tp truthsPayload
		if err := json.Unmarshal(sub.Payload, &tp); err == nil && len(tp.Statements) > 0 && tp.Lie != nil {
			truths = &tp
			continue
		}

		if n := parseGuess(sub.Payload); n != nil {
			guess = n
			guesserID = sub.ParticipantID
		}
	}

	if truths == nil || guess == nil {
		return map[string]any{"complete": false}
	}

	correct := *guess == *truths.Lie
	if correct {
		room.Scores[guesserID]++
	}

	return map[string]any{
		"complete": true,
		"correct":  correct,
		"lieIndex": *truths.Lie,
		"guesser":  guesserID,
	}
}

// QuestionGame: both players answer the same free-form prompt. No
// correctness scoring, only who answered first.
type QuestionGame struct {
	NumRounds int
	Length    time.Duration
}

func (g QuestionGame) Kind() string {
	return "question"
}

func (g QuestionGame) Rounds() int {
	return g.NumRounds
}

func (g QuestionGame) RoundLength() time.Duration {
	return g.Length
}

func (g QuestionGame) Score(round *RoundState, room *Room) map[string]any {
	for _, sub := range round.Submissions {
		if !sub.TimedOut {
			return map[string]any{"answeredFirst": sub.ParticipantID}
		}
	}
	return map[string]any{}
}

func defaultGames() []Game {
	return []Game{
		TwoTruthsGame{NumRounds: 3, Length: 90 * time.Second},
		QuestionGame{NumRounds: 5, Length: 120 * time.Second},
	}
}

// listProvider cycles through a fixed prompt list per game kind.
type listProvider struct {
	prompts map[string][]string
}

func (lp *listProvider) NextPrompt(gameKind string, round int) (string, error) {
	list := lp.prompts[gameKind]
	if len(list) == 0 {
		return "", ErrInvalidInput
	}
	return list[(round-1)%len(list)], nil
}

func newListProvider() *listProvider {
	return &listProvider{
		prompts: map[string][]string{
			"two-truths": {
				"Share two truths and a lie about your childhood.",
				"Share two truths and a lie about places you've traveled.",
				"Share two truths and a lie about your worst habits.",
				"Share two truths and a lie about your first impressions of each other.",
				"Share two truths and a lie about food you've eaten.",
			},
			"question": {
				"What was the first thing you noticed about your partner?",
				"What is one thing you'd love to do together that you never have?",
				"What song reminds you of each other?",
				"What was your most embarrassing moment in front of your partner?",
				"If you could relive one day together, which would it be?",
				"What little thing does your partner do that always makes you smile?",
			},
		},
	}
}

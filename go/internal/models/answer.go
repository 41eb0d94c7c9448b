package models

import (
	"time"

	"github.com/google/uuid"
)

// Answer is one player's immutable submission for one round.
// (SessionID, PlayerID, RoundNumber) is unique.
type Answer struct {
	ID                   uuid.UUID `json:"id"`
	SessionID            uuid.UUID `json:"session_id"`
	PlayerID             string    `json:"player_id"`
	RoundNumber          int       `json:"round_number"`
	AnswerText           string    `json:"answer"`
	IsCorrect            bool      `json:"is_correct"`
	TimeLeftAtSubmission int       `json:"time_left"`
	// Points is credited to the player's score when the answer is stored.
	Points               int       `json:"points"`
	SubmittedAt          time.Time `json:"submitted_at"`
}

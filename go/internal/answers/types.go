package answers

import (
	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
)

var (
	ErrDuplicateAnswer = store.ErrDuplicateAnswer
	ErrRoundClosed     = store.ErrRoundClosed
	ErrNotFound        = store.ErrNotFound
)

// SubmitAnswerRequest represents one player's answer for one round
type SubmitAnswerRequest struct {
	SessionID   uuid.UUID
	PlayerID    string
	RoundNumber int
	AnswerText  string
	TimeLeft    int
}

type SubmitAnswerRPCRequest struct {
	SessionID   string `json:"session_id"`
	PlayerID    string `json:"player_id"`
	RoundNumber int    `json:"round_number"`
	Answer      string `json:"answer"`
	TimeLeft    int    `json:"time_left"`
}

type SubmitAnswerRPCResponse struct {
	Answer    *models.Answer `json:"answer,omitempty"`
	Duplicate bool           `json:"duplicate"`
}

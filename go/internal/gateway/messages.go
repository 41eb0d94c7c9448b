package gateway

import (
	"github.com/mcdev12/quizduel/go/internal/round"
)

// MessageType tags every frame on the socket.
type MessageType string

const (
	// server -> client
	MessageTypeSnapshot     MessageType = "snapshot"
	MessageTypeAnswerResult MessageType = "answer_result"
	MessageTypeError        MessageType = "error"

	// client -> server
	MessageTypeSubmitAnswer MessageType = "submit_answer"
)

// ServerMessage is sent to clients.
type ServerMessage struct {
	Type     MessageType     `json:"type"`
	Snapshot *round.Snapshot `json:"snapshot,omitempty"`
	Answer   *AnswerResult   `json:"answer,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// AnswerResult acknowledges a stored answer. Correctness is revealed with the round's snapshot.
type AnswerResult struct {
	Round      int    `json:"round"`
	AnswerText string `json:"answer_text"`
	TimeLeft   int    `json:"time_left"`
}

// ClientMessage is received from clients.
type ClientMessage struct {
	Type   MessageType `json:"type"`
	Answer string      `json:"answer,omitempty"`
}

func snapshotMessage(snap round.Snapshot) *ServerMessage {
	redacted := snap.Redacted()
	return &ServerMessage{Type: MessageTypeSnapshot, Snapshot: &redacted}
}

func errorMessage(text string) *ServerMessage {
	return &ServerMessage{Type: MessageTypeError, Error: text}
}

package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
)

// Event types emitted whenever a session or its answers change.
const (
	EventTypeSessionCreated  = "SessionCreated"
	EventTypePlayersChanged  = "PlayersChanged"
	EventTypeSessionUpdated  = "SessionUpdated"
	EventTypeRoundAdvanced   = "RoundAdvanced"
	EventTypeMatchFinished   = "MatchFinished"
	EventTypeScoresUpdated   = "ScoresUpdated"
	EventTypeAnswerSubmitted = "AnswerSubmitted"
	EventTypeSessionDeleted  = "SessionDeleted"
)

// SessionPayload carries the full session record after a mutation.
type SessionPayload struct {
	Session models.Session `json:"session"`
}

// AnswerPayload carries a newly stored answer.
type AnswerPayload struct {
	Answer models.Answer `json:"answer"`
}

// SessionDeletedPayload is the payload for a SessionDeleted event
type SessionDeletedPayload struct {
	SessionID string    `json:"session_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Envelope is the wire format on the message bus.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Change is a single notification delivered to session watchers. Session is set for
// session events, Answer for AnswerSubmitted; both are nil for SessionDeleted.
type Change struct {
	ID        uuid.UUID
	Type      string
	SessionID uuid.UUID
	Session   *models.Session
	Answer    *models.Answer
	At        time.Time
}

// NewSessionChange builds a change carrying a copy of session.
func NewSessionChange(eventType string, session *models.Session, at time.Time) Change {
	return Change{
		ID:        uuid.New(),
		Type:      eventType,
		SessionID: session.ID,
		Session:   session.Clone(),
		At:        at,
	}
}

// NewAnswerChange builds an AnswerSubmitted change.
func NewAnswerChange(answer models.Answer, at time.Time) Change {
	a := answer
	return Change{
		ID:        uuid.New(),
		Type:      EventTypeAnswerSubmitted,
		SessionID: answer.SessionID,
		Answer:    &a,
		At:        at,
	}
}

// NewDeletedChange builds a SessionDeleted change.
func NewDeletedChange(sessionID uuid.UUID, at time.Time) Change {
	return Change{
		ID:        uuid.New(),
		Type:      EventTypeSessionDeleted,
		SessionID: sessionID,
		At:        at,
	}
}

// Payload marshals the event-specific body of c.
func (c Change) Payload() ([]byte, error) {
	switch {
	case c.Answer != nil:
		return json.Marshal(AnswerPayload{Answer: *c.Answer})
	case c.Session != nil:
		return json.Marshal(SessionPayload{Session: *c.Session})
	case c.Type == EventTypeSessionDeleted:
		return json.Marshal(SessionDeletedPayload{SessionID: c.SessionID.String(), DeletedAt: c.At})
	}
	return nil, fmt.Errorf("change %s has no payload", c.Type)
}

// Envelope wraps c for the message bus.
func (c Change) Envelope() (Envelope, error) {
	payload, err := c.Payload()
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:   c.ID.String(),
		EventType: c.Type,
		SessionID: c.SessionID.String(),
		Timestamp: c.At,
		Payload:   payload,
	}, nil
}

// ChangeFromEnvelope decodes a bus envelope back into a Change.
func ChangeFromEnvelope(env Envelope) (Change, error) {
	sessionID, err := uuid.Parse(env.SessionID)
	if err != nil {
		return Change{}, fmt.Errorf("parse session ID: %w", err)
	}
	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		return Change{}, fmt.Errorf("parse event ID: %w", err)
	}

	change := Change{
		ID:        eventID,
		Type:      env.EventType,
		SessionID: sessionID,
		At:        env.Timestamp,
	}

	switch env.EventType {
	case EventTypeAnswerSubmitted:
		var p AnswerPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Change{}, fmt.Errorf("failed to unmarshal %s payload: %w", env.EventType, err)
		}
		change.Answer = &p.Answer
	case EventTypeSessionDeleted:
	default:
		var p SessionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Change{}, fmt.Errorf("failed to unmarshal %s payload: %w", env.EventType, err)
		}
		change.Session = &p.Session
	}
	return change, nil
}

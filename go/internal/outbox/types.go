package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one row of session_outbox.
type Event struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
	SentAt    *time.Time
}

// Publisher is an interface that defines our publisher.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventRepository is what the relay needs from the outbox table.
type EventRepository interface {
	FetchByID(ctx context.Context, id uuid.UUID) (*Event, error)
	FetchUnsent(ctx context.Context, limit int) ([]Event, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	CountPending(ctx context.Context) (int, error)
}

package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// ErrAlreadySent is returned by FetchByID when the event is missing or was already relayed.
var ErrAlreadySent = errors.New("outbox event not found or already sent")

// Repository reads session_outbox over database/sql, the same connection family
// as the LISTEN side.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type outboxRow struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	EventType string
	Payload   pqtype.NullRawMessage
	CreatedAt sql.NullTime
	SentAt    sql.NullTime
}

func (r outboxRow) event() Event {
	e := Event{
		ID:        r.ID,
		SessionID: r.SessionID,
		EventType: r.EventType,
		Payload:   sqlutil.FromNullRawMessage(r.Payload),
		SentAt:    sqlutil.FromSqlTime(r.SentAt),
	}
	if r.CreatedAt.Valid {
		e.CreatedAt = r.CreatedAt.Time
	}
	return e
}

func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	var row outboxRow
	err := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, event_type, payload, created_at, sent_at
		FROM session_outbox
		WHERE id = $1 AND sent_at IS NULL`, id,
	).Scan(&row.ID, &row.SessionID, &row.EventType, &row.Payload, &row.CreatedAt, &row.SentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlreadySent
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	e := row.event()
	return &e, nil
}

// FetchUnsent returns up to limit unsent events, oldest first.
func (r *Repository) FetchUnsent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, event_type, payload, created_at, sent_at
		FROM session_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.ID, &row.SessionID, &row.EventType, &row.Payload, &row.CreatedAt, &row.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, row.event())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE session_outbox SET sent_at = $2 WHERE id = $1`, id, sqlutil.ToSqlTime(&sentAt))
	if err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_outbox WHERE sent_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return count, nil
}

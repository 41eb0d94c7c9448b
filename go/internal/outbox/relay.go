package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type RelayConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	BatchSize  int // Max events to fetch per batch
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		MaxRetries: 5,
		RetryDelay: 200 * time.Millisecond,
		BatchSize:  100,
	}
}

// Relay moves outbox rows to the publisher and marks them sent.
// Delivery is at-least-once; the publisher dedupes on event ID.
type Relay struct {
	repo      EventRepository
	publisher Publisher
	cfg       RelayConfig
	clock     clockwork.Clock

	mu        sync.Mutex
	processed uint64
	lastEvent time.Time
}

func NewRelay(repo EventRepository, publisher Publisher, clock clockwork.Clock, cfg RelayConfig) *Relay {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		clock:     clock,
	}
}

// Stats returns the number of relayed events and when the last one went out.
func (r *Relay) Stats() (uint64, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed, r.lastEvent
}

// HandleNotification relays the event whose ID arrived as the NOTIFY payload.
func (r *Relay) HandleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := r.repo.FetchByID(ctx, id)
	if errors.Is(err, ErrAlreadySent) {
		// the fallback poll got there first
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}

	if err := r.publishWithRetry(ctx, *event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().Str("event_id", id.String()).Str("event_type", event.EventType).Msg("published and marked event as sent")
	return nil
}

// ProcessUnsent relays one batch of events that were missed by the notification path.
func (r *Relay) ProcessUnsent(ctx context.Context) (int, error) {
	unsent, err := r.repo.FetchUnsent(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, event := range unsent {
		if err := r.publishWithRetry(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to publish event")
			continue
		}
		sent++
	}
	if sent > 0 {
		log.Info().Int("sent", sent).Int("fetched", len(unsent)).Msg("relayed unsent outbox events")
	}
	return sent, nil
}

// publishWithRetry attempts to publish an outbox event with a linear backoff.
func (r *Relay) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(delay):
			}
		}

		if err := r.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if err := r.repo.MarkSent(ctx, event.ID, r.clock.Now()); err != nil {
			return err
		}

		r.mu.Lock()
		r.processed++
		r.lastEvent = r.clock.Now()
		r.mu.Unlock()

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

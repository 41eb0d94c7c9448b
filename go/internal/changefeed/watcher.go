package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/events"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Watcher turns the JetStream event stream into per-session change feeds.
// Each Watch call gets its own ordered consumer starting at new messages.
type Watcher struct {
	js     jetstream.JetStream
	cfg    Config
	buffer int
}

func NewWatcher(js jetstream.JetStream, cfg Config) *Watcher {
	return &Watcher{js: js, cfg: cfg, buffer: 32}
}

// Watch implements store.Watcher.
func (w *Watcher) Watch(ctx context.Context, sessionID uuid.UUID) (<-chan events.Change, error) {
	cons, err := w.js.OrderedConsumer(ctx, w.cfg.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{w.cfg.SessionFilter(sessionID)},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create ordered consumer: %w", err)
	}

	it, err := cons.Messages()
	if err != nil {
		return nil, fmt.Errorf("open message iterator: %w", err)
	}

	out := make(chan events.Change, w.buffer)
	go func() {
		<-ctx.Done()
		it.Stop()
	}()
	go func() {
		defer close(out)
		for {
			msg, err := it.Next()
			if err != nil {
				if !errors.Is(err, jetstream.ErrMsgIteratorClosed) {
					log.Error().Err(err).Str("session_id", sessionID.String()).Msg("change feed stopped")
				}
				return
			}

			change, err := Decode(msg.Data())
			if err != nil {
				log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable event")
				continue
			}

			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Decode parses a published envelope.
func Decode(data []byte) (events.Change, error) {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.Change{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return events.ChangeFromEnvelope(env)
}

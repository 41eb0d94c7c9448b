package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/quizduel/go/internal/changefeed"
	"github.com/mcdev12/quizduel/go/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// LogPublisher only logs events. Useful for running the relay without NATS.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event Event) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("session_id", event.SessionID.String()).
		Msg("publishing event")
	return nil
}

type JetStreamPublisher struct {
	js  jetstream.JetStream
	cfg changefeed.Config
}

func NewJetStreamPublisher(js jetstream.JetStream, cfg changefeed.Config) *JetStreamPublisher {
	return &JetStreamPublisher{js: js, cfg: cfg}
}

// Envelope wraps an outbox row in the bus wire format.
func Envelope(event Event) events.Envelope {
	return events.Envelope{
		EventID:   event.ID.String(),
		EventType: event.EventType,
		SessionID: event.SessionID.String(),
		Timestamp: event.CreatedAt.UTC(),
		Payload:   json.RawMessage(event.Payload),
	}
}

func (p *JetStreamPublisher) Publish(ctx context.Context, event Event) error {
	subject := p.cfg.Subject(event.SessionID, event.EventType)

	data, err := jsonEnvelope(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{event.EventType},
			"Session-ID": []string{event.SessionID.String()},
			"Event-ID":   []string{event.ID.String()},
		},
	},
		jetstream.WithMsgID(event.ID.String()),
		jetstream.WithExpectStream(p.cfg.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", event.ID.String()).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published to JetStream")

	return nil
}

func jsonEnvelope(event Event) ([]byte, error) {
	return json.Marshal(Envelope(event))
}

package changefeed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type Config struct {
	URL             string        `yaml:"url"`
	StreamName      string        `yaml:"stream_name"`
	SubjectPrefix   string        `yaml:"subject_prefix"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxAge          time.Duration `yaml:"max_age"`          // How long to keep messages
	MaxMsgs         int64         `yaml:"max_msgs"`         // Max number of messages to keep
	Replicas        int           `yaml:"replicas"`         // Number of replicas for the stream
	DuplicateWindow time.Duration `yaml:"duplicate_window"` // Window for duplicate detection
}

func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		StreamName:      "QUIZDUEL_EVENTS",
		SubjectPrefix:   "quizduel.sessions",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1, // No limit
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
	}
}

// Subject is where events for one session are published.
func (c Config) Subject(sessionID uuid.UUID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", c.SubjectPrefix, sessionID, eventType)
}

// SessionFilter matches every event of one session.
func (c Config) SessionFilter(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s.%s.>", c.SubjectPrefix, sessionID)
}

// SessionFromSubject extracts the session ID from a subject built by Subject.
func (c Config) SessionFromSubject(subject string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(subject, c.SubjectPrefix+".")
	if !ok {
		return uuid.Nil, fmt.Errorf("subject %q outside prefix %q", subject, c.SubjectPrefix)
	}
	id, _, _ := strings.Cut(rest, ".")
	return uuid.Parse(id)
}

// Connect dials NATS and makes sure the session event stream exists.
func Connect(ctx context.Context, cfg Config) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := EnsureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("ensure stream: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates the stream or updates it when its limits changed.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg Config) error {
	sc := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Session change events relayed from the outbox",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     cfg.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !sameLimits(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

func sameLimits(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}

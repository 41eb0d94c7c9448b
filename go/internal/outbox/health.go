package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
)

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	LastEventTime     time.Time `json:"last_event_time"`
	EventsProcessed   uint64    `json:"events_processed"`
	PendingEvents     int       `json:"pending_events"`
	DatabaseConnected bool      `json:"database_connected"`
	NATSConnected     bool      `json:"nats_connected"`
	ListenerActive    bool      `json:"listener_active"`
	Errors            []string  `json:"errors"`
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthChecker struct {
	relay     *Relay
	listener  interface{ Running() bool }
	db        Pinger
	repo      EventRepository
	natsConn  *nats.Conn
	clock     clockwork.Clock
	threshold time.Duration // How long without events before unhealthy
	maxQueue  int
}

func NewHealthChecker(relay *Relay, listener interface{ Running() bool }, db Pinger, repo EventRepository, natsConn *nats.Conn, clock clockwork.Clock, threshold time.Duration) *HealthChecker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthChecker{
		relay:     relay,
		listener:  listener,
		db:        db,
		repo:      repo,
		natsConn:  natsConn,
		clock:     clock,
		threshold: threshold,
		maxQueue:  1000,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	status.EventsProcessed, status.LastEventTime = h.relay.Stats()

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.natsConn != nil {
		status.NATSConnected = h.natsConn.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.ListenerActive = h.listener != nil && h.listener.Running()
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.repo.CountPending(ctx)
		if err != nil {
			status.Errors = append(status.Errors, err.Error())
		} else {
			status.PendingEvents = pending
			if pending > h.maxQueue {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	// a backlog that is not draining
	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		since := h.clock.Since(status.LastEventTime)
		if since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

package round

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type coordinatorKey struct {
	sessionID uuid.UUID
	playerID  string
}

type hosted struct {
	coordinator *Coordinator
	cancel      context.CancelFunc
	done        chan struct{}
}

// Host runs at most one coordinator per (session, player) in this process.
type Host struct {
	store     Store
	questions QuestionSource
	ledger    Ledger
	clock     Clock
	cfg       Config

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	// Track running coordinators to prevent duplicate machines for one seat
	inFlight   map[coordinatorKey]*hosted
	inFlightMu sync.Mutex
}

// NewHost creates a Host whose coordinators live until Shutdown.
func NewHost(st Store, qs QuestionSource, ledger Ledger, clock Clock, cfg Config) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		store:     st,
		questions: qs,
		ledger:    ledger,
		clock:     clock,
		cfg:       cfg,
		baseCtx:   ctx,
		stop:      cancel,
		inFlight:  make(map[coordinatorKey]*hosted),
	}
}

// Attach returns the running coordinator for the seat, starting one if needed.
func (h *Host) Attach(sessionID uuid.UUID, playerID string) *Coordinator {
	key := coordinatorKey{sessionID: sessionID, playerID: playerID}

	h.inFlightMu.Lock()
	defer h.inFlightMu.Unlock()

	if running, ok := h.inFlight[key]; ok {
		select {
		case <-running.coordinator.Done():
			// Exited but not yet unregistered; start a fresh one below.
		default:
			return running.coordinator
		}
	}

	ctx, cancel := context.WithCancel(h.baseCtx)
	entry := &hosted{
		coordinator: NewCoordinator(sessionID, playerID, h.store, h.questions, h.ledger, h.clock, h.cfg),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	h.inFlight[key] = entry

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(entry.done)
		defer cancel()

		err := entry.coordinator.Run(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrSessionGone):
			log.Info().
				Str("session_id", sessionID.String()).
				Str("player_id", playerID).
				Msg("session deleted, coordinator stopped")
		default:
			log.Error().
				Err(err).
				Str("session_id", sessionID.String()).
				Str("player_id", playerID).
				Msg("coordinator stopped with error")
		}

		h.inFlightMu.Lock()
		if h.inFlight[key] == entry {
			delete(h.inFlight, key)
		}
		h.inFlightMu.Unlock()
	}()

	log.Debug().
		Str("session_id", sessionID.String()).
		Str("player_id", playerID).
		Msg("attached coordinator")
	return entry.coordinator
}

// Lookup returns the running coordinator for the seat, if any.
func (h *Host) Lookup(sessionID uuid.UUID, playerID string) (*Coordinator, bool) {
	h.inFlightMu.Lock()
	defer h.inFlightMu.Unlock()
	running, ok := h.inFlight[coordinatorKey{sessionID: sessionID, playerID: playerID}]
	if !ok {
		return nil, false
	}
	return running.coordinator, true
}

// Detach stops the seat's coordinator and waits for it to exit.
func (h *Host) Detach(sessionID uuid.UUID, playerID string) {
	key := coordinatorKey{sessionID: sessionID, playerID: playerID}

	h.inFlightMu.Lock()
	running, ok := h.inFlight[key]
	if ok {
		delete(h.inFlight, key)
	}
	h.inFlightMu.Unlock()

	if !ok {
		return
	}
	running.cancel()
	<-running.done
}

// Running reports how many coordinators are live.
func (h *Host) Running() int {
	h.inFlightMu.Lock()
	defer h.inFlightMu.Unlock()
	return len(h.inFlight)
}

// Shutdown cancels every coordinator and waits for them.
func (h *Host) Shutdown() {
	h.stop()
	h.wg.Wait()
	log.Info().Msg("round host shut down")
}

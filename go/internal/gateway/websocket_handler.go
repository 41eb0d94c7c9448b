package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/round"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/rs/zerolog/log"
)

const submitTimeout = 5 * time.Second

// SessionProvider reads sessions for the gateway
type SessionProvider interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListActive(ctx context.Context) ([]models.Session, error)
}

type seatKey struct {
	sessionID uuid.UUID
	playerID  string
}

// seat is one player's coordinator shared by all of that player's sockets.
type seat struct {
	coordinator *round.Coordinator
	conns       int
	unsubscribe func()
	stop        chan struct{}
}

// WebSocketHandler handles WebSocket upgrade requests for session connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	sessions          SessionProvider
	host              *round.Host

	mu    sync.Mutex
	seats map[seatKey]*seat
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, sessions SessionProvider, host *round.Host) *WebSocketHandler {
	h := &WebSocketHandler{
		connectionManager: cm,
		sessions:          sessions,
		host:              host,
		seats:             make(map[seatKey]*seat),
	}
	cm.SetHandlers(h.handleMessage, h.handleDisconnect)
	return h
}

// HandleSessionConnection handles GET /ws/session?session_id=...&player_id=...
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	sessionIDStr := r.URL.Query().Get("session_id")
	if sessionIDStr == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		http.Error(w, "invalid session_id format", http.StatusBadRequest)
		return
	}

	// In production, this would come from an auth token
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		http.Error(w, "player_id is required", http.StatusBadRequest)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to load session")
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if !session.HasPlayer(playerID) {
		http.Error(w, "player is not seated in this session", http.StatusForbidden)
		return
	}

	key := seatKey{sessionID: sessionID, playerID: playerID}
	coordinator := h.join(key)

	conn, err := h.connectionManager.UpgradeConnection(w, r, playerID, sessionID)
	if err != nil {
		h.release(key)
		log.Error().
			Err(err).
			Str("session_id", sessionID.String()).
			Str("player_id", playerID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	h.connectionManager.SendTo(conn, snapshotMessage(coordinator.Snapshot()))
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// join attaches the seat's coordinator on its first connection. A seat whose
// coordinator has exited is replaced; sockets still open on it move over to
// the new coordinator.
func (h *WebSocketHandler) join(key seatKey) *round.Coordinator {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := 1
	if s, ok := h.seats[key]; ok {
		select {
		case <-s.coordinator.Done():
			close(s.stop)
			s.unsubscribe()
			conns += s.conns
			log.Debug().
				Str("session_id", key.sessionID.String()).
				Str("player_id", key.playerID).
				Msg("replacing finished coordinator")
		default:
			s.conns++
			return s.coordinator
		}
	}

	coordinator := h.host.Attach(key.sessionID, key.playerID)
	updates, unsubscribe := coordinator.Subscribe()
	s := &seat{
		coordinator: coordinator,
		conns:       conns,
		unsubscribe: unsubscribe,
		stop:        make(chan struct{}),
	}
	h.seats[key] = s
	go h.forward(key, coordinator, updates, s.stop)
	return coordinator
}

// release detaches the seat's coordinator once its last connection is gone.
func (h *WebSocketHandler) release(key seatKey) {
	h.mu.Lock()
	s, ok := h.seats[key]
	if !ok {
		h.mu.Unlock()
		return
	}
	s.conns--
	if s.conns > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.seats, key)
	h.mu.Unlock()

	close(s.stop)
	s.unsubscribe()
	h.host.Detach(key.sessionID, key.playerID)

	log.Debug().
		Str("session_id", key.sessionID.String()).
		Str("player_id", key.playerID).
		Msg("last connection left, coordinator detached")
}

func (h *WebSocketHandler) forward(key seatKey, coordinator *round.Coordinator, updates <-chan round.Snapshot, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case snap := <-updates:
			h.connectionManager.BroadcastToPlayer(key.sessionID, key.playerID, snapshotMessage(snap))
		case <-coordinator.Done():
			h.connectionManager.BroadcastToPlayer(key.sessionID, key.playerID, snapshotMessage(coordinator.Snapshot()))
			return
		}
	}
}

func (h *WebSocketHandler) coordinatorFor(key seatKey) (*round.Coordinator, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.seats[key]
	if !ok {
		return nil, false
	}
	return s.coordinator, true
}

func (h *WebSocketHandler) handleDisconnect(conn *Connection) {
	h.release(seatKey{sessionID: conn.SessionID, playerID: conn.PlayerID})
}

func (h *WebSocketHandler) handleMessage(conn *Connection, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.connectionManager.SendTo(conn, errorMessage("malformed message"))
		return
	}

	switch msg.Type {
	case MessageTypeSubmitAnswer:
		h.submitAnswer(conn, msg)
	default:
		h.connectionManager.SendTo(conn, errorMessage("unknown message type "+string(msg.Type)))
	}
}

func (h *WebSocketHandler) submitAnswer(conn *Connection, msg ClientMessage) {
	coordinator, ok := h.coordinatorFor(seatKey{sessionID: conn.SessionID, playerID: conn.PlayerID})
	if !ok {
		h.connectionManager.SendTo(conn, errorMessage("no coordinator for this seat"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	answer, err := coordinator.SubmitAnswer(ctx, msg.Answer)
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", conn.SessionID.String()).
			Str("player_id", conn.PlayerID).
			Msg("answer rejected")
		h.connectionManager.SendTo(conn, errorMessage(err.Error()))
		return
	}

	h.connectionManager.SendTo(conn, &ServerMessage{
		Type: MessageTypeAnswerResult,
		Answer: &AnswerResult{
			Round:      answer.RoundNumber,
			AnswerText: answer.AnswerText,
			TimeLeft:   answer.TimeLeftAtSubmission,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const inviteImageSize = 256

// SessionStateResponse is the public view of a session
type SessionStateResponse struct {
	SessionID    string                 `json:"session_id"`
	HostID       string                 `json:"host_id"`
	Status       models.SessionStatus   `json:"status"`
	Players      []string               `json:"players"`
	CurrentRound int                    `json:"current_round"`
	RoundCount   int                    `json:"round_count"`
	Question     models.QuestionContext `json:"question"`
	TimeLeft     int                    `json:"time_left"`
	Scores       models.Scores          `json:"scores"`
	LastAction   time.Time              `json:"last_action_time"`
}

// SessionSummary represents a summary of an active session
type SessionSummary struct {
	SessionID    string   `json:"session_id"`
	HostID       string   `json:"host_id"`
	Players      []string `json:"players"`
	CurrentRound int      `json:"current_round"`
	RoundCount   int      `json:"round_count"`
}

// StateHandler handles HTTP requests for session state
type StateHandler struct {
	sessions SessionProvider
	baseURL  string
}

// NewStateHandler creates a new state handler. baseURL prefixes invite links.
func NewStateHandler(sessions SessionProvider, baseURL string) *StateHandler {
	return &StateHandler{sessions: sessions, baseURL: baseURL}
}

// HandleGetSessionState handles GET /api/sessions/{id}/state
func (h *StateHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	public := session.Public()
	writeJSON(w, http.StatusOK, SessionStateResponse{
		SessionID:    public.ID.String(),
		HostID:       public.HostID,
		Status:       public.Status,
		Players:      public.Players,
		CurrentRound: public.CurrentRound,
		RoundCount:   public.RoundCount(),
		Question:     public.Question,
		TimeLeft:     public.TimeLeft,
		Scores:       public.Scores,
		LastAction:   public.LastActionTime,
	})
}

// HandleGetActiveSessions handles GET /api/sessions/active
func (h *StateHandler) HandleGetActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListActive(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get active sessions")
		http.Error(w, "failed to get active sessions", http.StatusInternalServerError)
		return
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		summaries = append(summaries, SessionSummary{
			SessionID:    s.ID.String(),
			HostID:       s.HostID,
			Players:      s.Players,
			CurrentRound: s.CurrentRound,
			RoundCount:   s.RoundCount(),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// HandleGetInvite handles GET /api/sessions/{id}/invite.png.
// Only OPEN sessions can be joined, so other statuses get 409.
func (h *StateHandler) HandleGetInvite(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if session.Status != models.SessionStatusOpen {
		http.Error(w, "session is not open for joining", http.StatusConflict)
		return
	}

	png, err := qrcode.Encode(h.InviteURL(session.ID), qrcode.Medium, inviteImageSize)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to encode invite")
		http.Error(w, "failed to encode invite", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// InviteURL is the link encoded in a session's invite QR code.
func (h *StateHandler) InviteURL(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s/join?session_id=%s", h.baseURL, url.QueryEscape(sessionID.String()))
}

func (h *StateHandler) loadSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session ID format", http.StatusBadRequest)
		return nil, false
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to get session state")
		http.Error(w, "failed to get session state", http.StatusInternalServerError)
		return nil, false
	}
	return session, true
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/active", h.HandleGetActiveSessions)
		r.Get("/{id}/state", h.HandleGetSessionState)
		r.Get("/{id}/invite.png", h.HandleGetInvite)
	})
}

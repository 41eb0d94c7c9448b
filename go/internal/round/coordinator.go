package round

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/answers"
	"github.com/mcdev12/quizduel/go/internal/events"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/rs/zerolog/log"
)

// Store is what a coordinator reads, writes and watches.
type Store interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	UpdateSession(ctx context.Context, id uuid.UUID, pre store.Precondition, changes store.SessionChanges) (*models.Session, error)
	ListAnswers(ctx context.Context, sessionID uuid.UUID, round *int) ([]models.Answer, error)
	Watch(ctx context.Context, sessionID uuid.UUID) (<-chan events.Change, error)
}

// QuestionSource resolves the next round's question.
type QuestionSource interface {
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
}

// Ledger records answers.
type Ledger interface {
	Submit(ctx context.Context, req answers.SubmitAnswerRequest) (*models.Answer, error)
}

// Coordinator is one participant's round state machine for one session.
// Several coordinators for the same session race to close each round; the
// store's conditional update lets exactly one of them advance it.
type Coordinator struct {
	sessionID  uuid.UUID
	playerID   string
	store      Store
	questions  QuestionSource
	ledger     Ledger
	clock      Clock
	cfg        Config
	instanceID string

	mu           sync.Mutex
	state        State
	session      *models.Session
	answers      []models.Answer
	pauseUntil   time.Time
	deadline     time.Time
	advancedFrom int
	completedAt  time.Time

	listenersMu sync.Mutex
	listeners   map[chan Snapshot]struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// NewCoordinator creates a coordinator for playerID in sessionID.
func NewCoordinator(sessionID uuid.UUID, playerID string, st Store, qs QuestionSource, ledger Ledger, clock Clock, cfg Config) *Coordinator {
	return &Coordinator{
		sessionID:    sessionID,
		playerID:     playerID,
		store:        st,
		questions:    qs,
		ledger:       ledger,
		clock:        clock,
		cfg:          cfg,
		instanceID:   uuid.New().String()[:8],
		state:        StateLobby,
		advancedFrom: -1,
		listeners:    make(map[chan Snapshot]struct{}),
		done:         make(chan struct{}),
	}
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Run drives the state machine until the match completes, the session is
// deleted (ErrSessionGone) or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.doneOnce.Do(func() { close(c.done) })

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	changes, err := c.store.Watch(watchCtx, c.sessionID)
	if err != nil {
		return fmt.Errorf("watch session: %w", err)
	}

	if err := c.refresh(ctx); err != nil {
		return err
	}

	ticker := c.clock.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	log.Info().
		Str("session_id", c.sessionID.String()).
		Str("player_id", c.playerID).
		Str("instance", c.instanceID).
		Msg("round coordinator started")

	lastSync := c.clock.Now()
	for {
		if c.finished() {
			log.Info().
				Str("session_id", c.sessionID.String()).
				Str("player_id", c.playerID).
				Str("instance", c.instanceID).
				Msg("match complete, coordinator exiting")
			return nil
		}

		select {
		case <-ctx.Done():
			return nil

		case change, ok := <-changes:
			if !ok {
				// Watch ended without us cancelling it; fall back to resync ticks.
				changes = nil
				log.Warn().
					Str("session_id", c.sessionID.String()).
					Str("instance", c.instanceID).
					Msg("change stream closed, relying on resync")
				continue
			}
			if change.Type == events.EventTypeSessionDeleted {
				return ErrSessionGone
			}
			if err := c.refresh(ctx); err != nil {
				return err
			}
			lastSync = c.clock.Now()

		case <-ticker.Chan():
			if c.cfg.ResyncInterval > 0 && c.clock.Now().Sub(lastSync) >= c.cfg.ResyncInterval {
				if err := c.refresh(ctx); err != nil {
					return err
				}
				lastSync = c.clock.Now()
				continue
			}
			if err := c.evaluate(ctx); err != nil {
				return err
			}
			c.publish()
		}
	}
}

func (c *Coordinator) finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateMatchComplete {
		return false
	}
	return c.clock.Now().Sub(c.completedAt) >= c.cfg.CompleteLinger
}

// refresh re-reads the session and the current round's answers, then re-evaluates.
func (c *Coordinator) refresh(ctx context.Context) error {
	session, err := c.store.GetSession(ctx, c.sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionGone
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", c.sessionID.String()).
			Str("instance", c.instanceID).
			Msg("failed to read session, keeping last view")
		return nil
	}

	round := session.CurrentRound
	roundAnswers, err := c.store.ListAnswers(ctx, c.sessionID, &round)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", c.sessionID.String()).
			Int("round", round).
			Msg("failed to list answers, keeping last view")
		return nil
	}

	c.observe(session, roundAnswers)
	if err := c.evaluate(ctx); err != nil {
		return err
	}
	c.publish()
	return nil
}

// observe folds a fresh read into local state. Reads older than what we
// already hold are dropped so a lagging replica cannot rewind the view.
func (c *Coordinator) observe(session *models.Session, roundAnswers []models.Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isStale(session) {
		return
	}

	now := c.clock.Now()
	prev := c.session
	c.session = session
	c.answers = roundAnswers

	switch session.Status {
	case models.SessionStatusOpen:
		c.state = StateLobby

	case models.SessionStatusFinished:
		if c.state != StateMatchComplete {
			c.state = StateMatchComplete
			c.completedAt = now
			log.Info().
				Str("session_id", c.sessionID.String()).
				Str("player_id", c.playerID).
				Interface("scores", session.Scores).
				Msg("observed match finished")
		}

	case models.SessionStatusActive:
		newRound := prev == nil || prev.Status != models.SessionStatusActive || prev.CurrentRound != session.CurrentRound
		if !newRound {
			return
		}
		start := c.roundAnchor(session, now)
		c.pauseUntil = start
		if session.CurrentRound > 0 {
			c.pauseUntil = start.Add(c.cfg.TransitionPause)
		}
		c.deadline = c.pauseUntil.Add(c.cfg.RoundDuration)
		c.advancedFrom = -1
		if now.Before(c.pauseUntil) {
			c.state = StateTransitioning
		} else {
			c.state = StateAwaitingAnswers
		}
		log.Debug().
			Str("session_id", c.sessionID.String()).
			Str("player_id", c.playerID).
			Int("round", session.CurrentRound).
			Time("deadline", c.deadline).
			Msg("observed new round")
	}
}

func (c *Coordinator) isStale(session *models.Session) bool {
	if c.session == nil {
		return false
	}
	if c.session.Status == session.Status {
		return session.CurrentRound < c.session.CurrentRound
	}
	return !c.session.Status.CanTransitionTo(session.Status)
}

// roundAnchor picks the instant the round opened. RoundStartedAt is written
// only by the activation or advance that opened the round, so every observer
// derives the same deadline however late it attaches. Implausible values fall
// back to now.
func (c *Coordinator) roundAnchor(session *models.Session, now time.Time) time.Time {
	start := session.RoundStartedAt
	if start.IsZero() || start.After(now) || now.Sub(start) > c.cfg.RoundDuration+c.cfg.TransitionPause {
		return now
	}
	return start
}

// evaluate applies the lock conditions and performs the advance when due.
func (c *Coordinator) evaluate(ctx context.Context) error {
	c.mu.Lock()
	now := c.clock.Now()

	if c.state == StateTransitioning && c.advancedFrom < 0 && !now.Before(c.pauseUntil) {
		c.state = StateAwaitingAnswers
	}

	if c.state == StateAwaitingAnswers {
		allIn := answers.AllAnswered(c.session, c.answers, c.session.CurrentRound)
		timedOut := !now.Before(c.deadline)
		if allIn || timedOut {
			c.state = StateRoundLocked
			log.Info().
				Str("session_id", c.sessionID.String()).
				Str("player_id", c.playerID).
				Int("round", c.session.CurrentRound).
				Bool("all_answered", allIn).
				Bool("timed_out", timedOut).
				Msg("round locked")
		}
	}

	if c.state != StateRoundLocked {
		c.mu.Unlock()
		return nil
	}

	session := c.session.Clone()
	c.state = StateTransitioning
	c.mu.Unlock()

	return c.advance(ctx, session)
}

// advance closes session.CurrentRound with a conditional write. Losing the
// race is not an error: the winner's state arrives through refresh.
func (c *Coordinator) advance(ctx context.Context, session *models.Session) error {
	closing := session.CurrentRound
	pre := store.Precondition{
		CurrentRound: store.IntPtr(closing),
		Status:       store.StatusPtr(models.SessionStatusActive),
	}

	var changes store.SessionChanges
	if session.IsLastRound(closing) {
		changes = store.SessionChanges{
			Status:   store.StatusPtr(models.SessionStatusFinished),
			TimeLeft: store.IntPtr(0),
		}
	} else {
		next := closing + 1
		q, err := c.questions.GetQuestion(ctx, session.SelectedQuestions[next])
		if err != nil {
			c.relock(err, closing)
			return nil
		}
		qc := q.Context()
		changes = store.SessionChanges{
			CurrentRound: store.IntPtr(next),
			TimeLeft:     store.IntPtr(int(c.cfg.RoundDuration / time.Second)),
			Question:     &qc,
		}
	}

	_, err := c.store.UpdateSession(ctx, c.sessionID, pre, changes)
	switch {
	case err == nil:
		c.mu.Lock()
		c.advancedFrom = closing
		c.mu.Unlock()
		log.Info().
			Str("session_id", c.sessionID.String()).
			Str("player_id", c.playerID).
			Str("instance", c.instanceID).
			Int("round", closing).
			Str("event_type", changes.EventType()).
			Msg("won round advance")
		return nil

	case errors.Is(err, store.ErrPreconditionFailed):
		c.mu.Lock()
		c.advancedFrom = closing
		c.mu.Unlock()
		log.Debug().
			Str("session_id", c.sessionID.String()).
			Str("player_id", c.playerID).
			Str("instance", c.instanceID).
			Int("round", closing).
			Msg("lost round advance, adopting current state")
		return c.refresh(ctx)

	case errors.Is(err, store.ErrNotFound):
		return ErrSessionGone

	default:
		c.relock(err, closing)
		return nil
	}
}

// relock puts the machine back to ROUND_LOCKED so the next tick retries.
func (c *Coordinator) relock(err error, closing int) {
	c.mu.Lock()
	if c.session != nil && c.session.CurrentRound == closing && c.state == StateTransitioning {
		c.state = StateRoundLocked
	}
	c.mu.Unlock()
	log.Error().
		Err(err).
		Str("session_id", c.sessionID.String()).
		Str("instance", c.instanceID).
		Int("round", closing).
		Msg("round advance failed, will retry")
}

// SubmitAnswer records this player's answer for the round currently on screen.
// A repeated submission returns the stored answer without error.
func (c *Coordinator) SubmitAnswer(ctx context.Context, answerText string) (*models.Answer, error) {
	c.mu.Lock()
	if c.state != StateAwaitingAnswers || c.session == nil {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: state %s", ErrNotAccepting, state)
	}
	round := c.session.CurrentRound
	timeLeft := c.secondsLeftLocked(c.clock.Now())
	c.mu.Unlock()

	answer, err := c.ledger.Submit(ctx, answers.SubmitAnswerRequest{
		SessionID:   c.sessionID,
		PlayerID:    c.playerID,
		RoundNumber: round,
		AnswerText:  answerText,
		TimeLeft:    timeLeft,
	})
	if errors.Is(err, answers.ErrDuplicateAnswer) {
		existing, listErr := c.store.ListAnswers(ctx, c.sessionID, &round)
		if listErr != nil {
			return nil, fmt.Errorf("failed to load existing answer: %w", listErr)
		}
		for i := range existing {
			if existing[i].PlayerID == c.playerID {
				return &existing[i], nil
			}
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return answer, nil
}

func (c *Coordinator) secondsLeftLocked(now time.Time) int {
	if c.state == StateMatchComplete || c.state == StateLobby {
		return 0
	}
	remaining := c.deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	secs := int((remaining + time.Second - 1) / time.Second)
	if max := int(c.cfg.RoundDuration / time.Second); secs > max {
		secs = max
	}
	return secs
}

// Snapshot returns the coordinator's current local view.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID: c.sessionID,
		PlayerID:  c.playerID,
		State:     c.state,
	}
	if c.session == nil {
		return snap
	}
	snap.Status = c.session.Status
	snap.Round = c.session.CurrentRound
	snap.RoundCount = c.session.RoundCount()
	snap.SecondsLeft = c.secondsLeftLocked(c.clock.Now())
	snap.Question = c.session.Question
	snap.Players = append([]string(nil), c.session.Players...)
	snap.Scores = c.session.Scores.Clone()
	snap.Answered = answers.HasAnswered(c.answers, c.playerID, c.session.CurrentRound)
	snap.Answers = len(c.answers)
	return snap
}

// Subscribe registers a listener. Slow listeners only see the latest snapshot.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.listenersMu.Lock()
	c.listeners[ch] = struct{}{}
	c.listenersMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.listenersMu.Lock()
			delete(c.listeners, ch)
			c.listenersMu.Unlock()
		})
	}
}

func (c *Coordinator) publish() {
	snap := c.Snapshot()

	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for ch := range c.listeners {
		select {
		case ch <- snap:
		default:
			// Replace the stale snapshot with the fresh one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// SessionID returns the session this coordinator follows.
func (c *Coordinator) SessionID() uuid.UUID { return c.sessionID }

// PlayerID returns the player this coordinator acts for.
func (c *Coordinator) PlayerID() string { return c.playerID }

package session

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config holds the engine's tunable knobs.
type Config struct {
	RoundSeconds      int           // full duration of one ACTIVE round
	PointsPerCategory int           // fixed per-category score contribution
	TaxRate           float64       // house cut fraction taken from the pot
	GraceDelay        time.Duration // settle -> removal delay for late UI animations
	XPWin             int           // experience credited to the winner
	XPParticipation   int           // experience credited to every other identified player
}

// DefaultConfig mirrors production defaults.
func DefaultConfig() Config {
	return Config{
		RoundSeconds:      60,
		PointsPerCategory: 10,
		TaxRate:           0.05,
		GraceDelay:        10 * time.Second,
		XPWin:             25,
		XPParticipation:   10,
	}
}

// Engine owns every live session from match formation through settlement.
// All session state is mutated under the session's own mutex; ledger,
// history and achievement calls are issued outside that critical section so
// a slow collaborator can never stall a countdown or another session.
type Engine struct {
	store *Store

	bindMu   sync.Mutex
	bindings map[uuid.UUID]uuid.UUID // playerID -> sessionID, for reconnection only

	ledger       Ledger
	history      HistoryRecorder
	achievements AchievementService
	score        ScoreFunc

	cfg    Config
	logger *logrus.Logger

	// OnSessionClosed fires after a session is removed, e.g. so the room
	// directory entry can be torn down. Must not call back into the engine.
	OnSessionClosed func(sessionID uuid.UUID)
}

// NewEngine wires an engine with its collaborators. A nil scorer gets the
// default NPAT scorer built from cfg.PointsPerCategory.
func NewEngine(cfg Config, ledger Ledger, history HistoryRecorder, achievements AchievementService, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		store:        NewStore(),
		bindings:     make(map[uuid.UUID]uuid.UUID),
		ledger:       ledger,
		history:      history,
		achievements: achievements,
		score:        NPATScorer(cfg.PointsPerCategory),
		cfg:          cfg,
		logger:       logger,
	}
}

// SetScorer overrides the validation hook; game types other than NPAT plug
// their scoring in here.
func (e *Engine) SetScorer(fn ScoreFunc) {
	if fn != nil {
		e.score = fn
	}
}

// Session returns the live session with the given ID, if any.
func (e *Engine) Session(id uuid.UUID) (*Session, bool) {
	return e.store.Get(id)
}

// CreateSession registers a new round in WAITING_START with the given
// ordered participants and binds every identified player to it for
// reconnection.
func (e *Engine) CreateSession(sessionID uuid.UUID, gameType string, stakeTier int, players []*Participant) *Session {
	s := &Session{
		ID:        sessionID,
		GameType:  gameType,
		StakeTier: stakeTier,
		Phase:     PhaseWaitingStart,
		Players:   players,
	}
	e.store.Add(s)

	e.bindMu.Lock()
	for _, p := range players {
		if p.Identified() {
			e.bindings[*p.PlayerID] = sessionID
		}
	}
	e.bindMu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"session":   sessionID,
		"game_type": gameType,
		"stake":     stakeTier,
		"players":   len(players),
	}).Info("Session created")
	return s
}

// AddParticipant joins a late arrival to a room that has not started yet.
// Returns false once the round has left WAITING_START.
func (e *Engine) AddParticipant(sessionID uuid.UUID, p *Participant) bool {
	s, ok := e.store.Get(sessionID)
	if !ok {
		return false
	}
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Phase != PhaseWaitingStart {
		return false
	}
	if s.participantByConnUnsafe(p.ConnID) != nil {
		return false
	}
	s.Players = append(s.Players, p)
	if p.Identified() {
		e.bindMu.Lock()
		e.bindings[*p.PlayerID] = sessionID
		e.bindMu.Unlock()
	}
	return true
}

// StartRound drives WAITING_START -> ACTIVE on behalf of connID, which must
// be seated in the session: session IDs leak through room listings, so a
// request from any other connection is dropped. The participant list is
// snapshotted as it stands now (rooms may have accrued joiners beyond the
// original pair). For staked rounds the escrow runs against the ledger
// without the session lock held; the phase is re-validated once the call
// returns. Any escrow failure is fatal to the session: round_error is
// broadcast and the session is discarded without ever reaching ACTIVE.
func (e *Engine) StartRound(ctx context.Context, sessionID, connID uuid.UUID, stakeTier int) {
	s, ok := e.store.Get(sessionID)
	if !ok {
		return
	}

	s.Mu.Lock()
	if s.Phase != PhaseWaitingStart || s.escrowPending {
		s.Mu.Unlock()
		return
	}
	if s.participantByConnUnsafe(connID) == nil {
		e.logger.WithField("session", sessionID).Warnf("start_round from connection %s outside the session, ignoring", connID)
		s.Mu.Unlock()
		return
	}
	if stakeTier != s.StakeTier {
		// Client disagrees with the agreed tier; low-stakes rejected op.
		e.logger.WithField("session", sessionID).Debugf("start_round stake mismatch: got %d want %d", stakeTier, s.StakeTier)
		s.Mu.Unlock()
		return
	}

	if s.StakeTier > 0 {
		staked := make([]uuid.UUID, 0, len(s.Players))
		for _, p := range s.Players {
			if !p.Identified() {
				e.abortUnsafe(s, "staked rounds require every player to be signed in")
				s.Mu.Unlock()
				e.afterClose(s.ID)
				return
			}
			staked = append(staked, *p.PlayerID)
		}

		s.escrowPending = true
		s.Mu.Unlock()

		err := e.ledger.EscrowStakes(ctx, staked, s.StakeTier)

		s.Mu.Lock()
		s.escrowPending = false
		if s.Phase != PhaseWaitingStart {
			s.Mu.Unlock()
			e.logger.WithField("session", sessionID).Error("session left WAITING_START during escrow; stakes may need manual reconciliation")
			return
		}
		if err != nil {
			msg := "stake escrow failed"
			if errors.Is(err, ErrInsufficientFunds) {
				msg = "a player has insufficient funds for this stake"
			}
			e.logger.WithField("session", sessionID).Warnf("escrow rejected: %v", err)
			e.abortUnsafe(s, msg)
			s.Mu.Unlock()
			e.afterClose(s.ID)
			return
		}
	}

	prompt := string(promptAlphabet[rand.Intn(len(promptAlphabet))])
	s.Prompt = prompt
	s.Phase = PhaseActive
	s.StartedAt = time.Now()
	s.RemainingSeconds = e.cfg.RoundSeconds
	s.stopTick = make(chan struct{})
	go e.runCountdown(s, s.stopTick)

	s.fireAllUnsafe(Event{
		Type:            EventRoundStarted,
		SessionID:       s.ID.String(),
		Prompt:          s.Prompt,
		DurationSeconds: e.cfg.RoundSeconds,
		StakeTier:       s.StakeTier,
	})
	s.Mu.Unlock()

	e.logger.WithFields(logrus.Fields{"session": sessionID, "prompt": prompt}).Info("Round started")
}

// runCountdown ticks once per second while the session stays ACTIVE,
// broadcasting timer_update and settling when the clock reaches zero.
// stop is closed on every transition out of ACTIVE.
func (e *Engine) runCountdown(s *Session, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Mu.Lock()
			if s.Phase != PhaseActive {
				s.Mu.Unlock()
				return
			}
			s.RemainingSeconds--
			if s.RemainingSeconds <= 0 {
				e.settleUnsafe(s, "Time is up!")
				s.Mu.Unlock()
				return
			}
			rem := s.RemainingSeconds
			s.fireAllUnsafe(Event{Type: EventTimerUpdate, RemainingSeconds: &rem})
			s.Mu.Unlock()
		}
	}
}

// SubmitAnswers validates and scores one participant's submission. Each
// participant may submit at most once; later submissions and submissions
// outside ACTIVE are ignored. When the last participant submits, the round
// settles immediately without waiting for the clock.
func (e *Engine) SubmitAnswers(sessionID, connID uuid.UUID, answers map[string]string) {
	s, ok := e.store.Get(sessionID)
	if !ok {
		return
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.Phase != PhaseActive {
		return
	}
	p := s.participantByConnUnsafe(connID)
	if p == nil || p.HasSubmitted {
		return
	}

	p.Score = e.score(s.Prompt, answers)
	p.HasSubmitted = true

	score := p.Score
	s.fireConnUnsafe(connID, Event{
		Type:   EventSubmissionReceived,
		Status: "accepted",
		Score:  &score,
	})

	if s.allSubmittedUnsafe() {
		e.settleUnsafe(s, "All players submitted")
	}
}

// settlement carries everything finalize needs so it can run without
// touching live session state.
type settlement struct {
	sessionID    uuid.UUID
	gameType     string
	stake        int
	participants int
	duration     time.Duration
	playerIDs    []uuid.UUID
	winnerPlayer *uuid.UUID
	winningScore int
}

// settleUnsafe drives ACTIVE -> SETTLING: stops the countdown, picks the
// winner, broadcasts the final scoreboard and hands payout/persistence to a
// goroutine. Assumes Mu is held and phase is ACTIVE.
func (e *Engine) settleUnsafe(s *Session, reason string) {
	if s.Phase != PhaseActive {
		return
	}
	s.stopCountdownUnsafe()
	s.Phase = PhaseSettling

	winner := e.winnerUnsafe(s)

	scores := make([]EventScore, 0, len(s.Players))
	for _, p := range s.Players {
		scores = append(scores, EventScore{ConnectionID: p.ConnID, Score: p.Score})
	}

	ev := Event{
		Type:      EventRoundOver,
		SessionID: s.ID.String(),
		Message:   reason,
		Scores:    scores,
	}
	if winner != nil {
		ev.Winner = &EventPlayer{ConnectionID: winner.ConnID, PlayerID: winner.PlayerID, Score: winner.Score}
	}
	s.fireAllUnsafe(ev)

	snap := settlement{
		sessionID:    s.ID,
		gameType:     s.GameType,
		stake:        s.StakeTier,
		participants: len(s.Players),
		duration:     time.Since(s.StartedAt),
	}
	for _, p := range s.Players {
		if p.Identified() {
			snap.playerIDs = append(snap.playerIDs, *p.PlayerID)
		}
	}
	if winner != nil {
		snap.winnerPlayer = winner.PlayerID
		snap.winningScore = winner.Score
	}

	// Payout, history and achievements happen off the critical path; their
	// failures degrade to logging and never corrupt the session phase.
	go e.finalize(s, snap)

	s.closeTimer = time.AfterFunc(e.cfg.GraceDelay, func() {
		e.closeSession(s)
	})
}

// winnerUnsafe picks the participant with the strictly highest positive
// score; the first participant in list order wins ties. A round where
// nobody scored has no winner. Assumes Mu is held.
func (e *Engine) winnerUnsafe(s *Session) *Participant {
	var best *Participant
	for _, p := range s.Players {
		if p.Score > 0 && (best == nil || p.Score > best.Score) {
			best = p
		}
	}
	return best
}

// finalize performs the post-settlement side effects: winner payout, XP,
// match-history append and achievement re-evaluation. Every failure here is
// logged and swallowed; the round already reported its scores.
func (e *Engine) finalize(s *Session, snap settlement) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	log := e.logger.WithField("session", snap.sessionID)

	if snap.stake > 0 && snap.winnerPlayer != nil {
		pot := snap.stake * snap.participants
		houseCut := int(math.Floor(float64(pot) * e.cfg.TaxRate))
		payout := pot - houseCut
		if err := e.ledger.CreditWinnings(ctx, *snap.winnerPlayer, payout); err != nil {
			log.Errorf("winner payout of %d failed: %v", payout, err)
		} else {
			e.sendToPlayer(s, *snap.winnerPlayer, Event{Type: EventPayoutReceived, Amount: payout})
		}
	}

	for _, pid := range snap.playerIDs {
		xp := e.cfg.XPParticipation
		if snap.winnerPlayer != nil && pid == *snap.winnerPlayer {
			xp = e.cfg.XPWin
		}
		if err := e.ledger.AwardExperience(ctx, pid, xp); err != nil {
			log.Warnf("xp award for player %s failed: %v", pid, err)
		}
	}

	rec := MatchRecord{
		SessionID:    snap.sessionID,
		GameType:     snap.gameType,
		PlayerIDs:    snap.playerIDs,
		WinnerID:     snap.winnerPlayer,
		Stake:        snap.stake,
		WinningScore: snap.winningScore,
		Duration:     snap.duration,
	}
	if err := e.history.RecordMatch(ctx, rec); err != nil {
		log.Errorf("match history append failed: %v", err)
	}

	for _, pid := range snap.playerIDs {
		unlocked, err := e.achievements.Evaluate(ctx, pid)
		if err != nil {
			log.Warnf("achievement evaluation for player %s failed: %v", pid, err)
			continue
		}
		if len(unlocked) > 0 {
			e.sendToPlayer(s, pid, Event{Type: EventAchievementsUnlocked, Unlocked: unlocked})
		}
	}
}

// sendToPlayer delivers ev to the player's current connection, which may
// have changed since settlement began if they reconnected.
func (e *Engine) sendToPlayer(s *Session, playerID uuid.UUID, ev Event) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	p := s.participantByPlayerUnsafe(playerID)
	if p == nil {
		return
	}
	s.fireConnUnsafe(p.ConnID, ev)
}

// abortUnsafe discards a session that never reached ACTIVE: broadcasts
// round_error, invalidates bindings and removes it from the store. Assumes
// Mu is held; the caller must invoke afterClose once the lock is released.
func (e *Engine) abortUnsafe(s *Session, msg string) {
	s.fireAllUnsafe(Event{Type: EventRoundError, SessionID: s.ID.String(), Message: msg})
	s.stopCountdownUnsafe()
	s.Phase = PhaseClosed
	e.removeBindings(s.ID, s.Players)
	e.store.Delete(s.ID)
}

// closeSession finishes SETTLING -> CLOSED after the grace delay.
func (e *Engine) closeSession(s *Session) {
	s.Mu.Lock()
	if s.Phase == PhaseClosed {
		s.Mu.Unlock()
		return
	}
	s.stopCountdownUnsafe()
	s.Phase = PhaseClosed
	e.removeBindings(s.ID, s.Players)
	e.store.Delete(s.ID)
	s.Mu.Unlock()

	e.afterClose(s.ID)
	e.logger.WithField("session", s.ID).Info("Session closed")
}

// removeBindings drops reconnection bindings that still point at this
// session. A player may already be bound to a newer session; that binding
// is left untouched.
func (e *Engine) removeBindings(sessionID uuid.UUID, players []*Participant) {
	e.bindMu.Lock()
	defer e.bindMu.Unlock()
	for _, p := range players {
		if p.Identified() {
			if sid, ok := e.bindings[*p.PlayerID]; ok && sid == sessionID {
				delete(e.bindings, *p.PlayerID)
			}
		}
	}
}

// afterClose runs the teardown callback outside any session lock.
func (e *Engine) afterClose(sessionID uuid.UUID) {
	if e.OnSessionClosed != nil {
		e.OnSessionClosed(sessionID)
	}
}

// DropWaitingParticipant releases a disconnected connection's seat in any
// session still in WAITING_START. Sessions past that phase keep the slot so
// an identified player can reconnect. A session whose last participant
// leaves is closed on the spot. Returns the session the connection left.
func (e *Engine) DropWaitingParticipant(connID uuid.UUID) (uuid.UUID, bool) {
	for _, s := range e.store.All() {
		s.Mu.Lock()
		if s.Phase != PhaseWaitingStart {
			s.Mu.Unlock()
			continue
		}
		p := s.participantByConnUnsafe(connID)
		if p == nil {
			s.Mu.Unlock()
			continue
		}
		for i, q := range s.Players {
			if q == p {
				s.Players = append(s.Players[:i], s.Players[i+1:]...)
				break
			}
		}
		if p.Identified() {
			e.removeBindings(s.ID, []*Participant{p})
		}
		empty := len(s.Players) == 0
		if empty {
			s.Phase = PhaseClosed
			e.store.Delete(s.ID)
		}
		s.Mu.Unlock()

		if empty {
			e.afterClose(s.ID)
		}
		e.logger.WithFields(logrus.Fields{"session": s.ID, "conn": connID}).Info("Waiting participant left")
		return s.ID, true
	}
	return uuid.Nil, false
}

// HandleReconnect rebinds an identified player's participant slot to a new
// connection and replays the current phase snapshot to that connection
// only. No state is recomputed; this is purely a catch-up push. Returns
// false when the player has no live binding.
func (e *Engine) HandleReconnect(playerID, newConnID uuid.UUID) bool {
	e.bindMu.Lock()
	sid, ok := e.bindings[playerID]
	e.bindMu.Unlock()
	if !ok {
		return false
	}

	s, ok := e.store.Get(sid)
	if !ok {
		return false
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Phase == PhaseClosed {
		return false
	}
	p := s.participantByPlayerUnsafe(playerID)
	if p == nil {
		return false
	}
	p.ConnID = newConnID

	rem := s.RemainingSeconds
	s.fireConnUnsafe(newConnID, Event{
		Type:             EventRejoinRound,
		SessionID:        s.ID.String(),
		Prompt:           s.Prompt,
		RemainingSeconds: &rem,
		StakeTier:        s.StakeTier,
	})
	e.logger.WithFields(logrus.Fields{"session": sid, "player": playerID}).Info("Player rebound to session")
	return true
}

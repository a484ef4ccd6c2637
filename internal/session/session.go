package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle state of one round.
type Phase string

const (
	PhaseWaitingStart Phase = "WAITING_START"
	PhaseActive       Phase = "ACTIVE"
	PhaseSettling     Phase = "SETTLING"
	PhaseClosed       Phase = "CLOSED"
)

// Participant is one player's slot in a session. ConnID is mutable: a
// reconnecting identified player gets rebound to their new connection.
// PlayerID is nil for guests, who can neither be charged nor paid.
type Participant struct {
	ConnID       uuid.UUID
	PlayerID     *uuid.UUID
	Score        int
	HasSubmitted bool
}

// Identified reports whether the participant carries a durable identity.
func (p *Participant) Identified() bool {
	return p.PlayerID != nil
}

// Session holds the entire in-memory state for one round. All mutation goes
// through the engine while Mu is held; external I/O (escrow, payout,
// persistence) is never issued under the lock.
type Session struct {
	ID        uuid.UUID
	GameType  string
	StakeTier int

	Phase            Phase
	Prompt           string
	RemainingSeconds int
	StartedAt        time.Time

	// Players is ordered; ties at settlement break by this order.
	Players []*Participant

	Mu sync.Mutex

	// BroadcastFn sends ev to the given connections. It must not block and
	// must not call back into the session (it may run with Mu held).
	BroadcastFn func(connIDs []uuid.UUID, ev Event)

	// escrowPending guards against a concurrent second start_round while
	// the ledger call for the first is in flight (issued without the lock).
	escrowPending bool

	// stopTick, when non-nil, cancels the 1 Hz countdown goroutine. It is
	// closed on every path that leaves ACTIVE.
	stopTick chan struct{}

	// closeTimer schedules removal after the post-settlement grace delay.
	closeTimer *time.Timer
}

// participantByConnUnsafe finds the participant bound to connID.
// Assumes Mu is held.
func (s *Session) participantByConnUnsafe(connID uuid.UUID) *Participant {
	for _, p := range s.Players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

// participantByPlayerUnsafe finds the participant with the given identity.
// Assumes Mu is held.
func (s *Session) participantByPlayerUnsafe(playerID uuid.UUID) *Participant {
	for _, p := range s.Players {
		if p.PlayerID != nil && *p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

// allSubmittedUnsafe reports whether every participant has submitted.
// Assumes Mu is held.
func (s *Session) allSubmittedUnsafe() bool {
	for _, p := range s.Players {
		if !p.HasSubmitted {
			return false
		}
	}
	return len(s.Players) > 0
}

// connIDsUnsafe snapshots the current connection IDs. Assumes Mu is held.
func (s *Session) connIDsUnsafe() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.Players))
	for _, p := range s.Players {
		ids = append(ids, p.ConnID)
	}
	return ids
}

// fireAllUnsafe broadcasts ev to every participant's connection.
// Assumes Mu is held; BroadcastFn must not block.
func (s *Session) fireAllUnsafe(ev Event) {
	if s.BroadcastFn == nil {
		return
	}
	s.BroadcastFn(s.connIDsUnsafe(), ev)
}

// fireConnUnsafe sends ev to a single connection. Assumes Mu is held.
func (s *Session) fireConnUnsafe(connID uuid.UUID, ev Event) {
	if s.BroadcastFn == nil {
		return
	}
	s.BroadcastFn([]uuid.UUID{connID}, ev)
}

// stopCountdownUnsafe cancels the countdown goroutine if one is running.
// Assumes Mu is held.
func (s *Session) stopCountdownUnsafe() {
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
}

// Store tracks live sessions by ID.
type Store struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[uuid.UUID]*Session)}
}

// Add registers a session.
func (st *Store) Add(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

// Get returns the session with the given ID, if present.
func (st *Store) Get(id uuid.UUID) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// All snapshots the live sessions.
func (st *Store) All() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

// Delete removes a session; deleting an absent ID is a no-op.
func (st *Store) Delete(id uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

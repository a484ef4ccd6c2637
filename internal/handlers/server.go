package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/matchmaking"
	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/models"
	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/roomdir"
	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/session"
)

// matchMaxPlayers caps how many joiners a matchmade room can accrue before
// the round starts.
const matchMaxPlayers = 8

// GameServer glues the transport to the core: it owns the connection
// registry and matchmaking queue, and wires pairing events into the session
// engine and the room directory.
type GameServer struct {
	Logger   *logrus.Logger
	Registry *Registry
	Queue    *matchmaking.Queue
	Engine   *session.Engine
	Rooms    *roomdir.Directory
}

// NewGameServer wires the queue's pairing callback and the engine's
// teardown callback.
func NewGameServer(engine *session.Engine, rooms *roomdir.Directory, logger *logrus.Logger) *GameServer {
	if logger == nil {
		logger = logrus.New()
	}
	gs := &GameServer{
		Logger:   logger,
		Registry: NewRegistry(),
		Queue:    matchmaking.NewQueue(),
		Engine:   engine,
		Rooms:    rooms,
	}
	gs.Queue.OnMatch = gs.handleMatch
	engine.OnSessionClosed = gs.handleSessionClosed
	return gs
}

// broadcast delivers ev to the given connections. It may be invoked while a
// session lock is held, so the actual socket writes happen on a separate
// goroutine and never block the caller.
func (gs *GameServer) broadcast(connIDs []uuid.UUID, ev session.Event) {
	conns := gs.Registry.Resolve(connIDs)
	if len(conns) == 0 {
		return
	}
	go func(conns []*Conn, ev session.Event) {
		for _, c := range conns {
			c.Send(ev)
		}
	}(conns, ev)
}

// handleMatch turns one pairing from the queue into a session plus its
// lobby-directory record, then tells both players where to go. The room
// record shares the session's UUID so the two views of the match can always
// be correlated.
func (gs *GameServer) handleMatch(sessionID uuid.UUID, a, b matchmaking.Entry) {
	participants := []*session.Participant{
		{ConnID: a.ConnID, PlayerID: a.PlayerID},
		{ConnID: b.ConnID, PlayerID: b.PlayerID},
	}

	s := gs.Engine.CreateSession(sessionID, a.GameType, a.StakeTier, participants)
	s.Mu.Lock()
	s.BroadcastFn = gs.broadcast
	s.Mu.Unlock()

	room := &models.RoomRecord{
		RoomID:        sessionID,
		DisplayName:   fmt.Sprintf("%s quick match", a.GameType),
		GameType:      a.GameType,
		Status:        models.RoomStatusWaiting,
		PlayerCount:   len(participants),
		MaxPlayers:    matchMaxPlayers,
		StakeTier:     a.StakeTier,
		CreatedAt:     time.Now(),
		MemberConnIDs: []uuid.UUID{a.ConnID, b.ConnID},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	gs.Rooms.Create(ctx, room)
	cancel()

	gs.broadcast([]uuid.UUID{a.ConnID, b.ConnID}, session.Event{
		Type:      session.EventMatchFound,
		SessionID: sessionID.String(),
		Room:      room,
	})

	gs.Logger.WithFields(logrus.Fields{
		"session":   sessionID,
		"game_type": a.GameType,
		"stake":     a.StakeTier,
	}).Info("Match formed")
}

// handleDisconnect releases everything a dropped connection held: its queue
// slot, its seat in any room still waiting to start (with the matching
// directory membership), and its registry entry. Seats in rounds past
// WAITING_START survive so an identified player can reconnect into them.
func (gs *GameServer) handleDisconnect(conn *Conn) {
	gs.Queue.Dequeue(conn.ID)
	if sessionID, ok := gs.Engine.DropWaitingParticipant(conn.ID); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		gs.Rooms.RemoveMember(ctx, sessionID, conn.ID)
		cancel()
	}
	gs.Registry.Remove(conn.ID)
}

// handleSessionClosed tears down the lobby-directory record once the engine
// removes a session.
func (gs *GameServer) handleSessionClosed(sessionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	gs.Rooms.Delete(ctx, sessionID)
}

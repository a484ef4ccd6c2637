// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/auth"
	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/middleware"
)

// ClientMessage is the envelope for every client->server event. Type tags
// the variant; the remaining fields are validated per type before anything
// reaches the queue or the engine.
type ClientMessage struct {
	Type      string            `json:"type"`
	GameType  string            `json:"gameType,omitempty"`
	StakeTier int               `json:"stakeTier,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	Answers   map[string]string `json:"answers,omitempty"`
}

// WSHandler upgrades the HTTP connection, resolves the player's identity
// (valid token => identified, otherwise guest), replays any live round the
// player belongs to, and runs the read loop until disconnect. On exit the
// connection leaves the matchmaking queue and any room still waiting to
// start; a seat in an ACTIVE round is kept, since reconnection may
// re-attach it.
func WSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "game" {
			c.Close(websocket.StatusPolicyViolation, "Client must use the 'game' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		conn := &Conn{ID: uuid.New(), PlayerID: resolveIdentity(r), sock: c}
		gs.Registry.Add(conn)

		if conn.Identified() {
			// A live binding means the player belongs to an in-flight round;
			// rebind their participant slot and replay the snapshot.
			if gs.Engine.HandleReconnect(*conn.PlayerID, conn.ID) {
				logger.Infof("Player %s reconnected as conn %s", conn.PlayerID, conn.ID)
			}
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readMessages(ctx, c, conn, gs, logger)

		gs.handleDisconnect(conn)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// sessionToken pulls the identity token off the request: the auth_token
// cookie minted by the platform's user service, or ?token= for clients that
// cannot carry cookies across the websocket upgrade. The cookie wins when
// both are present.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie("auth_token"); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// resolveIdentity turns the request's token into a player ID. Absent or
// invalid tokens mean the connection is a guest, which is not an error.
func resolveIdentity(r *http.Request) *uuid.UUID {
	token := sessionToken(r)
	if token == "" {
		return nil
	}
	sub, err := auth.AuthenticateJWT(token)
	if err != nil {
		return nil
	}
	playerID, err := uuid.Parse(sub)
	if err != nil {
		return nil
	}
	return &playerID
}

// readMessages reads and dispatches client events until the connection
// closes or the context is cancelled. Malformed payloads get an error reply
// and the loop continues; rejected operations (double queue, late submits)
// are silent no-ops handled inside the core.
func readMessages(ctx context.Context, c *websocket.Conn, conn *Conn, gs *GameServer, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for conn %s", conn.ID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for conn %s", conn.ID)
			} else {
				logger.Warnf("Error reading from conn %s: %v (Status: %d)", conn.ID, err, status)
			}
			return
		}
		if msgType != websocket.MessageText {
			logger.Warnf("Ignoring non-text message from conn %s", conn.ID)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON from conn %s: %v", conn.ID, err)
			conn.Send(map[string]interface{}{"type": "error", "message": "Invalid JSON format."})
			continue
		}

		logger.Debugf("Received '%s' from conn %s", msg.Type, conn.ID)

		switch msg.Type {
		case "join_queue":
			if msg.GameType == "" || msg.StakeTier < 0 {
				conn.Send(map[string]interface{}{"type": "error", "message": "join_queue requires gameType and a non-negative stakeTier."})
				continue
			}
			gs.Queue.Enqueue(conn.ID, conn.PlayerID, msg.GameType, msg.StakeTier)

		case "leave_queue":
			gs.Queue.Dequeue(conn.ID)

		case "start_round":
			sessionID, err := uuid.Parse(msg.SessionID)
			if err != nil {
				conn.Send(map[string]interface{}{"type": "error", "message": "start_round requires a valid sessionId."})
				continue
			}
			gs.Engine.StartRound(ctx, sessionID, conn.ID, msg.StakeTier)

		case "submit_answers":
			sessionID, err := uuid.Parse(msg.SessionID)
			if err != nil || msg.Answers == nil {
				conn.Send(map[string]interface{}{"type": "error", "message": "submit_answers requires a valid sessionId and answers."})
				continue
			}
			gs.Engine.SubmitAnswers(sessionID, conn.ID, msg.Answers)

		case "ping":
			conn.Send(map[string]string{"type": "pong"})

		default:
			logger.Warnf("Unknown message type '%s' from conn %s", msg.Type, conn.ID)
			conn.Send(map[string]interface{}{"type": "error", "message": "Unknown message type: " + msg.Type})
		}
	}
}

// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/auth"
	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/models"
)

// createRoomRequest is the payload for POST /rooms/create.
type createRoomRequest struct {
	DisplayName string `json:"displayName"`
	GameType    string `json:"gameType"`
	MaxPlayers  int    `json:"maxPlayers"`
	StakeTier   int    `json:"stakeTier"`
	IsPrivate   bool   `json:"isPrivate"`
	HostName    string `json:"hostName"`
	HostAvatar  string `json:"hostAvatar"`
}

// CreateRoomHandler publishes a lobby-directory record for a hosted room.
// Requires an identified host; the record carries no round authority and
// expires on its own if never refreshed.
func CreateRoomHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("auth_token")
		if err != nil || cookie.Value == "" {
			http.Error(w, "missing auth_token", http.StatusUnauthorized)
			return
		}
		if _, err := auth.AuthenticateJWT(cookie.Value); err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad room request payload", http.StatusBadRequest)
			return
		}
		if req.GameType == "" || req.StakeTier < 0 {
			http.Error(w, "gameType required, stakeTier must be non-negative", http.StatusBadRequest)
			return
		}
		if req.MaxPlayers <= 0 {
			req.MaxPlayers = matchMaxPlayers
		}

		room := &models.RoomRecord{
			RoomID:      uuid.New(),
			DisplayName: req.DisplayName,
			GameType:    req.GameType,
			Status:      models.RoomStatusWaiting,
			MaxPlayers:  req.MaxPlayers,
			StakeTier:   req.StakeTier,
			HostName:    req.HostName,
			HostAvatar:  req.HostAvatar,
			IsPrivate:   req.IsPrivate,
			CreatedAt:   time.Now(),
		}
		gs.Rooms.Create(r.Context(), room)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(room)
	}
}

// ListRoomsHandler returns every public room currently in the directory.
func ListRoomsHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := gs.Rooms.ListAll(r.Context())

		visible := make([]*models.RoomRecord, 0, len(rooms))
		for _, room := range rooms {
			if !room.IsPrivate {
				visible = append(visible, room)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(visible)
	}
}

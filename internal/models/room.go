package models

import (
	"time"

	"github.com/google/uuid"
)

// Room status values surfaced in lobby listings.
const (
	RoomStatusWaiting  = "waiting"
	RoomStatusInRound  = "in_round"
	RoomStatusSettling = "settling"
)

// RoomRecord is the coarse lobby-directory entry for one room. It exists for
// discovery and listing only; the session engine owns the authoritative round
// state and this record must never be consulted to decide phase transitions.
type RoomRecord struct {
	RoomID      uuid.UUID `json:"roomId"`
	DisplayName string    `json:"displayName"`
	GameType    string    `json:"gameType"`
	Status      string    `json:"status"`
	PlayerCount int       `json:"playerCount"`
	MaxPlayers  int       `json:"maxPlayers"`
	StakeTier   int       `json:"stakeTier"`
	HostName    string    `json:"hostName"`
	HostAvatar  string    `json:"hostAvatar"`
	IsPrivate   bool      `json:"isPrivate"`
	CreatedAt   time.Time `json:"createdAt"`

	// MemberConnIDs tracks the connections currently counted as present.
	// A room whose membership drops to zero is deleted from the directory.
	MemberConnIDs []uuid.UUID `json:"memberConnectionIds"`
}

// HasMember reports whether connID is already in the membership list.
func (r *RoomRecord) HasMember(connID uuid.UUID) bool {
	for _, id := range r.MemberConnIDs {
		if id == connID {
			return true
		}
	}
	return false
}

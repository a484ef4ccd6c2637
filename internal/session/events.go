package session

import (
	"github.com/google/uuid"

	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/models"
)

// EventType tags every server->client message emitted by the engine.
type EventType string

const (
	EventMatchFound           EventType = "match_found"
	EventRoundStarted         EventType = "round_started"
	EventRoundError           EventType = "round_error"
	EventTimerUpdate          EventType = "timer_update"
	EventSubmissionReceived   EventType = "submission_received"
	EventRoundOver            EventType = "round_over"
	EventPayoutReceived       EventType = "payout_received"
	EventAchievementsUnlocked EventType = "achievements_unlocked"
	EventRejoinRound          EventType = "rejoin_round"
)

// EventPlayer identifies a participant inside event payloads.
type EventPlayer struct {
	ConnectionID uuid.UUID  `json:"connectionId"`
	PlayerID     *uuid.UUID `json:"playerId,omitempty"`
	Score        int        `json:"score"`
}

// EventScore is one row of the final scoreboard.
type EventScore struct {
	ConnectionID uuid.UUID `json:"connectionId"`
	Score        int       `json:"score"`
}

// Event is the tagged variant broadcast to clients. Which fields are set
// depends on Type; unset fields are omitted from the JSON, except StakeTier
// which always serializes so tier-0 rounds are explicit on the wire.
type Event struct {
	Type EventType `json:"type"`

	SessionID        string             `json:"sessionId,omitempty"`
	Prompt           string             `json:"prompt,omitempty"`
	DurationSeconds  int                `json:"durationSeconds,omitempty"`
	RemainingSeconds *int               `json:"remainingSeconds,omitempty"`
	StakeTier        int                `json:"stakeTier"`
	Message          string             `json:"message,omitempty"`
	Status           string             `json:"status,omitempty"`
	Score            *int               `json:"score,omitempty"`
	Winner           *EventPlayer       `json:"winner,omitempty"`
	Scores           []EventScore       `json:"scores,omitempty"`
	Amount           int                `json:"amount,omitempty"`
	Unlocked         []Achievement      `json:"unlocked,omitempty"`
	Room             *models.RoomRecord `json:"roomSummary,omitempty"`
}

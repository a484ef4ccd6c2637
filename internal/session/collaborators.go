package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInsufficientFunds is returned by a Ledger when any player in an escrow
// attempt cannot cover the stake. The whole attempt must have been rolled
// back: the engine treats it as fatal to session formation, never as a
// partial debit.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger is the currency/experience collaborator. EscrowStakes must be
// all-or-nothing across the given players: either every player is debited
// amount coins, or none are and an error (ErrInsufficientFunds when a
// balance was short) is returned.
type Ledger interface {
	EscrowStakes(ctx context.Context, playerIDs []uuid.UUID, amount int) error
	CreditWinnings(ctx context.Context, playerID uuid.UUID, coins int) error
	AwardExperience(ctx context.Context, playerID uuid.UUID, xp int) error
}

// MatchRecord is the audit row appended once per settled round.
// WinnerID is nil when the round was won by a guest (no durable identity to
// credit) or ended with no winner.
type MatchRecord struct {
	SessionID    uuid.UUID
	GameType     string
	PlayerIDs    []uuid.UUID
	WinnerID     *uuid.UUID
	Stake        int
	WinningScore int
	Duration     time.Duration
}

// HistoryRecorder appends settled rounds to persistent match history.
type HistoryRecorder interface {
	RecordMatch(ctx context.Context, rec MatchRecord) error
}

// Achievement is one newly unlocked item returned by re-evaluation.
type Achievement struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AchievementService re-evaluates a player's achievements after a round and
// returns only the newly unlocked ones.
type AchievementService interface {
	Evaluate(ctx context.Context, playerID uuid.UUID) ([]Achievement, error)
}

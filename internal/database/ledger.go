package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/session"
)

// Store implements the session engine's collaborator interfaces (ledger,
// match history, achievements) over the shared pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps the global pool. ConnectDB must have run first.
func NewStore() *Store {
	return &Store{pool: DB}
}

// NewStoreWithPool wraps an explicit pool, mainly for tests.
func NewStoreWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EscrowStakes debits amount coins from every listed player inside one
// transaction. Balances are row-locked before checking so two concurrent
// escrows cannot both pass on the same coins. Any short balance aborts the
// whole transaction with session.ErrInsufficientFunds: no partial debits.
func (s *Store) EscrowStakes(ctx context.Context, playerIDs []uuid.UUID, amount int) error {
	if amount <= 0 || len(playerIDs) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, pid := range playerIDs {
			var balance int
			row := tx.QueryRow(ctx, `SELECT coins FROM players WHERE id = $1 FOR UPDATE`, pid)
			if err := row.Scan(&balance); err != nil {
				if err == pgx.ErrNoRows {
					return fmt.Errorf("player %s has no wallet: %w", pid, session.ErrInsufficientFunds)
				}
				return fmt.Errorf("reading balance for player %s: %w", pid, err)
			}
			if balance < amount {
				return fmt.Errorf("player %s has %d coins, stake is %d: %w", pid, balance, amount, session.ErrInsufficientFunds)
			}
			if _, err := tx.Exec(ctx, `UPDATE players SET coins = coins - $1 WHERE id = $2`, amount, pid); err != nil {
				return fmt.Errorf("debiting player %s: %w", pid, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("escrow of %d coins across %d players: %w", amount, len(playerIDs), err)
	}
	return nil
}

// CreditWinnings adds the settled payout to the winner's balance.
func (s *Store) CreditWinnings(ctx context.Context, playerID uuid.UUID, coins int) error {
	if coins <= 0 {
		return nil
	}
	tag, err := s.pool.Exec(ctx, `UPDATE players SET coins = coins + $1 WHERE id = $2`, coins, playerID)
	if err != nil {
		return fmt.Errorf("crediting %d coins to player %s: %w", coins, playerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("crediting player %s: no such player", playerID)
	}
	return nil
}

// AwardExperience increments a player's XP.
func (s *Store) AwardExperience(ctx context.Context, playerID uuid.UUID, xp int) error {
	if xp <= 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `UPDATE players SET xp = xp + $1 WHERE id = $2`, xp, playerID); err != nil {
		return fmt.Errorf("awarding %d xp to player %s: %w", xp, playerID, err)
	}
	return nil
}

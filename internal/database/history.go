package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/session"
)

// RecordMatch appends one settled round to match_history and bumps the
// per-player play/win counters that achievement evaluation reads. Both
// writes happen in one transaction so the counters never drift from the
// history rows.
func (s *Store) RecordMatch(ctx context.Context, rec session.MatchRecord) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		insert := `
			INSERT INTO match_history (session_id, game_type, player_ids, winner_id, stake, winning_score, duration_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (session_id) DO NOTHING
		`
		if _, err := tx.Exec(ctx, insert,
			rec.SessionID, rec.GameType, rec.PlayerIDs, rec.WinnerID,
			rec.Stake, rec.WinningScore, rec.Duration.Milliseconds(),
		); err != nil {
			return err
		}

		for _, pid := range rec.PlayerIDs {
			if _, err := tx.Exec(ctx, `UPDATE players SET matches_played = matches_played + 1 WHERE id = $1`, pid); err != nil {
				return err
			}
		}
		if rec.WinnerID != nil {
			if _, err := tx.Exec(ctx, `UPDATE players SET wins = wins + 1 WHERE id = $1`, *rec.WinnerID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording match %s: %w", rec.SessionID, err)
	}
	return nil
}

package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/MOFOSGANG/NAIJAPLAY-sub001/internal/session"
)

// evalAchievementsSQL finds catalog entries the player now qualifies for,
// inserts the missing unlock rows and returns only the newly inserted ones.
const evalAchievementsSQL = `
WITH qualified AS (
	SELECT a.code, a.name, a.description
	FROM achievements a
	JOIN players p ON p.id = $1
	WHERE (a.min_wins IS NULL OR p.wins >= a.min_wins)
	  AND (a.min_matches IS NULL OR p.matches_played >= a.min_matches)
	  AND (a.min_coins IS NULL OR p.coins >= a.min_coins)
), unlocked AS (
	INSERT INTO player_achievements (player_id, achievement_code)
	SELECT $1, code FROM qualified
	ON CONFLICT (player_id, achievement_code) DO NOTHING
	RETURNING achievement_code
)
SELECT q.code, q.name, q.description
FROM qualified q
JOIN unlocked u ON u.achievement_code = q.code
`

// Evaluate re-checks the achievement catalog for one player and returns the
// achievements unlocked by this evaluation, if any.
func (s *Store) Evaluate(ctx context.Context, playerID uuid.UUID) ([]session.Achievement, error) {
	rows, err := s.pool.Query(ctx, evalAchievementsSQL, playerID)
	if err != nil {
		return nil, fmt.Errorf("evaluating achievements for player %s: %w", playerID, err)
	}
	defer rows.Close()

	var unlocked []session.Achievement
	for rows.Next() {
		var a session.Achievement
		if err := rows.Scan(&a.Code, &a.Name, &a.Description); err != nil {
			return nil, fmt.Errorf("scanning achievement row: %w", err)
		}
		unlocked = append(unlocked, a)
	}
	return unlocked, rows.Err()
}

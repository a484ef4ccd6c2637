package session

import "strings"

// ScoreFunc validates a submission server-side and returns its total score.
// Client-computed scores are never trusted.
type ScoreFunc func(prompt string, answers map[string]string) int

// Categories are the four NPAT answer slots. Extra keys in a submission are
// ignored; missing keys score zero.
var Categories = []string{"name", "place", "animal", "thing"}

// promptAlphabet is the fixed alphabet the secret letter is drawn from.
const promptAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NPATScorer returns the default scorer: each of the four categories
// contributes pointsPerCategory when the trimmed answer is non-empty and
// begins with the session's secret letter, case-insensitively.
func NPATScorer(pointsPerCategory int) ScoreFunc {
	return func(prompt string, answers map[string]string) int {
		letter := strings.ToLower(strings.TrimSpace(prompt))
		if letter == "" {
			return 0
		}
		total := 0
		for _, cat := range Categories {
			ans := strings.ToLower(strings.TrimSpace(answers[cat]))
			if ans != "" && strings.HasPrefix(ans, letter) {
				total += pointsPerCategory
			}
		}
		return total
	}
}

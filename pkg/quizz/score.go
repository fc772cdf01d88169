package quizz

import (
	"sort"
	"strings"
)

// LeaderboardEntry is one player's total.
type LeaderboardEntry struct {
	PlayerID PlayerID `json:"playerId"`
	Score    int      `json:"score"`
}

// scoreboard keeps scores in the order players first answered, which is the
// leaderboard tie-break.
type scoreboard struct {
	order  []PlayerID
	points map[PlayerID]int
}

func newScoreboard() *scoreboard {
	return &scoreboard{points: make(map[PlayerID]int)}
}

func (s *scoreboard) ensure(p PlayerID) {
	if _, ok := s.points[p]; ok {
		return
	}
	s.order = append(s.order, p)
	s.points[p] = 0
}

func (s *scoreboard) entries() []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, LeaderboardEntry{PlayerID: p, Score: s.points[p]})
	}
	return out
}

// CheckAnswer scores a player's answer to the current question. The answer
// is correct when it equals the question's first answer, ignoring case. A
// player gets a zero entry the first time they answer.
func (q *Quiz) CheckAnswer(player PlayerID, answer string) (bool, error) {
	cur, ok := q.currentQuestion()
	if !ok {
		return false, ErrNoCurrentQuestion
	}

	q.scores.ensure(player)
	if len(cur.Answers) == 0 || !strings.EqualFold(answer, cur.Answers[0]) {
		return false, nil
	}
	q.scores.points[player]++
	return true, nil
}

// Score returns the player's total, or false if they never answered.
func (q *Quiz) Score(player PlayerID) (int, bool) {
	n, ok := q.scores.points[player]
	return n, ok
}

// Leaderboard ranks players by descending score. Equal scores keep the order
// in which players first answered.
func (q *Quiz) Leaderboard() []LeaderboardEntry {
	board := q.scores.entries()
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].Score > board[j].Score
	})
	return board
}

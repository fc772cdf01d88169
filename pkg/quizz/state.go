package quizz

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// State is a serializable snapshot of a quiz. Persisting it is up to the
// caller. SaveState produces one; Restore and Load consume it.
type State struct {
	ID                   string     `json:"id,omitempty"`
	Questions            []Question `json:"questions"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	Score                Scores     `json:"score"`
}

// Scores is a score table that keeps its order through JSON. It encodes as
// an object keyed by player id.
type Scores []LeaderboardEntry

func (s Scores) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(e.PlayerID))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", e.Score)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Scores) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: score must be an object", ErrValidation)
	}

	out := Scores{}
	index := make(map[PlayerID]int)
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		player := PlayerID(kt.(string))

		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return err
		}
		num, ok := v.(json.Number)
		if !ok {
			return fmt.Errorf("%w: score of %q must be a number", ErrValidation, player)
		}
		n, err := num.Int64()
		if err != nil {
			return fmt.Errorf("%w: score of %q must be an integer", ErrValidation, player)
		}
		if n > math.MaxInt || n < math.MinInt {
			return fmt.Errorf("%w: score of %q is out of range", ErrValidation, player)
		}

		if i, seen := index[player]; seen {
			out[i].Score = int(n)
			continue
		}
		index[player] = len(out)
		out = append(out, LeaderboardEntry{PlayerID: player, Score: int(n)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = out
	return nil
}

// SaveState snapshots the quiz. The snapshot shares no memory with the quiz.
func (q *Quiz) SaveState() *State {
	return &State{
		ID:                   q.id,
		Questions:            q.Questions(),
		CurrentQuestionIndex: q.current,
		Score:                Scores(q.scores.entries()),
	}
}

// Restore builds a quiz from a snapshot. Besides the shape, it checks that
// the cursor is valid, that every question has text, that question texts are
// unique and that no score is negative.
func Restore(s *State) (*Quiz, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: state must be a non-null object", ErrValidation)
	}

	q := New(WithID(s.ID))
	for i, qu := range s.Questions {
		if strings.TrimSpace(qu.Text) == "" {
			return nil, fmt.Errorf("%w: question %d has no text", ErrValidation, i)
		}
		if q.indexOf(qu.Text) >= 0 {
			return nil, fmt.Errorf("%w: question %q appears twice", ErrValidation, qu.Text)
		}
		q.questions = append(q.questions, Question{Text: qu.Text, Answers: copyStrings(qu.Answers)})
	}

	idx := s.CurrentQuestionIndex
	if idx < 0 || (len(q.questions) == 0 && idx != 0) || (len(q.questions) > 0 && idx >= len(q.questions)) {
		return nil, fmt.Errorf("%w: currentQuestionIndex %d is out of range for %d questions",
			ErrValidation, idx, len(q.questions))
	}
	q.current = idx

	for _, e := range s.Score {
		if e.Score < 0 {
			return nil, fmt.Errorf("%w: score of %q is negative", ErrValidation, e.PlayerID)
		}
		if _, dup := q.scores.points[e.PlayerID]; dup {
			return nil, fmt.Errorf("%w: player %q is scored twice", ErrValidation, e.PlayerID)
		}
		q.scores.ensure(e.PlayerID)
		q.scores.points[e.PlayerID] = e.Score
	}
	return q, nil
}

// Load decodes a JSON snapshot and restores it. The document must be an
// object with a "questions" array and a numeric "currentQuestionIndex";
// "score" is optional.
func Load(data []byte) (*Quiz, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, fmt.Errorf("%w: state must be a non-null object", ErrValidation)
	}
	if !isJSONArray(raw["questions"]) {
		return nil, fmt.Errorf("%w: state must have an array of questions", ErrValidation)
	}
	if !isJSONNumber(raw["currentQuestionIndex"]) {
		return nil, fmt.Errorf("%w: state must have a numeric currentQuestionIndex", ErrValidation)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return Restore(&s)
}

func isJSONArray(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '['
}

func isJSONNumber(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9'))
}

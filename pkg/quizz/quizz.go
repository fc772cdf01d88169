// Package quizz is an in-memory quiz engine. A Quiz holds an ordered list of
// questions, a cursor on the question being played and a per-player score
// table. It does no I/O and no locking: callers that share a Quiz between
// goroutines must serialize access themselves.
package quizz

import (
	"fmt"
	"strings"
)

// Question is a prompt and its accepted answers. Answers[0] is the canonical
// answer used for scoring; the rest are alternative phrasings kept for display.
type Question struct {
	Text    string   `json:"question"`
	Answers []string `json:"answers"`
}

// PlayerID identifies a player in the score table. It is opaque to the quiz.
type PlayerID string

// Quiz is a single quiz game. The zero value is not usable; use New or Restore.
type Quiz struct {
	id        string
	questions []Question
	current   int
	scores    *scoreboard
}

// Option configures a new Quiz.
type Option func(*Quiz)

// WithID sets the identifier written into saved states.
func WithID(id string) Option {
	return func(q *Quiz) { q.id = id }
}

// New creates an empty quiz.
func New(opts ...Option) *Quiz {
	q := &Quiz{
		questions: []Question{},
		scores:    newScoreboard(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *Quiz) ID() string { return q.id }

// Len returns the number of questions.
func (q *Quiz) Len() int { return len(q.questions) }

// CurrentIndex returns the cursor. It is 0 when the quiz is empty.
func (q *Quiz) CurrentIndex() int { return q.current }

// AddQuestion appends a question. The text must not be blank and must not
// match an existing question exactly.
func (q *Quiz) AddQuestion(text string, answers []string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: question must be a non-empty string", ErrValidation)
	}
	if q.indexOf(text) >= 0 {
		return fmt.Errorf("%w: question %q", ErrDuplicate, text)
	}

	q.questions = append(q.questions, Question{Text: text, Answers: copyStrings(answers)})
	return nil
}

// RemoveQuestion deletes the question at index. A cursor past the removed
// question moves back by one so it keeps pointing at the same question; a
// cursor left past the end is clamped to the last question.
func (q *Quiz) RemoveQuestion(index int) error {
	if err := q.checkIndex(index); err != nil {
		return err
	}

	q.questions = append(q.questions[:index], q.questions[index+1:]...)
	if q.current > index {
		q.current--
	}
	q.clampCursor()
	return nil
}

// AddAnswerToQuestion appends an accepted answer to the question at index.
func (q *Quiz) AddAnswerToQuestion(index int, answer string) error {
	if err := q.checkIndex(index); err != nil {
		return err
	}

	for _, a := range q.questions[index].Answers {
		if a == answer {
			return fmt.Errorf("%w: answer %q", ErrDuplicate, answer)
		}
	}
	q.questions[index].Answers = append(q.questions[index].Answers, answer)
	return nil
}

// Question returns the text of the current question, or false when there is
// none.
func (q *Quiz) Question() (string, bool) {
	cur, ok := q.currentQuestion()
	if !ok {
		return "", false
	}
	return cur.Text, true
}

// Questions returns a copy of every question in play order.
func (q *Quiz) Questions() []Question {
	out := make([]Question, len(q.questions))
	for i, qu := range q.questions {
		out[i] = Question{Text: qu.Text, Answers: copyStrings(qu.Answers)}
	}
	return out
}

// Answers returns a copy of the current question's accepted answers.
func (q *Quiz) Answers() ([]string, error) {
	cur, ok := q.currentQuestion()
	if !ok {
		return nil, ErrNoCurrentQuestion
	}
	return copyStrings(cur.Answers), nil
}

// NextQuestion advances the cursor. It reports false, leaving the cursor
// alone, when the current question is the last one.
func (q *Quiz) NextQuestion() bool {
	if q.current < len(q.questions)-1 {
		q.current++
		return true
	}
	return false
}

// Reset rewinds the cursor and clears every score. Questions are kept.
func (q *Quiz) Reset() {
	q.current = 0
	q.scores = newScoreboard()
}

// DeleteAll removes every question, rewinds the cursor and clears scores.
// It reports false, changing nothing, when there were no questions.
func (q *Quiz) DeleteAll() bool {
	if len(q.questions) == 0 {
		return false
	}
	q.questions = []Question{}
	q.current = 0
	q.scores = newScoreboard()
	return true
}

func (q *Quiz) currentQuestion() (Question, bool) {
	if q.current < 0 || q.current >= len(q.questions) {
		return Question{}, false
	}
	return q.questions[q.current], true
}

func (q *Quiz) checkIndex(index int) error {
	if index < 0 || index >= len(q.questions) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, index, len(q.questions))
	}
	return nil
}

func (q *Quiz) clampCursor() {
	switch {
	case len(q.questions) == 0:
		q.current = 0
	case q.current >= len(q.questions):
		q.current = len(q.questions) - 1
	}
}

func (q *Quiz) indexOf(text string) int {
	for i, qu := range q.questions {
		if qu.Text == text {
			return i
		}
	}
	return -1
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

package quizz

import "errors"

var (
	// ErrValidation reports malformed input: an empty question text or a
	// state that does not have the snapshot shape.
	ErrValidation = errors.New("validation error")

	// ErrDuplicate reports a question text or answer that already exists.
	ErrDuplicate = errors.New("already exists")

	// ErrOutOfRange reports a question index outside [0, len).
	ErrOutOfRange = errors.New("index out of bounds")

	// ErrNoCurrentQuestion is returned by operations that need a current
	// question when the quiz is empty.
	ErrNoCurrentQuestion = errors.New("no current question")
)

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no quiz session is open for the user.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizUnavailable indicates the quiz has no questions and cannot be taken.
	ErrQuizUnavailable = errors.New("quiz unavailable")
	// ErrInvalidQuiz indicates a question has too few options or a bad correct index.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
	// ErrInvalidState is returned when an operation is not allowed in the session's state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrSubmitInFlight rejects re-entrant calls while a submission is outstanding.
	ErrSubmitInFlight = errors.New("submission already in progress")
	// ErrQuestionOutOfRange indicates a question index outside the quiz.
	ErrQuestionOutOfRange = errors.New("question index out of range")
	// ErrOptionOutOfRange indicates an option index outside the question.
	ErrOptionOutOfRange = errors.New("option index out of range")
	// ErrAttemptExists is returned when the user already has a persisted result for the quiz.
	ErrAttemptExists = errors.New("attempt already recorded for quiz")
	// ErrAttemptNotFound is returned when a persisted attempt lookup misses.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrNFTExists is returned by NFT stores on a duplicate key; writers treat it as success.
	ErrNFTExists = errors.New("nft already exists")
	// ErrExternalUnavailable means the external balance could not be read this cycle.
	ErrExternalUnavailable = errors.New("external balance unavailable")
)

// ValidationError reports the first unanswered question on submit.
type ValidationError struct {
	QuestionIndex int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("question %d is unanswered", e.QuestionIndex)
}

// AttemptExistsError carries the result already recorded for the user and
// quiz, so a client can show it instead of retrying.
type AttemptExistsError struct {
	Prior *RewardResult
}

func (e *AttemptExistsError) Error() string {
	return ErrAttemptExists.Error()
}

func (e *AttemptExistsError) Unwrap() error {
	return ErrAttemptExists
}

// PersistenceError wraps a failed write; nothing from the failed commit is kept.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps err unless it already is a PersistenceError.
func NewPersistenceError(op string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

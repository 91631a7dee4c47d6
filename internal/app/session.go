package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"quiz-reward-service/internal/domain"
	"quiz-reward-service/internal/util"
)

// SessionState is the lifecycle stage of a quiz attempt.
type SessionState int

const (
	StateLoading SessionState = iota
	StateInProgress
	StateSubmitted
	StateReviewing
	StateUnavailable
)

func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateInProgress:
		return "in_progress"
	case StateSubmitted:
		return "submitted"
	case StateReviewing:
		return "reviewing"
	case StateUnavailable:
		return "unavailable"
	}
	return "unknown"
}

func (s SessionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Committer persists a scored attempt. RewardWriter is the production implementation.
type Committer interface {
	Commit(ctx context.Context, user domain.UserSession, attempt domain.Attempt, quiz domain.Quiz, result domain.RewardResult) (domain.RewardResult, error)
}

// Session tracks one user's attempt at one quiz.
type Session struct {
	user      domain.UserSession
	contentID string
	loader    domain.QuizLoader
	committer Committer
	now       func() time.Time

	mu         sync.Mutex
	state      SessionState
	quiz       domain.Quiz
	attempt    domain.Attempt
	cursor     int
	submitting bool
	scored     *domain.RewardResult
}

// NewSession creates a session in the Loading state.
func NewSession(user domain.UserSession, contentID string, loader domain.QuizLoader, committer Committer) *Session {
	return NewSessionWithClock(user, contentID, loader, committer, time.Now)
}

// NewSessionWithClock allows deterministic submission timestamps in tests.
func NewSessionWithClock(user domain.UserSession, contentID string, loader domain.QuizLoader, committer Committer, now func() time.Time) *Session {
	return &Session{
		user:      user,
		contentID: contentID,
		loader:    loader,
		committer: committer,
		now:       now,
		state:     StateLoading,
	}
}

// Load fetches the quiz. An empty or invalid quiz leaves the session Unavailable.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateLoading {
		s.mu.Unlock()
		return domain.ErrInvalidState
	}
	s.mu.Unlock()

	quiz, err := s.loader.LoadQuiz(ctx, s.contentID)
	if err == nil {
		err = quiz.Validate()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateUnavailable
		return err
	}

	answers := make([]int, len(quiz.Questions))
	for i := range answers {
		answers[i] = domain.Unanswered
	}
	s.quiz = quiz
	s.attempt = domain.Attempt{
		ID:      util.NewULID(),
		QuizID:  quiz.ID,
		UserID:  s.user.UserID,
		Answers: answers,
	}
	s.state = StateInProgress
	return nil
}

// SelectAnswer records optionIndex for questionIndex; the last write wins.
// It is a no-op once the attempt is submitted.
func (s *Session) SelectAnswer(questionIndex, optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitting {
		return domain.ErrSubmitInFlight
	}
	switch s.state {
	case StateInProgress:
	case StateSubmitted, StateReviewing:
		return nil
	default:
		return domain.ErrInvalidState
	}

	if questionIndex < 0 || questionIndex >= len(s.quiz.Questions) {
		return domain.ErrQuestionOutOfRange
	}
	if optionIndex < 0 || optionIndex >= len(s.quiz.Questions[questionIndex].Options) {
		return domain.ErrOptionOutOfRange
	}
	if s.attempt.Answers[questionIndex] != optionIndex {
		s.attempt.Answers[questionIndex] = optionIndex
		s.scored = nil
	}
	return nil
}

// Navigate moves the cursor. Out-of-range targets are ignored.
func (s *Session) Navigate(questionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUnavailable {
		return domain.ErrInvalidState
	}
	if questionIndex >= 0 && questionIndex < len(s.quiz.Questions) {
		s.cursor = questionIndex
	}
	return nil
}

// Submit scores the attempt and commits the reward. When a slot is empty it
// returns a *domain.ValidationError and moves the cursor to that question.
// A failed commit leaves the session InProgress so the caller can retry.
func (s *Session) Submit(ctx context.Context) (domain.RewardResult, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return domain.RewardResult{}, domain.ErrSubmitInFlight
	}
	if s.state != StateInProgress {
		s.mu.Unlock()
		return domain.RewardResult{}, domain.ErrInvalidState
	}
	if idx := s.attempt.FirstUnanswered(); idx >= 0 {
		s.cursor = idx
		s.mu.Unlock()
		return domain.RewardResult{}, &domain.ValidationError{QuestionIndex: idx}
	}

	if s.scored == nil {
		s.attempt.SubmittedAt = s.now().UTC()
		result := Score(s.attempt, s.quiz)
		s.scored = &result
	}
	s.submitting = true
	attempt := s.snapshotAttemptLocked()
	quiz := s.quiz
	scored := *s.scored
	s.mu.Unlock()

	// The commit is not cancellable once started.
	result, err := s.committer.Commit(context.WithoutCancel(ctx), s.user, attempt, quiz, scored)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		return domain.RewardResult{}, err
	}
	s.attempt.Result = &result
	s.state = StateSubmitted
	return result, nil
}

// ToggleReview flips between Submitted and Reviewing.
func (s *Session) ToggleReview() (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateSubmitted:
		s.state = StateReviewing
	case StateReviewing:
		s.state = StateSubmitted
	default:
		return s.state, domain.ErrInvalidState
	}
	return s.state, nil
}

// State returns the current lifecycle stage.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cursor returns the current question index.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// User returns the identity the session was opened for.
func (s *Session) User() domain.UserSession {
	return s.user
}

// ContentID returns the content the session was opened for.
func (s *Session) ContentID() string {
	return s.contentID
}

// Attempt returns a copy of the attempt.
func (s *Session) Attempt() domain.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotAttemptLocked()
}

func (s *Session) snapshotAttemptLocked() domain.Attempt {
	attempt := s.attempt
	attempt.Answers = append([]int(nil), s.attempt.Answers...)
	if s.attempt.Result != nil {
		result := *s.attempt.Result
		attempt.Result = &result
	}
	return attempt
}

// QuestionView is a question without its answer key.
type QuestionView struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// Snapshot is a read-only view of the session for clients.
type Snapshot struct {
	State     SessionState         `json:"state"`
	QuizID    string               `json:"quizId,omitempty"`
	ContentID string               `json:"contentId"`
	Title     string               `json:"title,omitempty"`
	Cursor    int                  `json:"cursor"`
	Questions []QuestionView       `json:"questions,omitempty"`
	Answers   []int                `json:"answers,omitempty"`
	Result    *domain.RewardResult `json:"result,omitempty"`
	Correct   []bool               `json:"correct,omitempty"` // only while reviewing
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt := s.snapshotAttemptLocked()
	snap := Snapshot{
		State:     s.state,
		QuizID:    s.quiz.ID,
		ContentID: s.contentID,
		Title:     s.quiz.Title,
		Cursor:    s.cursor,
		Answers:   attempt.Answers,
		Result:    attempt.Result,
	}
	for _, q := range s.quiz.Questions {
		snap.Questions = append(snap.Questions, QuestionView{ID: q.ID, Prompt: q.Prompt, Options: q.Options})
	}
	if s.state == StateReviewing {
		snap.Correct = make([]bool, len(s.quiz.Questions))
		for i, q := range s.quiz.Questions {
			snap.Correct[i] = attempt.Answers[i] == q.CorrectIndex
		}
	}
	return snap
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Unanswered marks an answer slot that has no selected option yet.
const Unanswered = -1

// Question models a multiple-choice question with exactly one correct option.
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

// Validate checks the option list and the correct-option bound.
func (q Question) Validate() error {
	if len(q.Options) < 2 {
		return ErrInvalidQuiz
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ErrInvalidQuiz
	}
	return nil
}

// Quiz is the comprehension quiz attached to a content item.
type Quiz struct {
	ID        string     `json:"id"`
	ContentID string     `json:"contentId"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Validate rejects quizzes that cannot be taken.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return ErrQuizUnavailable
	}
	for _, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Attempt is one user's answers to one quiz.
type Attempt struct {
	ID          string        `json:"id"`
	QuizID      string        `json:"quizId"`
	UserID      string        `json:"userId"`
	Answers     []int         `json:"answers"`
	SubmittedAt time.Time     `json:"submittedAt"`
	Result      *RewardResult `json:"result,omitempty"`
}

// FirstUnanswered returns the index of the first empty slot, or -1.
func (a Attempt) FirstUnanswered() int {
	for i, answer := range a.Answers {
		if answer == Unanswered {
			return i
		}
	}
	return -1
}

// RewardResult is derived from a submitted attempt and never mutated.
type RewardResult struct {
	AttemptID    string `json:"attemptId"`
	CorrectCount int    `json:"correctCount"`
	TotalCount   int    `json:"totalCount"`
	Percentage   int    `json:"percentage"`
	Tokens       int    `json:"tokens"`
	NFTAwarded   bool   `json:"nftAwarded"`
}

// Balance pairs the authoritative ledger reading with the optional external one.
type Balance struct {
	UserID   string           `json:"userId"`
	Ledger   decimal.Decimal  `json:"ledger"`
	External *decimal.Decimal `json:"external,omitempty"`
}

// UserSession carries the caller identity explicitly instead of through shared state.
type UserSession struct {
	UserID          string
	WalletConnected bool
}

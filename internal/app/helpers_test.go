package app_test

import (
	"fmt"

	"quiz-reward-service/internal/domain"
)

// buildQuiz returns a quiz with n questions of three options each; the
// correct option of question i is i%3.
func buildQuiz(contentID string, n int) domain.Quiz {
	quiz := domain.Quiz{
		ID:        "quiz-" + contentID,
		ContentID: contentID,
		Title:     "Chapter " + contentID,
	}
	for i := 0; i < n; i++ {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:           fmt.Sprintf("q%d", i+1),
			Prompt:       fmt.Sprintf("Question %d?", i+1),
			Options:      []string{"a", "b", "c"},
			CorrectIndex: i % 3,
		})
	}
	return quiz
}

// answersFor answers the first correct questions right and the rest wrong.
func answersFor(quiz domain.Quiz, correct int) []int {
	answers := make([]int, len(quiz.Questions))
	for i, q := range quiz.Questions {
		if i < correct {
			answers[i] = q.CorrectIndex
		} else {
			answers[i] = (q.CorrectIndex + 1) % len(q.Options)
		}
	}
	return answers
}

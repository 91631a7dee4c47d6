package cli

import "quiz-reward-service/internal/domain"

// sampleQuizzes backs the in-memory loader when no database is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"story-lighthouse": {
			ID:        "quiz-lighthouse",
			ContentID: "story-lighthouse",
			Title:     "The Lighthouse Keeper",
			Questions: []domain.Question{
				{
					ID:           "q1",
					Prompt:       "Who tended the lighthouse?",
					Options:      []string{"A fisherman", "An old keeper", "The harbour master"},
					CorrectIndex: 1,
				},
				{
					ID:           "q2",
					Prompt:       "Why did the light go out?",
					Options:      []string{"A storm broke the glass", "The oil ran out", "The keeper fell asleep"},
					CorrectIndex: 1,
				},
				{
					ID:           "q3",
					Prompt:       "Who rowed out to help?",
					Options:      []string{"His granddaughter", "A sailor", "Nobody"},
					CorrectIndex: 0,
				},
			},
		},
	}
}

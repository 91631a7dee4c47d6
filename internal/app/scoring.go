package app

import "quiz-reward-service/internal/domain"

// rewardTier maps a minimum percentage to its reward.
type rewardTier struct {
	minPercentage int
	tokens        int
	nft           bool
}

// rewardTiers is the reward policy, ordered high to low; the first match wins.
var rewardTiers = []rewardTier{
	{minPercentage: 100, tokens: 10, nft: true},
	{minPercentage: 95, tokens: 10},
	{minPercentage: 80, tokens: 5},
	{minPercentage: 60, tokens: 2},
	{minPercentage: 0, tokens: 0},
}

// Score computes the reward for a submitted attempt. It is pure: the same
// attempt and quiz always produce the same result.
func Score(attempt domain.Attempt, quiz domain.Quiz) domain.RewardResult {
	total := len(quiz.Questions)
	correct := 0
	for i, question := range quiz.Questions {
		if i < len(attempt.Answers) && attempt.Answers[i] == question.CorrectIndex {
			correct++
		}
	}

	result := domain.RewardResult{
		AttemptID:    attempt.ID,
		CorrectCount: correct,
		TotalCount:   total,
	}
	if total == 0 {
		return result
	}

	result.Percentage = percentage(correct, total)
	tier := lookupTier(result.Percentage)
	result.Tokens = tier.tokens
	result.NFTAwarded = tier.nft
	return result
}

// percentage rounds correct/total*100 half up using integer arithmetic.
func percentage(correct, total int) int {
	return (200*correct + total) / (2 * total)
}

func lookupTier(pct int) rewardTier {
	for _, tier := range rewardTiers {
		if pct >= tier.minPercentage {
			return tier
		}
	}
	return rewardTiers[len(rewardTiers)-1]
}

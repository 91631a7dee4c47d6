package domain

import (
	"time"

	"github.com/google/uuid"
)

// AchievementPerfectQuiz is granted for a 100% quiz score.
const AchievementPerfectQuiz = "perfect_quiz"

// nftNamespace scopes the name-based NFT IDs.
var nftNamespace = uuid.MustParse("5b0d9f2e-6c1a-4c8e-9a59-0c3c3f1e7d21")

// NFTMetadata is the display data attached to an achievement NFT.
type NFTMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Rarity      string `json:"rarity"`
	QuizID      string `json:"quizId"`
	ContentID   string `json:"contentId"`
}

// NFTRecord is an achievement owned by a user. Records are never mutated.
type NFTRecord struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"ownerId"`
	Achievement string      `json:"achievement"`
	Metadata    NFTMetadata `json:"metadata"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// NFTKey derives the record ID from the achievement type and a uniqueness salt.
// The same pair always yields the same ID.
func NFTKey(achievement, salt string) string {
	return uuid.NewSHA1(nftNamespace, []byte(achievement+"|"+salt)).String()
}

// NewPerfectQuizNFT builds the record for a perfect score on quiz by userID.
func NewPerfectQuizNFT(userID string, quiz Quiz, now time.Time) NFTRecord {
	return NFTRecord{
		ID:          NFTKey(AchievementPerfectQuiz, userID+":"+quiz.ID),
		OwnerID:     userID,
		Achievement: AchievementPerfectQuiz,
		Metadata: NFTMetadata{
			Name:        "Perfect Reader",
			Description: "Answered every question correctly in " + quiz.Title,
			Rarity:      "rare",
			QuizID:      quiz.ID,
			ContentID:   quiz.ContentID,
		},
		CreatedAt: now,
	}
}

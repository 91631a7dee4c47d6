package postgres

import (
	"time"

	"quiz-reward-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type attemptModel struct {
	bun.BaseModel `bun:"table:quiz_attempts,alias:qa"`

	ID          string              `bun:"id,pk"`
	QuizID      string              `bun:"quiz_id,notnull"`
	UserID      string              `bun:"user_id,notnull"`
	Answers     []int               `bun:"answers,array"`
	Result      domain.RewardResult `bun:"result,type:jsonb"`
	SubmittedAt time.Time           `bun:"submitted_at,notnull"`
}

func (m *attemptModel) toDomain() domain.Attempt {
	result := m.Result
	return domain.Attempt{
		ID:          m.ID,
		QuizID:      m.QuizID,
		UserID:      m.UserID,
		Answers:     m.Answers,
		SubmittedAt: m.SubmittedAt,
		Result:      &result,
	}
}

type balanceModel struct {
	bun.BaseModel `bun:"table:balances,alias:b"`

	UserID    string          `bun:"user_id,pk"`
	Ledger    decimal.Decimal `bun:"ledger,type:numeric,notnull"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}

type nftModel struct {
	bun.BaseModel `bun:"table:nfts,alias:n"`

	ID          string             `bun:"id,pk"`
	OwnerID     string             `bun:"owner_id,notnull"`
	Achievement string             `bun:"achievement,notnull"`
	Metadata    domain.NFTMetadata `bun:"metadata,type:jsonb"`
	CreatedAt   time.Time          `bun:"created_at,notnull"`
}

package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuizLoader fetches a quiz definition for a content item.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, contentID string) (Quiz, error)
}

// AttemptStore persists submitted attempts with their results.
type AttemptStore interface {
	// SaveAttempt returns ErrAttemptExists when the (user, quiz) pair is taken
	// and repeats are not allowed.
	SaveAttempt(ctx context.Context, attempt Attempt, result RewardResult, allowRepeat bool) error
	GetAttempt(ctx context.Context, attemptID string) (Attempt, error)
	// LatestAttempt returns the most recent attempt of userID at quizID, or
	// ErrAttemptNotFound.
	LatestAttempt(ctx context.Context, userID, quizID string) (Attempt, error)
}

// BalanceStore owns the authoritative ledger balance.
type BalanceStore interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	// IncrementBalance applies delta against the persisted value at commit time.
	IncrementBalance(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error)
	SetBalance(ctx context.Context, userID string, value decimal.Decimal) error
	ListUsers(ctx context.Context) ([]string, error)
}

// NFTStore creates achievement records. Duplicate IDs return ErrNFTExists.
type NFTStore interface {
	SaveNFT(ctx context.Context, record NFTRecord) error
}

// Ledger bundles the stores that take part in a reward commit.
type Ledger interface {
	AttemptStore
	BalanceStore
	NFTStore
	TransactionManager
}

// TransactionManager runs fn atomically; stores pick the transaction up from ctx.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ExternalBalanceSource reads the advisory blockchain balance.
type ExternalBalanceSource interface {
	ReadExternalBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// Notifier receives reward events. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event RewardEvent) error
}

// Locker serialises reconciliation per user across instances.
type Locker interface {
	// TryLock returns a release func and true when the lock was acquired.
	TryLock(ctx context.Context, key string) (func(), bool, error)
}

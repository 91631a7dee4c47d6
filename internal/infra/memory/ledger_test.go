package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-reward-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerConcurrentIncrementsKeepBothDeltas(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()

	var wg sync.WaitGroup
	for _, delta := range []int64{5, 10} {
		delta := delta
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.WithTransaction(ctx, func(ctx context.Context) error {
				_, err := ledger.IncrementBalance(ctx, "u1", decimal.NewFromInt(delta))
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := ledger.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(15)), "balance %s", balance)
}

func TestLedgerIncrementAppliesAfterConcurrentOverwrite(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	require.NoError(t, ledger.SetBalance(ctx, "u1", decimal.NewFromInt(50)))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, ledger.SetBalance(ctx, "u1", decimal.NewFromInt(65)))
	}()
	go func() {
		defer wg.Done()
		_, err := ledger.IncrementBalance(ctx, "u1", decimal.NewFromInt(10))
		assert.NoError(t, err)
	}()
	wg.Wait()

	// Either order is valid, but the increment is never lost: 65+10 or 65.
	balance, _ := ledger.GetBalance(ctx, "u1")
	assert.True(t, balance.Equal(decimal.NewFromInt(75)) || balance.Equal(decimal.NewFromInt(65)), "balance %s", balance)
}

func TestLedgerTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	boom := errors.New("disk full")
	attempt := domain.Attempt{ID: "a1", UserID: "u1", QuizID: "quiz-1", Answers: []int{0}}

	ledger.FailNext(OpSaveNFT, boom)
	err := ledger.WithTransaction(ctx, func(ctx context.Context) error {
		if err := ledger.SaveAttempt(ctx, attempt, domain.RewardResult{AttemptID: "a1"}, false); err != nil {
			return err
		}
		if _, err := ledger.IncrementBalance(ctx, "u1", decimal.NewFromInt(10)); err != nil {
			return err
		}
		return ledger.SaveNFT(ctx, domain.NFTRecord{ID: "n1", OwnerID: "u1"})
	})
	require.ErrorIs(t, err, boom)

	_, err = ledger.GetAttempt(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrAttemptNotFound)
	users, _ := ledger.ListUsers(ctx)
	assert.Empty(t, users)
	assert.Zero(t, ledger.Writes(OpSaveAttempt))
	assert.Zero(t, ledger.Writes(OpIncrement))
}

func TestLedgerTransactionRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()

	assert.Panics(t, func() {
		_ = ledger.WithTransaction(ctx, func(ctx context.Context) error {
			_, _ = ledger.IncrementBalance(ctx, "u1", decimal.NewFromInt(3))
			panic("boom")
		})
	})
	balance, _ := ledger.GetBalance(ctx, "u1")
	assert.True(t, balance.IsZero())
}

func TestLedgerOneAttemptPerUserQuiz(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	first := domain.Attempt{ID: "a1", UserID: "u1", QuizID: "quiz-1"}
	second := domain.Attempt{ID: "a2", UserID: "u1", QuizID: "quiz-1"}

	require.NoError(t, ledger.SaveAttempt(ctx, first, domain.RewardResult{}, false))
	assert.ErrorIs(t, ledger.SaveAttempt(ctx, second, domain.RewardResult{}, false), domain.ErrAttemptExists)
	assert.NoError(t, ledger.SaveAttempt(ctx, second, domain.RewardResult{}, true))
	assert.ErrorIs(t, ledger.SaveAttempt(ctx, second, domain.RewardResult{}, true), domain.ErrAttemptExists)
}

func TestLedgerLatestAttempt(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()

	_, err := ledger.LatestAttempt(ctx, "u1", "quiz-1")
	assert.ErrorIs(t, err, domain.ErrAttemptNotFound)

	require.NoError(t, ledger.SaveAttempt(ctx, domain.Attempt{ID: "a1", UserID: "u1", QuizID: "quiz-1"}, domain.RewardResult{Tokens: 5}, true))
	require.NoError(t, ledger.SaveAttempt(ctx, domain.Attempt{ID: "a2", UserID: "u1", QuizID: "quiz-1"}, domain.RewardResult{Tokens: 10}, true))

	latest, err := ledger.LatestAttempt(ctx, "u1", "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "a2", latest.ID)
	require.NotNil(t, latest.Result)
	assert.Equal(t, 10, latest.Result.Tokens)
}

func TestLedgerNFTIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	record := domain.NewPerfectQuizNFT("u1", domain.Quiz{ID: "quiz-1", Title: "T"}, time.Now())

	require.NoError(t, ledger.SaveNFT(ctx, record))
	assert.ErrorIs(t, ledger.SaveNFT(ctx, record), domain.ErrNFTExists)
	assert.Len(t, ledger.NFTs("u1"), 1)
}

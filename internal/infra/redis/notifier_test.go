package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"quiz-reward-service/internal/domain"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierPublishesToUserChannel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	notifier := NewNotifier(newClient(mr), "reward-events")
	events, cancel, err := notifier.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer cancel()

	balance := decimal.NewFromInt(25)
	require.NoError(t, notifier.Notify(ctx, domain.RewardEvent{
		Kind:       domain.EventQuizReward,
		UserID:     "u1",
		QuizID:     "quiz-1",
		Tokens:     10,
		NFTAwarded: true,
		Balance:    &balance,
	}))

	select {
	case event := <-events:
		assert.Equal(t, domain.EventQuizReward, event.Kind)
		assert.Equal(t, 10, event.Tokens)
		assert.True(t, event.NFTAwarded)
		require.NotNil(t, event.Balance)
		assert.True(t, event.Balance.Equal(balance))
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestNotifierPublishError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	event := domain.BalanceReconciledEvent("u1", decimal.NewFromInt(65))
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	redisErr := errors.New("broken pipe")
	mock.ExpectPublish("reward-events:u1", payload).SetErr(redisErr)

	err = NewNotifier(db, "").Notify(context.Background(), event)
	assert.ErrorIs(t, err, redisErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

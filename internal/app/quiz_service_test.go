package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"quiz-reward-service/internal/app"
	"quiz-reward-service/internal/domain"
	"quiz-reward-service/internal/infra/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	service  *app.QuizService
	sessions *memory.SessionStore
	ledger   *memory.Ledger
	external *memory.ExternalBalances
	notifier *memory.Notifier
	quiz     domain.Quiz
}

func newTestService() *serviceFixture {
	quiz := buildQuiz("story-1", 5)
	empty := domain.Quiz{ID: "quiz-empty", ContentID: "story-empty"}
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		quiz.ContentID:  quiz,
		empty.ContentID: empty,
	}), time.Minute)

	ledger := memory.NewLedger()
	external := memory.NewExternalBalances()
	notifier := memory.NewNotifier()
	writer := app.NewRewardWriter(ledger, notifier, false)
	reconciler := app.NewReconciler(ledger, external, decimal.RequireFromString("0.001"),
		app.WithNotifier(notifier), app.WithLocker(memory.NewLocker()))

	sessions := memory.NewSessionStore()
	return &serviceFixture{
		service:  app.NewQuizService(sessions, quizzes, writer, reconciler),
		sessions: sessions,
		ledger:   ledger,
		external: external,
		notifier: notifier,
		quiz:     quiz,
	}
}

func TestOpenReusesLiveSession(t *testing.T) {
	ctx := context.Background()
	f := newTestService()
	user := domain.UserSession{UserID: "u1"}

	first, err := f.service.Open(ctx, user, "story-1")
	require.NoError(t, err)
	second, err := f.service.Open(ctx, user, "story-1")
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := f.service.Open(ctx, domain.UserSession{UserID: "u2"}, "story-1")
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestOpenUnavailableQuizIsNotStored(t *testing.T) {
	ctx := context.Background()
	f := newTestService()

	session, err := f.service.Open(ctx, domain.UserSession{UserID: "u1"}, "story-empty")
	assert.ErrorIs(t, err, domain.ErrQuizUnavailable)
	require.NotNil(t, session)
	assert.Equal(t, app.StateUnavailable, session.State())

	_, err = f.service.Session("u1", "story-empty")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSubmitRequiresOpenSession(t *testing.T) {
	f := newTestService()
	_, err := f.service.Submit(context.Background(), "u1", "story-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSubmitReconcilesConnectedWallet(t *testing.T) {
	ctx := context.Background()
	f := newTestService()
	user := domain.UserSession{UserID: "u1", WalletConnected: true}
	f.external.Set("u1", decimal.NewFromInt(65))

	session, err := f.service.Open(ctx, user, "story-1")
	require.NoError(t, err)
	answerAll(t, session, answersFor(f.quiz, 5))

	result, err := f.service.Submit(ctx, "u1", "story-1")
	require.NoError(t, err)
	assert.Equal(t, 10, result.Tokens)
	f.service.Wait()

	balance, _ := f.ledger.GetBalance(ctx, "u1")
	assert.True(t, balance.Equal(decimal.NewFromInt(65)), "external balance wins, got %s", balance)

	var kinds []domain.EventKind
	for _, e := range f.notifier.Events() {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []domain.EventKind{domain.EventQuizReward, domain.EventBalanceReconciled}, kinds)
}

func TestSubmitWithoutWalletSkipsReconcile(t *testing.T) {
	ctx := context.Background()
	f := newTestService()
	f.external.Set("u1", decimal.NewFromInt(65))

	session, err := f.service.Open(ctx, domain.UserSession{UserID: "u1"}, "story-1")
	require.NoError(t, err)
	answerAll(t, session, answersFor(f.quiz, 4))

	_, err = f.service.Submit(ctx, "u1", "story-1")
	require.NoError(t, err)
	f.service.Wait()

	assert.Zero(t, f.external.Reads())
	balance, _ := f.ledger.GetBalance(ctx, "u1")
	assert.True(t, balance.Equal(decimal.NewFromInt(5)))
}

func TestAbandonDropsSessionWithoutPersisting(t *testing.T) {
	ctx := context.Background()
	f := newTestService()
	session, err := f.service.Open(ctx, domain.UserSession{UserID: "u1"}, "story-1")
	require.NoError(t, err)
	require.NoError(t, session.SelectAnswer(0, 0))

	f.service.Abandon(ctx, "u1", "story-1")
	_, err = f.service.Session("u1", "story-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Zero(t, f.ledger.Writes(memory.OpSaveAttempt))
}

func TestServiceReconcileOnDemand(t *testing.T) {
	ctx := context.Background()
	f := newTestService()
	f.external.Set("u1", decimal.NewFromInt(3))

	outcome, err := f.service.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeOverwritten, outcome)
}

func TestReleaseDropsSessionAfterLastHolder(t *testing.T) {
	ctx := context.Background()
	f := newTestService()
	user := domain.UserSession{UserID: "u1"}

	first, err := f.service.Open(ctx, user, "story-1")
	require.NoError(t, err)
	second, err := f.service.Open(ctx, user, "story-1")
	require.NoError(t, err)

	f.service.Release(first)
	assert.Equal(t, 1, f.sessions.Len())

	f.service.Release(second)
	assert.Zero(t, f.sessions.Len())
	_, err = f.service.Session("u1", "story-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSubmittedSessionsAreNotRetained(t *testing.T) {
	ctx := context.Background()
	f := newTestService()

	for i := 0; i < 200; i++ {
		session, err := f.service.Open(ctx, domain.UserSession{UserID: fmt.Sprintf("u%d", i)}, "story-1")
		require.NoError(t, err)
		answerAll(t, session, answersFor(f.quiz, 5))
		_, err = f.service.SubmitSession(ctx, session)
		require.NoError(t, err)
		f.service.Release(session)
	}

	assert.Zero(t, f.sessions.Len())
	assert.Equal(t, 200, f.ledger.Writes(memory.OpSaveAttempt))
}

func TestConcurrentOpenSharesOneSession(t *testing.T) {
	ctx := context.Background()
	f := newTestService()
	user := domain.UserSession{UserID: "u1"}

	const openers = 20
	sessions := make([]*app.Session, openers)
	var wg sync.WaitGroup
	for i := 0; i < openers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, err := f.service.Open(ctx, user, "story-1")
			assert.NoError(t, err)
			sessions[i] = session
		}(i)
	}
	wg.Wait()

	for _, session := range sessions {
		require.Same(t, sessions[0], session)
	}
	assert.Equal(t, 1, f.sessions.Len())

	// Answers given through any holder are what the service submits.
	answerAll(t, sessions[openers-1], answersFor(f.quiz, 5))
	result, err := f.service.Submit(ctx, "u1", "story-1")
	require.NoError(t, err)
	assert.Equal(t, 10, result.Tokens)

	for _, session := range sessions {
		f.service.Release(session)
	}
	assert.Zero(t, f.sessions.Len())
}

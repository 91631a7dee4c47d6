package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"quiz-reward-service/internal/app"
	"quiz-reward-service/internal/domain"
	"quiz-reward-service/internal/infra/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epsilon = decimal.RequireFromString("0.001")

func TestReconcileWithinEpsilonDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	external := memory.NewExternalBalances()
	require.NoError(t, ledger.SetBalance(ctx, "u1", decimal.NewFromInt(50)))
	writesBefore := ledger.Writes(memory.OpSetBalance)
	external.Set("u1", decimal.RequireFromString("50.0005"))

	outcome, err := app.NewReconciler(ledger, external, epsilon).Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeInSync, outcome)
	assert.Equal(t, writesBefore, ledger.Writes(memory.OpSetBalance))
	balance, _ := ledger.GetBalance(ctx, "u1")
	assert.True(t, balance.Equal(decimal.NewFromInt(50)))
}

func TestReconcileExactlyEpsilonIsInSync(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	external := memory.NewExternalBalances()
	require.NoError(t, ledger.SetBalance(ctx, "u1", decimal.NewFromInt(50)))
	external.Set("u1", decimal.RequireFromString("50.001"))

	outcome, err := app.NewReconciler(ledger, external, epsilon).Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeInSync, outcome)
}

func TestReconcileExternalWins(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	external := memory.NewExternalBalances()
	notifier := memory.NewNotifier()
	require.NoError(t, ledger.SetBalance(ctx, "u1", decimal.NewFromInt(50)))
	external.Set("u1", decimal.NewFromInt(65))

	reconciler := app.NewReconciler(ledger, external, epsilon, app.WithNotifier(notifier))
	outcome, err := reconciler.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeOverwritten, outcome)

	balance, _ := ledger.GetBalance(ctx, "u1")
	assert.True(t, balance.Equal(decimal.NewFromInt(65)))

	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventBalanceReconciled, events[0].Kind)
	require.NotNil(t, events[0].Balance)
	assert.True(t, events[0].Balance.Equal(decimal.NewFromInt(65)))

	// Lower external balances win too.
	external.Set("u1", decimal.NewFromInt(40))
	outcome, err = reconciler.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeOverwritten, outcome)
	balance, _ = ledger.GetBalance(ctx, "u1")
	assert.True(t, balance.Equal(decimal.NewFromInt(40)))
}

func TestReconcileSkipsWhenExternalUnavailable(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	require.NoError(t, ledger.SetBalance(ctx, "u1", decimal.NewFromInt(50)))
	writes := ledger.Writes(memory.OpSetBalance)

	outcome, err := app.NewReconciler(ledger, memory.NewExternalBalances(), epsilon).Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeSkipped, outcome)
	assert.Equal(t, writes, ledger.Writes(memory.OpSetBalance))

	outcome, err = app.NewReconciler(ledger, nil, epsilon).Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeSkipped, outcome)
}

func TestReconcileLockedUser(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	external := memory.NewExternalBalances()
	external.Set("u1", decimal.NewFromInt(65))
	locker := memory.NewLocker()

	release, ok, err := locker.TryLock(ctx, "reconcile:u1")
	require.NoError(t, err)
	require.True(t, ok)

	reconciler := app.NewReconciler(ledger, external, epsilon, app.WithLocker(locker))
	outcome, err := reconciler.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeLocked, outcome)
	assert.Zero(t, external.Reads())

	release()
	outcome, err = reconciler.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeOverwritten, outcome)
}

func TestReconcileWriteFailure(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	external := memory.NewExternalBalances()
	external.Set("u1", decimal.NewFromInt(65))
	ledger.FailNext(memory.OpSetBalance, errors.New("read-only replica"))

	_, err := app.NewReconciler(ledger, external, epsilon).Reconcile(ctx, "u1")
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "overwrite balance", perr.Op)
}

func TestSweepAllReconcilesEveryUser(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	external := memory.NewExternalBalances()
	for i := 0; i < 10; i++ {
		user := fmt.Sprintf("u%d", i)
		require.NoError(t, ledger.SetBalance(ctx, user, decimal.NewFromInt(50)))
		switch {
		case i < 4:
			external.Set(user, decimal.NewFromInt(50))
		case i < 7:
			external.Set(user, decimal.NewFromInt(70))
		}
	}

	reconciler := app.NewReconciler(ledger, external, epsilon,
		app.WithLocker(memory.NewLocker()), app.WithConcurrency(3))
	report, err := reconciler.SweepAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Outcomes[app.OutcomeInSync])
	assert.Equal(t, 3, report.Outcomes[app.OutcomeOverwritten])
	assert.Equal(t, 3, report.Outcomes[app.OutcomeSkipped])
	assert.Empty(t, report.Failed)
	balance, _ := ledger.GetBalance(ctx, "u5")
	assert.True(t, balance.Equal(decimal.NewFromInt(70)))
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reconciler := app.NewReconciler(memory.NewLedger(), memory.NewExternalBalances(), epsilon)
	_, err := reconciler.Sweep(ctx, []string{"u1", "u2"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "overwritten", app.OutcomeOverwritten.String())
	assert.Equal(t, "locked", app.OutcomeLocked.String())
	assert.Equal(t, "unknown", app.Outcome(42).String())
}

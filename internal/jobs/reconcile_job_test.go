package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"quiz-reward-service/internal/app"
	"quiz-reward-service/internal/infra/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	runs atomic.Int32
}

func (s *countingSweeper) SweepAll(context.Context) (app.SweepReport, error) {
	s.runs.Add(1)
	return app.SweepReport{}, nil
}

func TestReconcileJobRejectsBadSchedule(t *testing.T) {
	_, err := NewReconcileJob(&countingSweeper{}, "every tuesday", time.Second)
	assert.Error(t, err)
}

func TestReconcileJobRunSweepsLedger(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	external := memory.NewExternalBalances()
	require.NoError(t, ledger.SetBalance(ctx, "u1", decimal.NewFromInt(50)))
	external.Set("u1", decimal.NewFromInt(65))

	reconciler := app.NewReconciler(ledger, external, decimal.RequireFromString("0.001"))
	job, err := NewReconcileJob(reconciler, "@every 5m", time.Second)
	require.NoError(t, err)

	job.Run()
	balance, _ := ledger.GetBalance(ctx, "u1")
	assert.True(t, balance.Equal(decimal.NewFromInt(65)))
}

func TestReconcileJobFiresOnSchedule(t *testing.T) {
	sweeper := &countingSweeper{}
	job, err := NewReconcileJob(sweeper, "@every 1s", time.Second)
	require.NoError(t, err)

	job.Start()
	defer job.Stop()

	assert.Eventually(t, func() bool { return sweeper.runs.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
}

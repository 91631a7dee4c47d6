package app

import (
	"context"
	"sync"

	"quiz-reward-service/internal/domain"
	"quiz-reward-service/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of reconciling one user.
type Outcome int

const (
	// OutcomeSkipped: no external reading this cycle.
	OutcomeSkipped Outcome = iota
	// OutcomeInSync: within epsilon, nothing written.
	OutcomeInSync
	// OutcomeOverwritten: the ledger was set to the external balance.
	OutcomeOverwritten
	// OutcomeLocked: another reconciler holds the user's lock.
	OutcomeLocked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeInSync:
		return "in_sync"
	case OutcomeOverwritten:
		return "overwritten"
	case OutcomeLocked:
		return "locked"
	}
	return "unknown"
}

// Reconciler aligns the ledger balance to the external balance. The external
// source wins whenever the two differ by more than epsilon.
type Reconciler struct {
	balances    domain.BalanceStore
	external    domain.ExternalBalanceSource
	notifier    domain.Notifier
	locker      domain.Locker
	epsilon     decimal.Decimal
	concurrency int
}

type ReconcilerOption func(*Reconciler)

// WithLocker serialises reconciliation per user.
func WithLocker(l domain.Locker) ReconcilerOption {
	return func(r *Reconciler) { r.locker = l }
}

// WithNotifier reports overwrites as BalanceReconciled events.
func WithNotifier(n domain.Notifier) ReconcilerOption {
	return func(r *Reconciler) { r.notifier = n }
}

// WithConcurrency bounds the number of users reconciled at once by Sweep.
func WithConcurrency(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func NewReconciler(balances domain.BalanceStore, external domain.ExternalBalanceSource, epsilon decimal.Decimal, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		balances:    balances,
		external:    external,
		epsilon:     epsilon,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile compares the two readings for userID and overwrites the ledger
// when they diverge beyond epsilon.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (Outcome, error) {
	log := logger.Get().With(zap.String("userID", userID))
	if r.external == nil {
		return OutcomeSkipped, nil
	}

	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx, "reconcile:"+userID)
		if err != nil {
			return OutcomeSkipped, err
		}
		if !ok {
			log.Debug("reconcile lock busy")
			return OutcomeLocked, nil
		}
		defer release()
	}

	external, err := r.external.ReadExternalBalance(ctx, userID)
	if err != nil {
		log.Debug("external balance unavailable, skipping", zap.Error(err))
		return OutcomeSkipped, nil
	}

	ledger, err := r.balances.GetBalance(ctx, userID)
	if err != nil {
		return OutcomeSkipped, domain.NewPersistenceError("read balance", err)
	}

	if external.Sub(ledger).Abs().LessThanOrEqual(r.epsilon) {
		return OutcomeInSync, nil
	}

	if err := r.balances.SetBalance(ctx, userID, external); err != nil {
		return OutcomeSkipped, domain.NewPersistenceError("overwrite balance", err)
	}
	log.Info("ledger overwritten from external balance",
		zap.String("ledger", ledger.String()),
		zap.String("external", external.String()))

	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, domain.BalanceReconciledEvent(userID, external)); err != nil {
			log.Warn("reconcile notification failed", zap.Error(err))
		}
	}
	return OutcomeOverwritten, nil
}

// SweepReport counts outcomes across a sweep.
type SweepReport struct {
	Outcomes map[Outcome]int
	Failed   map[string]error
}

// Sweep reconciles userIDs concurrently. Per-user failures are collected in
// the report; the returned error is only set when ctx is done.
func (r *Reconciler) Sweep(ctx context.Context, userIDs []string) (SweepReport, error) {
	report := SweepReport{
		Outcomes: make(map[Outcome]int),
		Failed:   make(map[string]error),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := r.Reconcile(gctx, userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[userID] = err
				return nil
			}
			report.Outcomes[outcome]++
			return nil
		})
	}
	err := g.Wait()
	return report, err
}

// SweepAll reconciles every user the balance store knows about.
func (r *Reconciler) SweepAll(ctx context.Context) (SweepReport, error) {
	users, err := r.balances.ListUsers(ctx)
	if err != nil {
		return SweepReport{}, domain.NewPersistenceError("list users", err)
	}
	report, err := r.Sweep(ctx, users)
	logger.Get().Info("reconcile sweep finished",
		zap.Int("users", len(users)),
		zap.Int("overwritten", report.Outcomes[OutcomeOverwritten]),
		zap.Int("inSync", report.Outcomes[OutcomeInSync]),
		zap.Int("skipped", report.Outcomes[OutcomeSkipped]),
		zap.Int("failed", len(report.Failed)))
	return report, err
}

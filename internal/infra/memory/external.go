package memory

import (
	"context"
	"sync"

	"quiz-reward-service/internal/domain"

	"github.com/shopspring/decimal"
)

// ExternalBalances is a settable domain.ExternalBalanceSource for tests and demos.
// Users without a reading are reported unavailable.
type ExternalBalances struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	reads    int
}

func NewExternalBalances() *ExternalBalances {
	return &ExternalBalances{balances: make(map[string]decimal.Decimal)}
}

func (e *ExternalBalances) Set(userID string, balance decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[userID] = balance
}

func (e *ExternalBalances) Remove(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.balances, userID)
}

// Reads reports how many times the source was queried.
func (e *ExternalBalances) Reads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reads
}

func (e *ExternalBalances) ReadExternalBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reads++
	balance, ok := e.balances[userID]
	if !ok {
		return decimal.Zero, domain.ErrExternalUnavailable
	}
	return balance, nil
}

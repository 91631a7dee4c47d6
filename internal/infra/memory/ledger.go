package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-reward-service/internal/domain"

	"github.com/shopspring/decimal"
)

// Op names a ledger write for failure injection.
type Op string

const (
	OpSaveAttempt Op = "attempt"
	OpIncrement   Op = "balance"
	OpSetBalance  Op = "set"
	OpSaveNFT     Op = "nft"
)

type txKey struct{}

// ledgerTx records how to undo the writes made inside a transaction.
type ledgerTx struct {
	undo []func()
}

// Ledger is an in-memory domain.Ledger. Transactions hold the ledger lock for
// their whole duration and roll back through an undo journal, so a balance
// increment always applies to the value current at commit time.
type Ledger struct {
	mu         sync.Mutex
	attempts   map[string]domain.Attempt
	byUserQuiz map[string]string
	balances   map[string]decimal.Decimal
	nfts       map[string]domain.NFTRecord
	failures   map[Op]error
	writes     map[Op]int
}

func NewLedger() *Ledger {
	return &Ledger{
		attempts:   make(map[string]domain.Attempt),
		byUserQuiz: make(map[string]string),
		balances:   make(map[string]decimal.Decimal),
		nfts:       make(map[string]domain.NFTRecord),
		failures:   make(map[Op]error),
		writes:     make(map[Op]int),
	}
}

// FailNext makes the next write of kind op fail with err.
func (l *Ledger) FailNext(op Op, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[op] = err
}

// Writes returns how many successful writes of kind op happened.
func (l *Ledger) Writes(op Op) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes[op]
}

// NFTs returns the records owned by userID.
func (l *Ledger) NFTs(userID string) []domain.NFTRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.NFTRecord
	for _, record := range l.nfts {
		if record.OwnerID == userID {
			out = append(out, record)
		}
	}
	return out
}

func (l *Ledger) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*ledgerTx); ok {
		return fn(ctx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &ledgerTx{}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (tx *ledgerTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
}

// acquire locks the ledger unless ctx already carries a transaction.
func (l *Ledger) acquire(ctx context.Context) (*ledgerTx, func()) {
	if tx, ok := ctx.Value(txKey{}).(*ledgerTx); ok {
		return tx, func() {}
	}
	l.mu.Lock()
	return nil, l.mu.Unlock
}

func (l *Ledger) injected(op Op) error {
	if err, ok := l.failures[op]; ok {
		delete(l.failures, op)
		return err
	}
	return nil
}

func (l *Ledger) record(tx *ledgerTx, op Op, undo func()) {
	l.writes[op]++
	if tx != nil {
		tx.undo = append(tx.undo, func() {
			l.writes[op]--
			undo()
		})
	}
}

func userQuizKey(userID, quizID string) string {
	return userID + ":" + quizID
}

func (l *Ledger) SaveAttempt(ctx context.Context, attempt domain.Attempt, result domain.RewardResult, allowRepeat bool) error {
	tx, release := l.acquire(ctx)
	defer release()

	if err := l.injected(OpSaveAttempt); err != nil {
		return err
	}
	key := userQuizKey(attempt.UserID, attempt.QuizID)
	if _, ok := l.attempts[attempt.ID]; ok {
		return domain.ErrAttemptExists
	}
	if _, taken := l.byUserQuiz[key]; taken && !allowRepeat {
		return domain.ErrAttemptExists
	}

	stored := attempt
	stored.Answers = append([]int(nil), attempt.Answers...)
	stored.Result = &result
	prevLatest, hadLatest := l.byUserQuiz[key]
	l.attempts[attempt.ID] = stored
	l.byUserQuiz[key] = attempt.ID
	l.record(tx, OpSaveAttempt, func() {
		delete(l.attempts, attempt.ID)
		if hadLatest {
			l.byUserQuiz[key] = prevLatest
		} else {
			delete(l.byUserQuiz, key)
		}
	})
	return nil
}

func (l *Ledger) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	_, release := l.acquire(ctx)
	defer release()

	attempt, ok := l.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (l *Ledger) LatestAttempt(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	_, release := l.acquire(ctx)
	defer release()

	attemptID, ok := l.byUserQuiz[userQuizKey(userID, quizID)]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return l.attempts[attemptID], nil
}

func (l *Ledger) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	_, release := l.acquire(ctx)
	defer release()
	return l.balances[userID], nil
}

func (l *Ledger) IncrementBalance(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	tx, release := l.acquire(ctx)
	defer release()

	if err := l.injected(OpIncrement); err != nil {
		return decimal.Zero, err
	}
	prev, existed := l.balances[userID]
	next := prev.Add(delta)
	l.balances[userID] = next
	l.record(tx, OpIncrement, func() { l.restoreBalance(userID, prev, existed) })
	return next, nil
}

func (l *Ledger) SetBalance(ctx context.Context, userID string, value decimal.Decimal) error {
	tx, release := l.acquire(ctx)
	defer release()

	if err := l.injected(OpSetBalance); err != nil {
		return err
	}
	prev, existed := l.balances[userID]
	l.balances[userID] = value
	l.record(tx, OpSetBalance, func() { l.restoreBalance(userID, prev, existed) })
	return nil
}

func (l *Ledger) restoreBalance(userID string, prev decimal.Decimal, existed bool) {
	if existed {
		l.balances[userID] = prev
		return
	}
	delete(l.balances, userID)
}

func (l *Ledger) ListUsers(ctx context.Context) ([]string, error) {
	_, release := l.acquire(ctx)
	defer release()

	users := make([]string, 0, len(l.balances))
	for userID := range l.balances {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users, nil
}

func (l *Ledger) SaveNFT(ctx context.Context, record domain.NFTRecord) error {
	tx, release := l.acquire(ctx)
	defer release()

	if err := l.injected(OpSaveNFT); err != nil {
		return err
	}
	if _, ok := l.nfts[record.ID]; ok {
		return domain.ErrNFTExists
	}
	l.nfts[record.ID] = record
	l.record(tx, OpSaveNFT, func() { delete(l.nfts, record.ID) })
	return nil
}

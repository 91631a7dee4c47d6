package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"quiz-reward-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type txKey struct{}

// Ledger is the bun-backed domain.Ledger. Stores join the transaction carried
// in ctx by WithTransaction and fall back to the pool otherwise.
type Ledger struct {
	db  *bun.DB
	now func() time.Time
}

func NewLedger(db *bun.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

func (l *Ledger) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return l.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (l *Ledger) idb(ctx context.Context) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return l.db
}

func (l *Ledger) SaveAttempt(ctx context.Context, attempt domain.Attempt, result domain.RewardResult, allowRepeat bool) error {
	db := l.idb(ctx)

	if !allowRepeat {
		// Serialises concurrent first attempts at the same quiz until commit.
		if _, err := db.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", attempt.UserID+":"+attempt.QuizID); err != nil {
			return err
		}
		taken, err := db.NewSelect().
			Model((*attemptModel)(nil)).
			Where("user_id = ?", attempt.UserID).
			Where("quiz_id = ?", attempt.QuizID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrAttemptExists
		}
	}

	submittedAt := attempt.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = l.now().UTC()
	}
	model := &attemptModel{
		ID:          attempt.ID,
		QuizID:      attempt.QuizID,
		UserID:      attempt.UserID,
		Answers:     attempt.Answers,
		Result:      result,
		SubmittedAt: submittedAt,
	}
	res, err := db.NewInsert().Model(model).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAttemptExists
	}
	return nil
}

func (l *Ledger) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var model attemptModel
	err := l.idb(ctx).NewSelect().Model(&model).Where("id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return model.toDomain(), nil
}

func (l *Ledger) LatestAttempt(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	var model attemptModel
	err := l.idb(ctx).NewSelect().
		Model(&model).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		OrderExpr("submitted_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return model.toDomain(), nil
}

// GetBalance returns zero for users that were never credited.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var model balanceModel
	err := l.idb(ctx).NewSelect().Model(&model).Where("user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return model.Ledger, nil
}

// IncrementBalance adds delta to the stored value inside the database so
// concurrent increments and overwrites are never lost.
func (l *Ledger) IncrementBalance(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	model := &balanceModel{UserID: userID, Ledger: delta, UpdatedAt: l.now().UTC()}
	_, err := l.idb(ctx).NewInsert().
		Model(model).
		On("CONFLICT (user_id) DO UPDATE").
		Set("ledger = b.ledger + EXCLUDED.ledger").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("ledger").
		Exec(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return model.Ledger, nil
}

func (l *Ledger) SetBalance(ctx context.Context, userID string, value decimal.Decimal) error {
	model := &balanceModel{UserID: userID, Ledger: value, UpdatedAt: l.now().UTC()}
	_, err := l.idb(ctx).NewInsert().
		Model(model).
		On("CONFLICT (user_id) DO UPDATE").
		Set("ledger = EXCLUDED.ledger").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (l *Ledger) ListUsers(ctx context.Context) ([]string, error) {
	var users []string
	err := l.idb(ctx).NewSelect().
		Model((*balanceModel)(nil)).
		Column("user_id").
		Order("user_id ASC").
		Scan(ctx, &users)
	return users, err
}

func (l *Ledger) SaveNFT(ctx context.Context, record domain.NFTRecord) error {
	model := &nftModel{
		ID:          record.ID,
		OwnerID:     record.OwnerID,
		Achievement: record.Achievement,
		Metadata:    record.Metadata,
		CreatedAt:   record.CreatedAt,
	}
	res, err := l.idb(ctx).NewInsert().Model(model).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNFTExists
	}
	return nil
}

// NFTs lists the records owned by userID, oldest first.
func (l *Ledger) NFTs(ctx context.Context, userID string) ([]domain.NFTRecord, error) {
	var models []nftModel
	err := l.idb(ctx).NewSelect().
		Model(&models).
		Where("owner_id = ?", userID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]domain.NFTRecord, 0, len(models))
	for _, m := range models {
		records = append(records, domain.NFTRecord{
			ID:          m.ID,
			OwnerID:     m.OwnerID,
			Achievement: m.Achievement,
			Metadata:    m.Metadata,
			CreatedAt:   m.CreatedAt,
		})
	}
	return records, nil
}

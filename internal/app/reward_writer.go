package app

import (
	"context"
	"errors"
	"time"

	"quiz-reward-service/internal/domain"
	"quiz-reward-service/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RewardWriter commits a scored attempt: the attempt record, the balance
// credit and the NFT are written in one transaction, then the notifier is told.
type RewardWriter struct {
	ledger      domain.Ledger
	notifier    domain.Notifier
	allowRepeat bool
	now         func() time.Time
}

func NewRewardWriter(ledger domain.Ledger, notifier domain.Notifier, allowRepeat bool) *RewardWriter {
	return &RewardWriter{
		ledger:      ledger,
		notifier:    notifier,
		allowRepeat: allowRepeat,
		now:         time.Now,
	}
}

// Commit implements Committer. Retrying an attempt that is already stored
// returns the stored result and credits nothing.
func (w *RewardWriter) Commit(ctx context.Context, user domain.UserSession, attempt domain.Attempt, quiz domain.Quiz, result domain.RewardResult) (domain.RewardResult, error) {
	log := logger.Get().With(
		zap.String("userID", user.UserID),
		zap.String("quizID", quiz.ID),
		zap.String("attemptID", attempt.ID),
	)

	var (
		committed domain.RewardResult
		balance   decimal.Decimal
		nftID     string
		replayed  bool
	)
	err := w.ledger.WithTransaction(ctx, func(ctx context.Context) error {
		stored, err := w.ledger.GetAttempt(ctx, attempt.ID)
		switch {
		case err == nil && stored.Result != nil:
			committed = *stored.Result
			replayed = true
			return nil
		case err != nil && !errors.Is(err, domain.ErrAttemptNotFound):
			return domain.NewPersistenceError("load attempt", err)
		}

		if err := w.ledger.SaveAttempt(ctx, attempt, result, w.allowRepeat); err != nil {
			if errors.Is(err, domain.ErrAttemptExists) {
				return err
			}
			return domain.NewPersistenceError("attempt", err)
		}

		balance, err = w.ledger.IncrementBalance(ctx, user.UserID, decimal.NewFromInt(int64(result.Tokens)))
		if err != nil {
			return domain.NewPersistenceError("balance", err)
		}

		if result.NFTAwarded {
			record := domain.NewPerfectQuizNFT(user.UserID, quiz, w.now().UTC())
			if err := w.ledger.SaveNFT(ctx, record); err != nil && !errors.Is(err, domain.ErrNFTExists) {
				return domain.NewPersistenceError("nft", err)
			}
			nftID = record.ID
		}

		committed = result
		return nil
	})
	if errors.Is(err, domain.ErrAttemptExists) {
		log.Info("quiz already attempted")
		return domain.RewardResult{}, w.attemptExists(ctx, user.UserID, quiz.ID)
	}
	if err != nil {
		err = domain.NewPersistenceError("commit", err)
		log.Warn("reward commit failed", zap.Error(err))
		return domain.RewardResult{}, err
	}
	if replayed {
		log.Info("attempt already committed, returning stored result")
		return committed, nil
	}

	log.Info("reward committed",
		zap.Int("percentage", committed.Percentage),
		zap.Int("tokens", committed.Tokens),
		zap.Bool("nft", committed.NFTAwarded),
		zap.String("balance", balance.String()),
	)
	w.notify(ctx, domain.QuizRewardEvent(user.UserID, quiz.ID, committed, nftID, balance))
	return committed, nil
}

// attemptExists looks up the result already stored for the user and quiz.
// A failed lookup still reports the conflict, just without the prior result.
func (w *RewardWriter) attemptExists(ctx context.Context, userID, quizID string) error {
	prior, err := w.ledger.LatestAttempt(ctx, userID, quizID)
	if err != nil {
		logger.Get().Debug("prior attempt lookup failed", zap.String("userID", userID), zap.String("quizID", quizID), zap.Error(err))
		return &domain.AttemptExistsError{}
	}
	return &domain.AttemptExistsError{Prior: prior.Result}
}

func (w *RewardWriter) notify(ctx context.Context, event domain.RewardEvent) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, event); err != nil {
		logger.Get().Warn("reward notification failed",
			zap.String("kind", event.Kind.String()),
			zap.String("userID", event.UserID),
			zap.Error(err))
	}
}

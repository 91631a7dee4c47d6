package app

import (
	"context"
	"sync"
	"time"

	"quiz-reward-service/internal/domain"
	"quiz-reward-service/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SessionRepository abstracts where open quiz sessions live (in-memory, Redis-marked, etc).
type SessionRepository interface {
	Put(key string, session *Session)
	Get(key string) (*Session, bool)
	Delete(key string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	domain.QuizLoader
}

// QuizService contains the quiz-taking use cases.
type QuizService struct {
	sessions   SessionRepository
	quizzes    QuizRepository
	committer  Committer
	reconciler *Reconciler

	reconcileTimeout time.Duration
	background       sync.WaitGroup

	mu      sync.Mutex
	holders map[string]int
	loading singleflight.Group
}

func NewQuizService(store SessionRepository, quizzes QuizRepository, committer Committer, reconciler *Reconciler) *QuizService {
	return &QuizService{
		sessions:         store,
		quizzes:          quizzes,
		committer:        committer,
		reconciler:       reconciler,
		reconcileTimeout: 10 * time.Second,
		holders:          make(map[string]int),
	}
}

// SessionKey identifies the session of user for contentID.
func SessionKey(userID, contentID string) string {
	return userID + ":" + contentID
}

// Open returns the user's live session for contentID, loading a fresh one if
// none exists. Concurrent opens of the same key share one session. Every
// successful Open must be paired with Release.
func (s *QuizService) Open(ctx context.Context, user domain.UserSession, contentID string) (*Session, error) {
	key := SessionKey(user.UserID, contentID)
	if session, ok := s.acquire(key); ok {
		return session, nil
	}

	v, err, _ := s.loading.Do(key, func() (any, error) {
		session := NewSession(user, contentID, s.quizzes, s.committer)
		return session, session.Load(ctx)
	})
	session := v.(*Session)
	if err != nil {
		logger.Get().Warn("quiz unavailable",
			zap.String("contentID", contentID),
			zap.String("userID", user.UserID),
			zap.Error(err))
		return session, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions.Get(key); ok {
		session = current
	} else {
		s.sessions.Put(key, session)
	}
	s.holders[key]++
	return session, nil
}

func (s *QuizService) acquire(key string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions.Get(key)
	if ok {
		s.holders[key]++
	}
	return session, ok
}

// Release gives up one hold on session. The last holder removes it from the
// store; an unsubmitted attempt is simply dropped.
func (s *QuizService) Release(session *Session) {
	key := SessionKey(session.User().UserID, session.ContentID())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holders[key] > 1 {
		s.holders[key]--
		return
	}
	delete(s.holders, key)
	if current, ok := s.sessions.Get(key); ok && current == session {
		s.sessions.Delete(key)
	}
}

// Session returns the open session for the user and content.
func (s *QuizService) Session(userID, contentID string) (*Session, error) {
	session, ok := s.sessions.Get(SessionKey(userID, contentID))
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Submit submits the open session of userID for contentID.
func (s *QuizService) Submit(ctx context.Context, userID, contentID string) (domain.RewardResult, error) {
	session, err := s.Session(userID, contentID)
	if err != nil {
		return domain.RewardResult{}, err
	}
	return s.SubmitSession(ctx, session)
}

// SubmitSession submits session's attempt. After a successful commit the
// user's balance is reconciled in the background when a wallet is connected.
func (s *QuizService) SubmitSession(ctx context.Context, session *Session) (domain.RewardResult, error) {
	result, err := session.Submit(ctx)
	if err != nil {
		return domain.RewardResult{}, err
	}
	if user := session.User(); user.WalletConnected {
		s.reconcileAsync(user.UserID)
	}
	return result, nil
}

// Abandon drops an unsubmitted session. Nothing was persisted, so nothing is rolled back.
func (s *QuizService) Abandon(_ context.Context, userID, contentID string) {
	key := SessionKey(userID, contentID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holders, key)
	s.sessions.Delete(key)
}

// Reconcile runs reconciliation for userID on demand.
func (s *QuizService) Reconcile(ctx context.Context, userID string) (Outcome, error) {
	if s.reconciler == nil {
		return OutcomeSkipped, nil
	}
	return s.reconciler.Reconcile(ctx, userID)
}

func (s *QuizService) reconcileAsync(userID string) {
	if s.reconciler == nil {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.reconcileTimeout)
		defer cancel()
		if _, err := s.reconciler.Reconcile(ctx, userID); err != nil {
			logger.Get().Warn("post-award reconcile failed", zap.String("userID", userID), zap.Error(err))
		}
	}()
}

// Wait blocks until background reconciliations finish.
func (s *QuizService) Wait() {
	s.background.Wait()
}

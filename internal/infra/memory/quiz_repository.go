package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-reward-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuizRepository caches validated quizzes per content item with a TTL to
// avoid repeated loader hits.
type QuizRepository struct {
	loader domain.QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader domain.QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) LoadQuiz(ctx context.Context, contentID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(contentID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(contentID, func() (interface{}, error) {
		if quiz, ok := r.cached(contentID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, contentID)
		if err != nil {
			return domain.Quiz{}, err
		}
		// Invalid quizzes are not cached; the next open retries the loader.
		if err := quiz.Validate(); err != nil {
			return quiz, err
		}

		r.mu.Lock()
		r.cache[contentID] = cachedQuiz{
			quiz:      quiz,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) cached(contentID string) (domain.Quiz, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[contentID]; ok && entry.expiresAt.After(now) {
		return entry.quiz, true
	}
	return domain.Quiz{}, false
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader is a simple loader backed by an in-memory map keyed by content ID.
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, contentID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[contentID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

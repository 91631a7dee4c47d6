package cli

import (
	"context"
	"time"

	"quiz-reward-service/internal/app"
	"quiz-reward-service/internal/config"
	"quiz-reward-service/internal/domain"
	"quiz-reward-service/internal/infra/chain"
	"quiz-reward-service/internal/infra/memory"
	pgstore "quiz-reward-service/internal/infra/postgres"
	infraredis "quiz-reward-service/internal/infra/redis"
	"quiz-reward-service/internal/logger"
	transport "quiz-reward-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// eventBus both receives reward events and streams them to sockets.
type eventBus interface {
	domain.Notifier
	transport.EventSource
}

// components is the wired object graph shared by the start and reconcile commands.
type components struct {
	service    *app.QuizService
	reconciler *app.Reconciler
	events     eventBus
	closers    []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// wire picks Postgres and Redis backends when configured and in-memory ones otherwise.
func wire(ctx context.Context, cfg config.Config) (*components, error) {
	log := logger.Get()
	c := &components{}

	epsilon := cfg.Reward.EpsilonValue()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func() { _ = redisClient.Close() })
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var loader domain.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	var ledger domain.Ledger = memory.NewLedger()
	if cfg.Postgres.URL != "" {
		db := openBun(cfg.Postgres.URL)
		c.closers = append(c.closers, func() { _ = db.Close() })
		if err := runMigrations(ctx, db); err != nil {
			c.Close()
			return nil, err
		}
		ledger = pgstore.NewLedger(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, pool.Close)
		loader = pgstore.NewQuizLoader(pool)
	} else {
		log.Warn("postgres not configured, rewards are kept in memory")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		quizRepo app.QuizRepository
		store    app.SessionRepository
		locker   domain.Locker
	)
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
		store = infraredis.NewSessionStore(redisClient, redisTTL)
		c.events = infraredis.NewNotifier(redisClient, cfg.Redis.Channel)
		locker = infraredis.NewLocker(redisClient, 30*time.Second)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewSessionStore()
		c.events = memory.NewNotifier()
		locker = memory.NewLocker()
	}

	var external domain.ExternalBalanceSource
	if cfg.Chain.URL != "" {
		external = chain.NewBalanceClient(cfg.Chain.URL, config.TTLDuration(cfg.Chain.Timeout, 3*time.Second))
	} else {
		log.Info("chain url not configured, reconciliation will skip every user")
	}

	writer := app.NewRewardWriter(ledger, c.events, cfg.Reward.AllowRepeatAttempts)
	c.reconciler = app.NewReconciler(ledger, external, epsilon,
		app.WithLocker(locker),
		app.WithNotifier(c.events),
		app.WithConcurrency(cfg.Reward.Concurrency()),
	)
	c.service = app.NewQuizService(store, quizRepo, writer, c.reconciler)

	log.Info("components wired",
		zap.Bool("redis", redisClient != nil),
		zap.Bool("postgres", cfg.Postgres.URL != ""),
		zap.Bool("chain", external != nil),
		zap.String("epsilon", epsilon.String()))
	return c, nil
}

package svc

import (
	"context"
	"fmt"
	"os"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"folio/internal/application/container"
	"folio/internal/application/port"
	"folio/internal/application/service"
	"folio/internal/application/usecase/monitor"
	"folio/internal/infrastructure/config"
	"folio/internal/infrastructure/notify"
	"folio/internal/infrastructure/quote"
	"folio/internal/infrastructure/quote/alpaca"
	"folio/internal/infrastructure/quote/stream"
	"folio/internal/infrastructure/storage"
	"folio/internal/infrastructure/storage/composite"
	pgrepo "folio/internal/infrastructure/storage/postgres"
	redisrepo "folio/internal/infrastructure/storage/redis"
	sqliterepo "folio/internal/infrastructure/storage/sqlite"
	"folio/internal/interfaces/console"
)

// ServiceContext 组合根：按依赖顺序构建所有组件，并负责关闭它们
type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层
	store     port.Store
	redisRepo *redisrepo.Repo
	cache     port.QuoteCache
	tracker   *stream.Tracker
	scheduler *notify.Scheduler

	// 对外端口
	Quotes   port.QuoteProvider
	Notifier port.Notifier

	// 应用服务
	Book   *service.PositionService
	Prices *service.PriceService
	Alerts *monitor.Service

	closerChain []func() error
}

// New 创建并初始化 ServiceContext。失败时已创建的资源会被关闭
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		closerChain: make([]func() error, 0),
	}
	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}
	if err := sc.initializeQuotes(); err != nil {
		return err
	}
	sc.initializeNotifier()

	app := container.New(sc.store, sc.Quotes, sc.Config.Alerts.Parallel)
	sc.Book = app.PositionService()
	if err := sc.Book.Load(sc.Ctx); err != nil {
		return err
	}
	sc.Prices = app.PriceService()
	sc.Alerts = monitor.NewService(sc.BuildMonitorServiceDeps())

	log.Info().
		Str("storage", sc.Config.Storage.Driver).
		Bool("live_quotes", sc.Config.HasCredentials() && sc.Config.Quotes.Provider == "alpaca").
		Bool("stream", sc.tracker != nil).
		Int("positions", len(sc.Book.Positions())).
		Msg("✓ All components initialized")
	return nil
}

// initializeStorage 持仓/提醒仓储 + 报价缓存（Redis 可选）
func (sc *ServiceContext) initializeStorage() error {
	if sc.Config.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
	}

	caches := make([]port.QuoteCache, 0, 2)
	if sc.redisRepo != nil {
		caches = append(caches, sc.redisRepo)
	}

	switch sc.Config.Storage.Driver {
	case "sqlite":
		repo, err := sqliterepo.New(sc.Config.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite repo creation failed: %w", err)
		}
		sc.store = repo
		caches = append(caches, repo)
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing sqlite connection")
			return repo.Close()
		})
		log.Info().Str("path", sc.Config.Storage.SQLitePath).Msg("✓ SQLite initialized")

	case "postgres":
		repo, err := pgrepo.New(sc.Config.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres repo creation failed: %w", err)
		}
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return repo.Close()
		})
		pctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
		defer cancel()
		if err := repo.Ping(pctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
		sc.store = repo
		caches = append(caches, storage.NewMemoryQuoteCache())
		log.Info().Msg("✓ Postgres initialized")

	default:
		sc.store = storage.NewMemoryStore()
		caches = append(caches, storage.NewMemoryQuoteCache())
		log.Warn().Msg("using in-memory storage, data is lost on exit")
	}

	sc.cache = composite.New(caches...)
	return nil
}

func (sc *ServiceContext) initRedis() error {
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     sc.Config.Redis.Addr,
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	sc.redisRepo = redisrepo.New(
		rdb,
		sc.Config.Redis.Prefix,
		sc.Config.RedisTTL(),
		sc.Config.Redis.Stream,
		sc.Config.Redis.Channel,
	)
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", sc.Config.Redis.Addr).
		Int("db", sc.Config.Redis.DB).
		Msg("✓ Redis initialized")
	return nil
}

// initializeQuotes 行情：Alpaca（可选推送）-> 缓存 -> 演示数据
func (sc *ServiceContext) initializeQuotes() error {
	cfg := sc.Config
	var primary port.QuoteProvider

	if cfg.Quotes.Provider == "alpaca" {
		if !cfg.HasCredentials() {
			if cfg.Quotes.StreamEnabled {
				return ErrNoCredentials
			}
			log.Warn().Msg("alpaca credentials missing, quotes fall back to cache and demo data")
		} else {
			base := alpaca.NewProvider(alpaca.Config{
				APIKey:    cfg.Quotes.APIKey,
				APISecret: cfg.Quotes.APISecret,
				Feed:      cfg.Quotes.Feed,
				Timeout:   cfg.QuoteTimeout(),
			})
			primary = base
			if cfg.Quotes.StreamEnabled {
				feed := stream.NewFeed(cfg.Quotes.StreamURL, cfg.Quotes.APIKey, cfg.Quotes.APISecret)
				sc.tracker = stream.NewTracker(base, feed, sc.cache, cfg.StreamMaxAge())
				primary = sc.tracker
			}
		}
	}

	sc.Quotes = quote.NewResilient(primary, sc.cache, cfg.QuoteTimeout())
	return nil
}

// initializeNotifier 控制台总是启用；Redis、Kafka 按配置追加
func (sc *ServiceContext) initializeNotifier() {
	senders := []port.Sender{console.NewSink(os.Stdout, sc.Config.App.LogPretty)}
	if sc.redisRepo != nil {
		senders = append(senders, sc.redisRepo)
	}
	if sc.Config.Kafka.Enabled {
		k := notify.NewKafkaSender(sc.Config.Kafka.Brokers, sc.Config.Kafka.Topic)
		senders = append(senders, k)
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing kafka writer")
			return k.Close()
		})
		log.Info().Strs("brokers", sc.Config.Kafka.Brokers).Str("topic", sc.Config.Kafka.Topic).Msg("✓ Kafka initialized")
	}

	sc.scheduler = notify.NewScheduler(sc.Config.NotifyDelay(), sc.Config.QuoteTimeout(), senders...)
	sc.Notifier = sc.scheduler
	// 调度器先于下游连接关闭
	sc.closerChain = append(sc.closerChain, sc.scheduler.Close)
}

// BuildMonitorServiceDeps 构建提醒引擎所需的依赖
func (sc *ServiceContext) BuildMonitorServiceDeps() monitor.ServiceDeps {
	return monitor.ServiceDeps{
		Quotes:       sc.Quotes,
		Notifier:     sc.Notifier,
		Repo:         sc.store,
		Interval:     sc.Config.AlertInterval(),
		QuoteTimeout: sc.Config.QuoteTimeout(),
		Parallel:     sc.Config.Alerts.Parallel,
		Currency:     sc.Config.App.Currency,
	}
}

// Tracker 实时推送未启用时为 nil
func (sc *ServiceContext) Tracker() *stream.Tracker { return sc.tracker }

// Close 按相反顺序关闭所有资源
func (sc *ServiceContext) Close() error {
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}

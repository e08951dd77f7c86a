package svc

import (
	"context"
	"fmt"
	"strings"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"xspread/internal/application/port"
	"xspread/internal/application/usecase/monitor"
	"xspread/internal/domain/model"
	"xspread/internal/infrastructure/config"
	"xspread/internal/infrastructure/exchange"
	_ "xspread/internal/infrastructure/exchange/binance" // registers the binance feed
	_ "xspread/internal/infrastructure/exchange/bybit"   // registers the bybit feed
	"xspread/internal/infrastructure/pricefeed"
	compositerepo "xspread/internal/infrastructure/storage/composite"
	pgrepo "xspread/internal/infrastructure/storage/postgres"
	redisrepo "xspread/internal/infrastructure/storage/redis"
	sqliterepo "xspread/internal/infrastructure/storage/sqlite"
	"xspread/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 存储层（均为可选的 ranking 镜像）
	redisClient *redisclient.Client
	redisRepo   *redisrepo.Repo
	sqliteRepo  *sqliterepo.Repo
	pgRepo      *pgrepo.Repo
	publisher   port.Publisher

	// 输出端口
	Sink port.Sink

	priceFeeds []monitor.PriceFeed

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext，所有依赖在这里装配
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}

	feeds, err := buildPriceFeeds(sc.Config)
	if err != nil {
		return err
	}
	sc.priceFeeds = feeds

	log.Info().
		Int("feeds", len(feeds)).
		Bool("mirror", sc.publisher != nil).
		Msg("✓ All components initialized")
	return nil
}

// buildPriceFeeds 用注册表里的 factory 为现货和永续各建一个 feed
func buildPriceFeeds(cfg *config.Config) ([]monitor.PriceFeed, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Feed.Exchange))
	factory, ok := pricefeed.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrFeedNotRegistered, name, strings.Join(pricefeed.Names(), ","))
	}

	retry := exchange.RetryPolicy{
		Min: time.Duration(cfg.Feed.ReconnectDelayMs) * time.Millisecond,
		Max: time.Duration(cfg.Feed.ReconnectMaxDelayMs) * time.Millisecond,
	}
	spot := factory(pricefeed.Options{
		Market: model.MarketSpot,
		WsURL:  cfg.Feed.SpotWsURL,
		Quote:  cfg.Symbols.Quote,
		Retry:  retry,

		Symbols: cfg.Symbols.List,
	})
	perp := factory(pricefeed.Options{
		Market: model.MarketPerpetual,
		WsURL:  cfg.Feed.PerpetualWsURL,
		Quote:  cfg.Symbols.Quote,
		Retry:  retry,

		Symbols: cfg.Symbols.List,
	})
	return []monitor.PriceFeed{spot, perp}, nil
}

// initializeStorage 初始化启用的镜像后端；全部关闭时 publisher 为 nil
func (sc *ServiceContext) initializeStorage() error {
	var pubs []port.Publisher

	if sc.Config.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		pubs = append(pubs, sc.redisRepo)
	}

	if sc.Config.SQLite.Enabled {
		if err := sc.initSQLite(); err != nil {
			return fmt.Errorf("sqlite initialization failed: %w", err)
		}
		pubs = append(pubs, sc.sqliteRepo)
	}

	if sc.Config.Postgres.Enabled {
		if err := sc.initPostgres(); err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		pubs = append(pubs, sc.pgRepo)
	}

	switch len(pubs) {
	case 0:
	case 1:
		sc.publisher = pubs[0]
	default:
		sc.publisher = compositerepo.New(pubs...)
	}
	return nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() error {
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     sc.Config.Redis.Addr,
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	sc.redisClient = rdb
	ttl := time.Duration(sc.Config.Redis.TTLSec) * time.Second
	sc.redisRepo = redisrepo.New(rdb, sc.Config.Redis.Prefix, ttl)

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", sc.Config.Redis.Addr).
		Int("db", sc.Config.Redis.DB).
		Str("key", sc.redisRepo.Key()).
		Msg("✓ Redis initialized")
	return nil
}

// initSQLite 初始化 SQLite 数据库
func (sc *ServiceContext) initSQLite() error {
	repo, err := sqliterepo.New(sc.Config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("sqlite repo creation failed: %w", err)
	}
	sc.sqliteRepo = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", sc.Config.SQLite.Path).
		Msg("✓ SQLite initialized")
	return nil
}

func (sc *ServiceContext) initPostgres() error {
	repo, err := pgrepo.New(sc.Config.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres repo creation failed: %w", err)
	}
	sc.pgRepo = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("✓ Postgres initialized")
	return nil
}

// GetSQLiteRepo 获取 SQLite 仓储
func (sc *ServiceContext) GetSQLiteRepo() *sqliterepo.Repo {
	return sc.sqliteRepo
}

// GetPriceFeeds 获取已初始化的价格源
func (sc *ServiceContext) GetPriceFeeds() []monitor.PriceFeed {
	return sc.priceFeeds
}

// BuildMonitorServiceDeps 构建 Monitor Service 所需的所有依赖
func (sc *ServiceContext) BuildMonitorServiceDeps() monitor.ServiceDeps {
	return monitor.ServiceDeps{
		Feeds:     sc.priceFeeds,
		TopK:      sc.Config.App.TopK,
		Throttle:  time.Duration(sc.Config.App.ThrottleMs) * time.Millisecond,
		Quote:     sc.Config.Symbols.Quote,
		Sink:      sc.Sink,
		Publisher: sc.publisher,
	}
}

// Close 按初始化的相反顺序关闭所有资源
func (sc *ServiceContext) Close() error {
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}

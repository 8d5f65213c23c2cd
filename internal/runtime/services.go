// Package runtime wires the adapters and services of one process from its
// configuration.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/rickandmorty-sync/internal/adapters/driven/memory"
	"github.com/custodia-labs/rickandmorty-sync/internal/adapters/driven/rickandmorty"
	redisadapter "github.com/custodia-labs/rickandmorty-sync/internal/adapters/driven/redis"
	"github.com/custodia-labs/rickandmorty-sync/internal/adapters/driven/sqlstore"
	httpadapter "github.com/custodia-labs/rickandmorty-sync/internal/adapters/driving/http"
	"github.com/custodia-labs/rickandmorty-sync/internal/config"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/services"
	"github.com/custodia-labs/rickandmorty-sync/internal/worker"
)

// Services holds the wired object graph. Backends are fixed at startup.
type Services struct {
	config  *config.Config
	runtime *domain.RuntimeConfig
	logger  *slog.Logger

	db          *sqlstore.DB
	redisClient *redis.Client // nil without REDIS_URL
	redisLock   *redisadapter.Lock

	notifier   driven.ChangeNotifier
	lock       driven.DistributedLock // nil for a single-process cache
	warmStates driven.WarmStateStore

	catalog *services.Catalog
	warmer  *worker.Warmer
}

// New connects every backend named by cfg and builds the services on top.
// On error everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Services, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if err := s.connectStore(ctx); err != nil {
		return nil, err
	}
	if err := s.connectRedis(ctx); err != nil {
		return nil, err
	}

	notifierBackend := "memory"
	if s.redisClient != nil {
		notifierBackend = "redis"
	}
	s.runtime = domain.NewRuntimeConfig(string(s.db.Driver()), notifierBackend)

	s.selectBackends()
	if err := s.buildCatalog(); err != nil {
		return nil, err
	}

	s.warmer, err = worker.NewWarmer(worker.WarmerConfig{
		Target:     s.catalog,
		States:     s.warmStates,
		Lock:       s.lock,
		Runtime:    s.runtime,
		Logger:     logger,
		Interval:   cfg.Warm.Interval,
		RunOnStart: cfg.Warm.OnStart,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("services ready",
		"store", s.runtime.StoreBackend,
		"notifier", s.runtime.NotifierBackend,
		"shared", s.runtime.Shared(),
		"remote", cfg.Remote.BaseURL,
	)
	return s, nil
}

func (s *Services) connectStore(ctx context.Context) error {
	driver, err := sqlstore.ParseDriver(s.config.Database.Driver)
	if err != nil {
		return err
	}
	dbCfg := sqlstore.DefaultConfig(driver, s.config.Database.URL)
	dbCfg.MaxOpenConns = s.config.Database.MaxOpenConns
	dbCfg.MaxIdleConns = s.config.Database.MaxIdleConns
	dbCfg.ConnMaxLifetime = s.config.Database.ConnMaxLifetime
	dbCfg.ConnMaxIdleTime = s.config.Database.ConnMaxIdleTime
	dbCfg.BusyTimeout = s.config.Database.BusyTimeout

	db, err := sqlstore.Connect(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect cache database: %w", err)
	}
	s.db = db
	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("initialize cache schema: %w", err)
	}
	s.logger.Info("cache database connected", "driver", driver)
	return nil
}

func (s *Services) connectRedis(ctx context.Context) error {
	if s.config.Redis.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(s.config.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis: %w", err)
	}
	s.redisClient = client
	s.redisLock = redisadapter.NewLock(client)
	s.logger.Info("redis connected", "addr", opts.Addr)
	return nil
}

// selectBackends picks the notifier, lock and warm state store. Redis wins
// when configured; otherwise a shared PostgreSQL cache coordinates through
// advisory locks and a local SQLite cache needs no lock at all.
func (s *Services) selectBackends() {
	switch {
	case s.redisClient != nil:
		s.notifier = redisadapter.NewNotifier(s.redisClient, s.logger)
		s.lock = s.redisLock
		s.warmStates = redisadapter.NewWarmStateStore(s.redisClient, redisadapter.DefaultWarmStateTTL)
	case s.runtime.Shared():
		s.notifier = memory.NewNotifier()
		s.lock = sqlstore.NewAdvisoryLock(s.db)
		s.warmStates = sqlstore.NewWarmStateStore(s.db)
	default:
		s.notifier = memory.NewNotifier()
		s.warmStates = sqlstore.NewWarmStateStore(s.db)
	}
}

func (s *Services) buildCatalog() error {
	client := rickandmorty.NewClient(rickandmorty.Config{
		BaseURL:    s.config.Remote.BaseURL,
		Timeout:    s.config.Remote.Timeout,
		MaxRetries: s.config.Remote.MaxRetries,
		RetryWait:  s.config.Remote.RetryWait,
		Logger:     s.logger,
	})

	characters, err := buildRepository[domain.Character](s, domain.DomainCharacter, rickandmorty.Characters(client), sqlstore.NewCharacterStore(s.db))
	if err != nil {
		return err
	}
	episodes, err := buildRepository[domain.Episode](s, domain.DomainEpisode, rickandmorty.Episodes(client), sqlstore.NewEpisodeStore(s.db))
	if err != nil {
		return err
	}
	locations, err := buildRepository[domain.Location](s, domain.DomainLocation, rickandmorty.Locations(client), sqlstore.NewLocationStore(s.db))
	if err != nil {
		return err
	}
	s.catalog = services.NewCatalog(characters, episodes, locations)
	return nil
}

func buildRepository[T domain.Entity](s *Services, d domain.Domain, source driven.EntitySource[T], store driven.CacheStore[T]) (*services.Repository[T], error) {
	var lock driven.DistributedLock
	if s.runtime.Shared() {
		lock = s.lock
	}
	synchronizer := services.NewSynchronizer(services.SynchronizerConfig[T]{
		Domain:       d,
		Source:       source,
		Store:        store,
		Notifier:     s.notifier,
		Lock:         lock,
		CacheTimeout: s.config.Paging.CacheTimeout,
		Logger:       s.logger,
	})
	return services.NewRepository(services.RepositoryConfig[T]{
		Synchronizer: synchronizer,
		Source:       source,
		Store:        store,
		Notifier:     s.notifier,
		Paging: domain.PagingConfig{
			PageSize:            s.config.Paging.PageSize,
			PrefetchDistance:    s.config.Paging.PrefetchDistance,
			MaxFetchesPerWindow: s.config.Paging.MaxFetchesPerWindow,
		},
		MaxPagers: s.config.Paging.MaxPagers,
		Logger:    s.logger,
	})
}

// Config returns the runtime configuration
func (s *Services) Config() *domain.RuntimeConfig { return s.runtime }

// Catalog returns the entry point of every read and refresh.
func (s *Services) Catalog() *services.Catalog { return s.catalog }

// Warmer returns the background warmer.
func (s *Services) Warmer() *worker.Warmer { return s.warmer }

// HTTPServer builds the REST and websocket server over the catalog.
func (s *Services) HTTPServer(version string) *httpadapter.Server {
	var redisPinger httpadapter.Pinger
	if s.redisLock != nil {
		redisPinger = s.redisLock
	}
	return httpadapter.NewServer(httpadapter.Config{
		Host:           s.config.Server.Host,
		Port:           s.config.Server.Port,
		Version:        version,
		AllowedOrigins: s.config.Server.AllowedOrigins,
		Logger:         s.logger,
	}, s.catalog, s.warmer, s.db, redisPinger)
}

// Close shuts down all backends. Safe to call on a partially built graph.
func (s *Services) Close() error {
	var errs []error
	if s.notifier != nil {
		errs = append(errs, s.notifier.Close())
	}
	if s.redisClient != nil {
		errs = append(errs, s.redisClient.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

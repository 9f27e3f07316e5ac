package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"linker_index/internal/api"
	"linker_index/internal/citation"
	"linker_index/internal/config"
	"linker_index/internal/db"
	"linker_index/internal/linker"
	"linker_index/internal/lock"
	"linker_index/internal/registry"
	"linker_index/internal/webpages"
)

// Store is what the app needs from a backing store.
type Store interface {
	webpages.Store
	registry.Source
	Ping(ctx context.Context) error
	Close() error
}

type IndexApp struct {
	config *config.IndexConfig
	logger *zap.Logger
	store  Store
	sites  *registry.Cache
	engine *webpages.Engine
	redis  *redis.Client

	// sweepMu keeps maintenance sweeps from overlapping.
	sweepMu sync.Mutex
}

func NewIndexApp(cfg *config.IndexConfig, logger *zap.Logger) (*IndexApp, error) {
	if cfg.Citations.CatalogFile == "" {
		return nil, errors.New("citations.catalog_file is required")
	}
	lib, err := citation.LoadCatalog(cfg.Citations.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load citation catalog: %w", err)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &IndexApp{
		config: cfg,
		logger: logger,
		store:  store,
		sites:  registry.NewCache(store, logger),
	}

	var opts []webpages.Option
	if cfg.Lock.Kind == config.LockRedis {
		locker, err := a.redisLocker()
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		opts = append(opts, webpages.WithLocker(locker))
	}

	a.engine = webpages.NewEngine(store, a.sites, lib, logger, opts...)
	return a, nil
}

func openStore(cfg *config.IndexConfig, logger *zap.Logger) (Store, error) {
	switch cfg.DB.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return db.NewMemoryStore(cfg.Registry.Sites...), nil
	case config.StoreMongo:
		mongoDB, err := db.NewMongoDB(cfg.DB, logger)
		if err != nil {
			return nil, err
		}
		return mongoDB, nil
	default:
		return nil, fmt.Errorf("unknown db.store %q", cfg.DB.Store)
	}
}

func (a *IndexApp) redisLocker() (*lock.RedisLocker, error) {
	a.redis = redis.NewClient(&redis.Options{
		Addr: a.config.Lock.RedisAddr,
		DB:   a.config.Lock.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(ctx).Err(); err != nil {
		_ = a.redis.Close()
		return nil, fmt.Errorf("can't ping redis at %s: %w", a.config.Lock.RedisAddr, err)
	}

	locker := lock.NewRedisLocker(a.redis,
		time.Duration(a.config.Lock.TTLSec)*time.Second,
		time.Duration(a.config.Lock.RetryMS)*time.Millisecond)
	locker.OnLost(func(key string) {
		a.logger.Warn("url lock expired before release", zap.String("url", key))
	})
	return locker, nil
}

func (a *IndexApp) Engine() *webpages.Engine {
	return a.engine
}

// Router builds the HTTP API over the app's engine.
func (a *IndexApp) Router() *gin.Engine {
	if !a.config.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.NewRouter(a.engine, a.sites, a.store, a.logger)
}

// Run serves HTTP, consumes Kafka when enabled and runs scheduled maintenance
// until SIGINT or SIGTERM.
func (a *IndexApp) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := &http.Server{
		Addr:              a.config.HTTP.Addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	var consumer *linker.Consumer
	if a.config.Kafka.Enabled {
		var err error
		consumer, err = linker.NewConsumer(linker.ConsumerConfig{
			Brokers: a.config.Kafka.Brokers,
			Topic:   a.config.Kafka.Topic,
			GroupID: a.config.Kafka.GroupID,
			Handler: linker.NewUpdateHandler(a.engine, a.logger),
			Logger:  a.logger,
		})
		if err != nil {
			return fmt.Errorf("create kafka consumer: %w", err)
		}
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}

	scheduler, err := a.Scheduler(ctx)
	if err != nil {
		return err
	}
	scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		a.logger.Info("shutdown signal received")
	case runErr = <-serverErr:
		a.logger.Error("http server failed", zap.Error(runErr))
	}

	cancel()
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server forced to shutdown", zap.Error(err))
	}

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close failed", zap.Error(err))
		}
	}

	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *IndexApp) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return a.store.Close()
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"affiliate_shop_bot/internal/config"
	"affiliate_shop_bot/internal/domain"
	"affiliate_shop_bot/internal/feature/shop"
	"affiliate_shop_bot/internal/feature/user"
	"affiliate_shop_bot/internal/health"
	"affiliate_shop_bot/internal/logging"
	"affiliate_shop_bot/internal/session"
	"affiliate_shop_bot/internal/store"
	"affiliate_shop_bot/internal/telegram"
	"affiliate_shop_bot/internal/tracking"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	redisPingTimeout        = 5 * time.Second
	healthShutdownTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":         "startup",
		"mongo_db":      cfg.MongoDB,
		"session_store": cfg.SessionStore,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	sessions, sessionChecker, err := openSessionStore(cfg)
	if err != nil {
		logger.WithError(err).Error("session store setup error")
		fmt.Fprintf(os.Stderr, "session store setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithFields(logging.Fields{
		"event": "session_store_ready",
		"type":  cfg.SessionStore,
	}).Info("session store initialized")

	profileRepository := domain.NewProfileRepository(mongoManager.Profiles(), mongoManager.Accounts())
	linkRepository := domain.NewLinkRepository(mongoManager.Links())
	statsProvider := store.NewStatsProvider(mongoManager.Profiles(), mongoManager.Links())

	tgClient, err := telegram.NewClient(cfg, logger,
		telegram.WithStatsProvider(statsProvider),
	)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	flow, err := shop.NewFlow(shop.Deps{
		Sessions:  sessions,
		Profiles:  profileRepository,
		Registrar: user.NewRegistrar(mongoManager.Profiles(), logger),
		Catalog:   linkRepository,
		Generator: tracking.NewGenerator(profileRepository, logger),
		Messenger: tgClient,
	}, logger,
		shop.WithMaxEmailAttempts(cfg.EmailMaxAttempts),
		shop.WithStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		logger.WithError(err).Error("shop flow setup error")
		fmt.Fprintf(os.Stderr, "shop flow setup error: %v\n", err)
		os.Exit(1)
	}
	tgClient.SetHandler(flow)

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	var healthOpts []health.Option
	if sessionChecker != nil {
		healthOpts = append(healthOpts, health.WithSessionChecker(sessionChecker))
	}
	healthServer := health.NewServer(cfg.HTTPPort, mongoManager, logger, healthOpts...)

	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	if err := sessions.Close(); err != nil {
		logger.WithError(err).Error("session store close error")
	} else {
		logger.WithField("event", "session_store_closed").Info("session store closed")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

// openSessionStore builds the configured session store. The returned checker
// is nil for the in-memory store.
func openSessionStore(cfg config.Config) (session.Store, health.SessionChecker, error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return session.NewMemoryStore(), nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	sessionStore, err := session.NewStore(session.StoreTypeRedis,
		session.WithRedisClient(client),
		session.WithRedisTTL(cfg.SessionTTL),
	)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	redisStore, ok := sessionStore.(*session.RedisStore)
	if !ok {
		return sessionStore, nil, nil
	}

	return sessionStore, redisStore, nil
}

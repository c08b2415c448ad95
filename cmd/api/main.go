package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/logging"
	"storefront/internal/infra/remote"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	//.envは無くてもよい（本番は環境変数）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.JWTSecret == "" {
		//署名を検証できないので、注文や履歴の持ち主はトークン単位になる
		logger.Warn("JWT_SECRET is not set; ownership is bound to the token, not its subject")
	}

	policy, err := usecase.ParseCartPolicy(cfg.CartPolicy)
	if err != nil {
		logger.Fatal("invalid cart policy", zap.String("policy", cfg.CartPolicy))
	}

	//DB接続
	gormDB, err := db.Connect(cfg.DSN())
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	if err := db.Migrate(gormDB); err != nil {
		logger.Fatal("db migrate failed", zap.Error(err))
	}

	//セッション登録簿
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping failed", zap.Error(err))
	}

	//ストアAPI
	client := remote.NewClient(remote.Config{
		BaseURL: cfg.RemoteBaseURL,
		Timeout: cfg.RemoteTimeout,
		Paths:   remote.DefaultPaths(),
	}, logger)

	//Repository生成
	checkoutRepo := infraRepo.NewCheckoutSessionGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	sessionRepo := cache.NewRedisSessionRepository(rdb)

	//usecaseに渡す部品
	idGen := &uuidGenerator{}
	clock := &realClock{}

	//Usecase生成
	sessionUC := usecase.NewSessionUsecase(sessionRepo, client, auditRepo, idGen, clock, usecase.SessionConfig{
		JWTSecret:       []byte(cfg.JWTSecret),
		DefaultTTL:      cfg.SessionTTL,
		RefreshInterval: cfg.CartRefreshInterval,
		Policy:          policy,
	}, logger)
	checkoutUC := usecase.NewCheckoutUsecase(client, client, checkoutRepo, auditRepo, usecase.CheckoutConfig{
		ShippingFee:  cfg.ShippingFee,
		InsuranceFee: cfg.InsuranceFee,
	}, logger, clock)

	//Server起動
	srv := server.New(cfg.Addr(), logger, sessionUC, checkoutUC)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
		}
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	sessionUC.Shutdown()
}

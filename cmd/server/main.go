package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/parking-ledger/internal/config"
	"github.com/iliyamo/parking-ledger/internal/database"
	"github.com/iliyamo/parking-ledger/internal/handler"
	"github.com/iliyamo/parking-ledger/internal/ledger"
	"github.com/iliyamo/parking-ledger/internal/logging"
	"github.com/iliyamo/parking-ledger/internal/metrics"
	"github.com/iliyamo/parking-ledger/internal/middleware"
	"github.com/iliyamo/parking-ledger/internal/queue"
	"github.com/iliyamo/parking-ledger/internal/repository"
	"github.com/iliyamo/parking-ledger/internal/router"
	"github.com/iliyamo/parking-ledger/internal/scheduler"
	"github.com/iliyamo/parking-ledger/internal/seed"
	"github.com/iliyamo/parking-ledger/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("could not read .env")
	}
	cfg := config.Load()
	log := logging.Setup(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	owner, err := ledger.ParseAddress(cfg.OwnerAddress)
	if err != nil {
		log.WithError(err).Fatal("LEDGER_OWNER_ADDRESS is not a wallet address")
	}
	policy, err := ledger.PolicyByName(cfg.RefundPolicy)
	if err != nil {
		log.WithError(err).Fatal("bad REFUND_POLICY")
	}

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.WithError(err).Fatal("ensure schema")
	}

	m := metrics.New()
	rdb := config.NewRedisClient()
	cacheCfg := config.LoadCacheConfig()
	publisher := service.NewQueuePublisher(cfg.RabbitURL, log, m)
	publisher.Start()
	defer publisher.Close()

	opts := []ledger.Option{
		ledger.WithStore(repository.NewLedgerStore(db)),
		ledger.WithRefundPolicy(policy),
		ledger.WithLogger(log.WithField("component", "ledger")),
		ledger.WithObserver(m),
	}
	// cached reads go stale before the broker hears about the change
	if rdb != nil {
		defer rdb.Close()
		opts = append(opts, ledger.WithNotifier(middleware.NewCacheInvalidator(cacheCfg, rdb, log)))
	}
	opts = append(opts, ledger.WithNotifier(publisher))
	l := ledger.New(owner, opts...)
	if err := l.Restore(ctx); err != nil {
		log.WithError(err).Fatal("restore ledger")
	}
	if cfg.SeedDemo {
		if err := seed.Demo(ctx, l, log); err != nil {
			log.WithError(err).Fatal("seed demo data")
		}
	}

	if !strings.EqualFold(cfg.SweepSchedule, "off") {
		sweeper, err := scheduler.NewSweeper(cfg.SweepSchedule, l, m, log)
		if err != nil {
			log.WithError(err).Fatal("sweeper")
		}
		if _, err := sweeper.RunOnce(ctx); err != nil {
			log.WithError(err).Warn("startup sweep failed")
		}
		sweeper.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			sweeper.Stop(sctx)
		}()
	}

	go func() {
		if err := queue.StartLedgerConsumer(ctx, cfg.RabbitURL, "logs", log); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("ledger consumer stopped")
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	e.Use(m.Middleware())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))

	lh := handler.NewLedgerHandler(l, log.WithField("component", "handler"))
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	router.RegisterRoutes(e, m.Handler())
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, l, log.WithField("component", "auth")), cfg.JWTSecret)
	router.RegisterPublic(e, lh, middleware.NewRedisCache(cacheCfg, rdb))
	router.RegisterOwner(e, lh, cfg.JWTSecret)
	router.RegisterCustomer(e, lh, cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "owner": owner}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
}

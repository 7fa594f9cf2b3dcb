package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	httpadp "trustline-credit/internal/adapter/http"
	idemp "trustline-credit/internal/adapter/middleware"
	mysqlrepo "trustline-credit/internal/adapter/repository/mysql"
	redisrepo "trustline-credit/internal/adapter/repository/redis"
	"trustline-credit/internal/config"
	"trustline-credit/internal/domain/loan"
	"trustline-credit/internal/domain/transition"
	"trustline-credit/internal/domain/uow"
	"trustline-credit/internal/infrastructure/cache"
	"trustline-credit/internal/infrastructure/db"
	"trustline-credit/internal/infrastructure/logging"
	"trustline-credit/internal/infrastructure/metrics"
	"trustline-credit/internal/infrastructure/xaman"
	"trustline-credit/internal/infrastructure/xrpl"
	loanuc "trustline-credit/internal/usecase/loan"
	sessionuc "trustline-credit/internal/usecase/session"
	"trustline-credit/internal/usecase/signing"
	"trustline-credit/internal/usecase/watcher"
)

type store struct {
	uow         uow.UnitOfWork
	loans       loan.Repository
	transitions transition.Repository
}

func main() {
	cfg := config.Load()
	log, logCloser := logging.Setup(logging.Options{Service: "trustline-credit", Level: cfg.LogLevel, File: cfg.LogFile})
	defer logCloser.Close()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if !cfg.SigningEnabled() {
		log.Warn(config.SetupNotice)
	}

	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Error("redis unavailable", "addr", cfg.RedisAddr, "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	st, err := openStore(cfg, rdb)
	if err != nil {
		log.Error("store unavailable", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}

	m := metrics.Default()
	ledgerClient := xrpl.NewClient(xrpl.Options{URL: cfg.XRPLWSURL, Logger: log, Metrics: m})
	defer ledgerClient.Close()

	wallet := xaman.NewClient(xaman.Options{
		BaseURL:   cfg.XamanBaseURL,
		APIKey:    cfg.XamanAPIKey,
		APISecret: cfg.XamanAPISecret,
		Logger:    log,
	})

	loans := loanuc.NewUsecase(st.uow, st.loans, st.transitions, loanuc.Options{
		Defaults: loan.Terms{
			CurrencyCode:  cfg.Defaults.CurrencyCode,
			CreditAmount:  cfg.Defaults.CreditAmount,
			CollateralXRP: cfg.Defaults.CollateralXRP,
			RepayXRP:      cfg.Defaults.RepayXRP,
			DueMinutes:    cfg.Defaults.DueMinutes,
			GraceMinutes:  cfg.Defaults.GraceMinutes,
		},
		PublicBaseURL: cfg.PublicBaseURL,
		Metrics:       m,
		Logger:        log,
	})

	sessionRepo := redisrepo.NewSessionRepository(rdb, cfg.SessionTTL)
	signer := signing.NewUsecase(wallet, ledgerClient, sessionRepo, loans, signing.Options{
		Enabled: cfg.SigningEnabled(),
		Network: cfg.XRPLNetwork,
		Metrics: m,
		Logger:  log,
	})
	defer signer.Close()
	sessions := sessionuc.NewUsecase(sessionRepo, signer, loans, log)

	watchers := watcher.NewManager(ledgerClient, loans, m, log)
	defer watchers.Close()
	loans.Observe(watchers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a dead ledger endpoint must not keep the API down
	go func() {
		if err := watchers.Resume(ctx); err != nil {
			log.Warn("resume watchers failed", "err", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(middleware.Logger(), middleware.Recover())
	e.Use(idemp.Idempotency(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second, log))

	httpadp.Register(e,
		httpadp.NewHandler(cfg.SigningEnabled(), cfg.XRPLNetwork),
		httpadp.NewLoanHandler(loans, signer, log),
		httpadp.NewSessionHandler(sessions, log),
		httpadp.NewSignRequestHandler(signer, log),
	)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	addr := ":" + cfg.AppPort
	go func() {
		log.Info("listening", "addr", addr, "store", cfg.StoreDriver, "network", cfg.XRPLNetwork)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", "err", err)
	}
	log.Info("stopped")
}

// openStore selects the loan record store. Redis keeps one JSON record per loan;
// mysql and sqlite go through gorm.
func openStore(cfg *config.Config, rdb *goredis.Client) (store, error) {
	if cfg.StoreDriver == config.StoreRedis {
		return store{
			uow:         redisrepo.NewUoW(rdb),
			loans:       redisrepo.NewLoanRepository(rdb),
			transitions: redisrepo.NewTransitionRepository(rdb),
		}, nil
	}
	gdb, err := db.OpenGorm(cfg.StoreDriver, cfg.StoreDSN())
	if err != nil {
		return store{}, err
	}
	if err := mysqlrepo.Migrate(gdb); err != nil {
		return store{}, err
	}
	return store{
		uow:         mysqlrepo.NewGormUoW(gdb),
		loans:       mysqlrepo.NewLoanRepository(gdb),
		transitions: mysqlrepo.NewTransitionRepository(gdb),
	}, nil
}

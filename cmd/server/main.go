package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"lootbox-hub/internal/api"
	v1 "lootbox-hub/internal/api/v1"
	"lootbox-hub/internal/currency"
	"lootbox-hub/internal/event"
	"lootbox-hub/internal/repository/postgres"
	"lootbox-hub/internal/scheduler"
	schedulerjobs "lootbox-hub/internal/scheduler/jobs"
	"lootbox-hub/internal/service"
	"lootbox-hub/internal/sse"
	jwtutil "lootbox-hub/pkg/jwt"
	systemlog "lootbox-hub/pkg/logger"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// tokenLeeway absorbs clock skew between this host and the auth service.
const tokenLeeway = 30 * time.Second

func main() {
	if len(os.Args) > 1 {
		var err error
		switch os.Args[1] {
		case "serve":
		case "healthcheck":
			os.Exit(runHealthcheck())
		case "migrate":
			err = runMigrateCommand(os.Args[2:])
		case "seed-catalog":
			err = runSeedCatalogCommand(os.Args[2:])
		case "import-codes":
			err = runImportCodesCommand(os.Args[2:])
		default:
			err = fmt.Errorf("unknown command %q", os.Args[1])
		}
		if os.Args[1] != "serve" {
			if err != nil {
				// #nosec G705 -- CLI output only; control characters are stripped.
				fmt.Fprintln(os.Stderr, sanitizeCLIError(err))
				os.Exit(1)
			}
			return
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	logger, systemLogStore, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync() //nolint:errcheck

	if !cfg.isDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtPublicKey, err := loadRSAPublicKey(cfg.Security.JWTPublicKeyFile)
	if err != nil {
		logger.Fatal("load jwt public key failed", zap.Error(err))
	}

	dbPool, err := newDBPool(context.Background(), cfg)
	if err != nil {
		logger.Fatal("connect database failed", zap.Error(err))
	}
	defer dbPool.Close()

	userRepo := postgres.NewUserRepository(dbPool)
	catalogRepo := postgres.NewCatalogRepository(dbPool)
	drawRepo := postgres.NewDrawRepository(dbPool)
	codeRepo := postgres.NewActivationCodeRepository(dbPool)
	auditRepo := postgres.NewAuditRepository(dbPool)
	ticketRepo := postgres.NewTicketRepository(dbPool)

	sseHub := sse.NewHub(logger.Named("sse"))
	defer sseHub.Close()

	eventBus := event.NewBus().WithLogger(logger.Named("event"))

	var rateProvider currency.Provider
	if url := strings.TrimSpace(cfg.Currency.ProviderURL); url != "" {
		rateProvider = currency.NewHTTPProvider(url, cfg.Currency.APIKey, &http.Client{Timeout: 10 * time.Second})
	}
	rateCache := currency.NewCache(rateProvider, nil, cfg.Currency.TTL, logger.Named("currency"))

	lootboxSvc := service.NewLootboxService(dbPool, catalogRepo, drawRepo, auditRepo, eventBus, service.LootboxServiceConfig{
		FairnessSecret: cfg.Security.FairnessSecret,
		TxTimeout:      cfg.Database.TxTimeout,
	}, logger.Named("settlement"))
	withdrawalSvc := service.NewWithdrawalService(dbPool, auditRepo, eventBus, service.WithdrawalServiceConfig{
		ManualSLA: cfg.Withdrawal.ManualSLA,
		TxTimeout: cfg.Database.TxTimeout,
	}, logger.Named("withdrawal"))
	codeSvc := service.NewActivationCodeService(codeRepo, catalogRepo, auditRepo, logger.Named("codes"))
	exchangeSvc := service.NewExchangeService(dbPool, auditRepo, eventBus, service.ExchangeServiceConfig{
		FeeRate:   cfg.feeRate,
		TxTimeout: cfg.Database.TxTimeout,
	}, logger.Named("exchange"))
	couponSvc := service.NewCouponService(dbPool, catalogRepo, auditRepo, eventBus, service.CouponServiceConfig{
		FairnessSecret: cfg.Security.FairnessSecret,
		TxTimeout:      cfg.Database.TxTimeout,
	}, logger.Named("coupon"))
	depositSvc := service.NewDepositService(dbPool, rateCache, auditRepo, eventBus, cfg.Database.TxTimeout, logger.Named("deposit"))
	userSvc := service.NewUserService(userRepo, dbPool, auditRepo, logger.Named("account"))
	auditSvc := service.NewAuditService(auditRepo)
	ticketSvc := service.NewTicketService(ticketRepo, auditRepo, eventBus, logger.Named("tickets"))
	dashboardSvc := service.NewDashboardService(dbPool)

	notificationSvc := service.NewNotificationService(userRepo, sseHub, service.NotificationConfig{
		TelegramBotToken: cfg.Telegram.BotToken,
		OperatorChatID:   cfg.Telegram.OperatorChatID,
	}, logger.Named("notification"))
	notificationSvc.Subscribe(eventBus)

	cronRunner := scheduler.NewScheduler(scheduler.Deps{
		WithdrawalJob: schedulerjobs.NewWithdrawalJob(withdrawalSvc, eventBus, cfg.Withdrawal.BacklogWarning, logger.Named("job.withdrawal")),
		CodeStockJob:  schedulerjobs.NewCodeStockJob(codeSvc, logger.Named("job.code_stock")),
		FairnessJob:   schedulerjobs.NewFairnessJob(auditRepo, logger.Named("job.fairness")),
		HostJob:       schedulerjobs.NewHostJob(logger.Named("job.host")),
		CurrencyJob:   schedulerjobs.NewCurrencyJob(rateCache, logger.Named("job.currency")),
	}, logger)
	cronRunner.Start()
	defer func() {
		stopCtx := cronRunner.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(2 * time.Second):
		}
	}()

	systemHandler := v1.NewSystemHandler(v1.SystemHandlerConfig{
		LogStore:       systemLogStore,
		Pool:           dbPool,
		Hub:            sseHub,
		Withdrawals:    withdrawalSvc,
		BacklogWarning: cfg.Withdrawal.BacklogWarning,
	}, logger.Named("system"))

	tokenVerifier := jwtutil.NewVerifier(jwtPublicKey,
		jwtutil.WithIssuer(cfg.Security.JWTIssuer),
		jwtutil.WithLeeway(tokenLeeway),
	)
	router := api.NewRouter(api.RouterConfig{
		AllowOrigins:   cfg.CORS.AllowOrigins,
		InternalToken:  cfg.Security.InternalToken,
		CallbackSecret: cfg.Security.CallbackSecret,
		TokenVerifier:  tokenVerifier,
		PingTimeout:    cfg.Database.PingTimeout,
		PprofEnabled:   cfg.isDevelopment() && cfg.Debug.PprofEnabled,
	}, api.Services{
		Lootboxes:   lootboxSvc,
		Withdrawals: withdrawalSvc,
		Codes:       codeSvc,
		Exchanges:   exchangeSvc,
		Coupons:     couponSvc,
		Deposits:    depositSvc,
		Users:       userSvc,
		Audit:       auditSvc,
		Tickets:     ticketSvc,
		Dashboard:   dashboardSvc,
		SSEHub:      sseHub,
		System:      systemHandler,
	}, dbPool, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	logger.Info("server started",
		zap.String("addr", srv.Addr),
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_time", BuildTime),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			logger.Fatal("server exited unexpectedly", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown server failed", zap.Error(err))
	}
	if err := eventBus.Drain(shutdownCtx); err != nil {
		logger.Warn("event handlers still running at shutdown", zap.Error(err))
	}
}

func newLogger(cfg Config) (*zap.Logger, *systemlog.SystemLogStore, error) {
	var zapCfg zap.Config
	if cfg.isDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log.level: %w", err)
		}
	}

	if cfg.Log.Encoding != "" {
		zapCfg.Encoding = cfg.Log.Encoding
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build zap logger failed: %w", err)
	}

	logStore := systemlog.NewSystemLogStore(1000)
	logger = systemlog.WrapZapLogger(logger, logStore)
	return logger, logStore, nil
}

func newDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database.url failed: %w", err)
	}

	const maxInt32 = int(^uint32(0) >> 1)
	if cfg.Database.MaxConns > maxInt32 {
		return nil, fmt.Errorf("database.max_conns must be <= %d", maxInt32)
	}

	poolCfg.MaxConns = int32(cfg.Database.MaxConns) // #nosec G115 -- validated upper bound above.

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}

	return pool, nil
}

// loadRSAPublicKey reads the key the upstream auth service signs with.
// JWT_PUBLIC_KEY holds the PEM inline when no file is configured.
func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	var raw []byte
	if path = strings.TrimSpace(path); path != "" {
		// #nosec G304 -- path is provided by operator config.
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read security.jwt_public_key_file failed: %w", err)
		}
		raw = data
	} else if inline := strings.TrimSpace(os.Getenv("JWT_PUBLIC_KEY")); inline != "" {
		raw = []byte(strings.ReplaceAll(inline, `\n`, "\n"))
	} else {
		return nil, errors.New("security.jwt_public_key_file is required")
	}

	key, err := jwtutil.ParsePublicKeyPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("parse jwt public key failed: %w", err)
	}
	return key, nil
}

func sanitizeCLIError(err error) string {
	if err == nil {
		return ""
	}

	text := strings.ReplaceAll(err.Error(), "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	return strings.TrimSpace(text)
}

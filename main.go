package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bounty-challenge-system/bounty"
	"bounty-challenge-system/config"
	"bounty-challenge-system/handlers"
	"bounty-challenge-system/middleware"
	"bounty-challenge-system/models"
	"bounty-challenge-system/services"
	"bounty-challenge-system/utils"
	"bounty-challenge-system/workers"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	log := utils.NewLogger(false)

	conf, err := config.Load(log)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if conf.LogVerbose {
		log = utils.NewLogger(true)
	}

	flushSentry, err := utils.InitSentry(conf.SentryDSN, conf.Environment)
	if err != nil {
		log.Error("failed to initialize sentry", "error", err)
		os.Exit(1)
	}
	defer flushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, conf); err != nil {
		log.Error("server exited with error", "error", err)
		flushSentry()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, conf *config.Config) error {
	db, err := gorm.Open(postgres.Open(conf.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}
	if err := models.AutoMigrate(db); err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	store := services.NewChallengeStore(db, clock)

	var settler bounty.Settler = services.NewSettlementClient(conf.SettlementURL, conf.SettlementToken, conf.SettlementTimeout)
	if conf.ArchiveEnabled {
		r2, err := utils.NewR2Client(ctx, conf.R2Endpoint(), conf.R2AccessKeyID, conf.R2AccessKeySecret)
		if err != nil {
			return err
		}
		settler, err = services.NewManifestArchive(settler, r2, conf.R2BucketName, log, clock)
		if err != nil {
			return err
		}
		log.Info("manifest archive enabled", "bucket", conf.R2BucketName)
	}

	engine, err := bounty.NewEngine(bounty.EngineConfig{
		Logger:        log,
		Store:         store,
		Settler:       settler,
		AdminWallet:   conf.AdminWallet,
		TokenDecimals: int32(conf.TokenDecimals),
		Concurrency:   conf.DistributionConcurrency,
		Clock:         clock,
	})
	if err != nil {
		return err
	}

	daemon, err := workers.NewDaemon(log, clock)
	if err != nil {
		return err
	}
	jobs := &workers.ChallengeJobs{
		Store:       store,
		Engine:      engine,
		Fetcher:     services.NewAnalyticsClient(conf.AnalyticsURL, conf.AnalyticsAPIKey, conf.AnalyticsRPS),
		Log:         log,
		Clock:       clock,
		MaxAttempts: conf.SettlementMaxAttempts,
		Concurrency: conf.DistributionConcurrency,
	}
	schedules := []workers.Schedule{
		{Name: "activation", Interval: conf.JobStatusInterval, StartImmediately: true, Task: workers.TaskFunc(jobs.ActivateDue)},
		{Name: "metrics_fetch", Interval: conf.JobMetricsInterval, Task: workers.TaskFunc(jobs.FetchMetrics)},
		{Name: "settlement", Interval: conf.JobSettlementInterval, Task: workers.TaskFunc(jobs.SettleDue)},
	}
	if conf.SyncServiceURL != "" {
		schedules = append(schedules,
			workers.Schedule{Name: "influencer_sync", Interval: time.Minute, StartImmediately: true,
				Task: workers.NewInfluencerSync(db, log, conf.SyncServiceURL, conf.ServiceToken)},
			workers.Schedule{Name: "wallet_sync", Interval: 10 * time.Second,
				Task: workers.NewWalletSync(db, log, clock, conf.SyncServiceURL, conf.ServiceToken)},
		)
	} else {
		log.Warn("SYNC_SERVICE_URL not set, influencer and wallet sync disabled")
	}
	for _, s := range schedules {
		if err := daemon.Add(s); err != nil {
			return err
		}
	}

	app := fiber.New(fiber.Config{
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	if conf.MetricsEnabled {
		app.Use(middleware.RequestMetrics())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     conf.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupSystemRoutes(app, db, conf.MetricsEnabled)

	// 🔐 Only Gateway requests past this point
	app.Use(middleware.GatewayAuthMiddleware(conf.ServiceToken, log))

	handlers.SetupChallengeRoutes(app, log,
		services.NewChallengeService(store, engine, log),
		services.NewAgencyService(db, log))

	daemon.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + conf.Port)
	}()
	log.Info("server running", "port", conf.Port, "environment", conf.Environment, "origins", conf.AllowedOrigins)

	select {
	case err := <-errCh:
		_ = daemon.Stop()
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Error("server shutdown", "error", err)
	}
	return daemon.Stop()
}

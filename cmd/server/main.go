package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"signal-alert/internal/bot"
	"signal-alert/internal/cache"
	"signal-alert/internal/config"
	"signal-alert/internal/db"
	"signal-alert/internal/domain"
	"signal-alert/internal/feed"
	"signal-alert/internal/handler"
	"signal-alert/internal/history"
	"signal-alert/internal/job"
	"signal-alert/internal/position"
	"signal-alert/internal/provider"
	"signal-alert/internal/repository"
	"signal-alert/internal/service"
	signalengine "signal-alert/internal/signal"
	"signal-alert/internal/store"
	"signal-alert/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "signal-alert/docs"
)

var (
	loadEnvFunc         = godotenv.Load
	loadConfigFunc      = config.Load
	initPostgresFunc    = db.InitPostgres
	initRedisFunc       = cache.InitRedis
	initTracerFunc      = tracing.InitTracer
	newCandleRepoFunc   = repository.NewCandleRepository
	newPositionRepoFunc = repository.NewPositionRepository
	newProviderFunc     = func(tracer trace.Tracer, baseURL string) service.PriceProvider {
		return provider.NewBinanceProviderWithBaseURL(tracer, baseURL)
	}
	startEvaluationPollerFunc = func(p *job.EvaluationPoller, ctx context.Context) { go p.Start(ctx) }
	startRepricePollerFunc    = func(p *job.RepricePoller, ctx context.Context) { go p.Start(ctx) }
	startMaintenanceFunc      = func(m *job.Maintenance, ctx context.Context) { go m.Start(ctx) }
	startFeedFunc             = func(f *feed.KlineFeed, ctx context.Context) { go f.Run(ctx) }
	startTelegramBotFunc      = bot.StartTelegramBot
	newRouterFunc             = gin.Default
	setupSignalNotify         = ossignal.Notify
	waitForSignalFunc         = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc       = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc    = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Signal Alert API
// @version         1.0
// @description     Position lifecycle and signal alert service with OpenTelemetry tracing.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initPostgresFunc(ctx, cfg.DatabaseURL)
	initRedisFunc(ctx, cfg.RedisURL)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Audit mirror and candle table only exist when Postgres is configured.
	var candleRepo service.CandleRepository
	var audit service.PositionAudit
	var closedLister handler.ClosedPositionLister
	if db.Pool != nil {
		cr := newCandleRepoFunc(db.Pool, tracer)
		pr := newPositionRepoFunc(db.Pool, tracer)
		if err := cr.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run candle migrations: %v", err)
		}
		if err := pr.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run position migrations: %v", err)
		}
		candleRepo = cr
		audit = pr
		closedLister = pr
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data dir %s: %v", cfg.DataDir, err)
	}

	posStore := position.NewStore(store.NewSnapshotFile(filepath.Join(cfg.DataDir, "positions.json")))
	if n, err := posStore.Load(); err != nil {
		log.Fatalf("failed to load position snapshot: %v", err)
	} else if n > 0 {
		log.Printf("loaded %d tracked positions", n)
	}

	guard := history.NewGuard(
		store.NewSnapshotFile(filepath.Join(cfg.DataDir, "signal_history.json")),
		cfg.Cooldowns(), cfg.FlipDwell(), time.Now,
	)
	if n, err := guard.Load(); err != nil {
		log.Fatalf("failed to load signal history: %v", err)
	} else if n > 0 {
		log.Printf("loaded %d signal history records", n)
	}

	managerCfg := position.DefaultConfig()
	managerCfg.Tolerance = cfg.Tolerance()
	managerCfg.StopWinsTies = cfg.StopWinsTies
	managerCfg.Retention = cfg.Retention()
	manager := position.NewManager(posStore, managerCfg, tracer, time.Now)

	binance := newProviderFunc(tracer, cfg.BinanceBaseURL)
	marketData := service.NewMarketDataService(tracer, binance, candleRepo, cache.PriceStore{})

	atrStop := service.ATRStopConfig{
		Enabled: cfg.ATRStopEnabled,
		Period:  cfg.ATRPeriod,
		Mult:    cfg.ATRMult,
		MinPct:  cfg.ATRMinPct,
		MaxPct:  cfg.ATRMaxPct,
	}
	alertService := service.NewAlertService(tracer, manager, posStore, guard, signalengine.NewEngine(),
		marketData, nil, audit, atrStop, time.Now)

	// The bot closes positions through the alert service so a manual /close
	// hits the audit mirror the same way an HTTP close does.
	dispatcher := startTelegramBotFunc(cfg.TelegramBotToken, cfg.Symbols, marketData, posStore, alertService, guard)
	if dispatcher != nil {
		alertService.SetNotifier(dispatcher)
	}

	// Background jobs, stopped by ctx cancel.
	evaluationPoller := job.NewEvaluationPoller(tracer, alertService, cfg.Symbols,
		time.Duration(cfg.IntradayTickSecs)*time.Second, time.Duration(cfg.DailyTickSecs)*time.Second)
	startEvaluationPollerFunc(evaluationPoller, ctx)

	repricePoller := job.NewRepricePoller(tracer, alertService, time.Duration(cfg.RepriceSecs)*time.Second)
	startRepricePollerFunc(repricePoller, ctx)

	maintenance := job.NewMaintenance(tracer, manager, time.Duration(cfg.MaintenanceSecs)*time.Second)
	startMaintenanceFunc(maintenance, ctx)

	if cfg.FeedEnabled {
		klineFeed := feed.NewKlineFeed(cfg.BinanceWSURL, cfg.Symbols, cfg.Intervals(), candleRepo, marketData,
			func(ctx context.Context, c *domain.Candle) {
				if _, err := alertService.Evaluate(ctx, c.Symbol, c.Interval); err != nil {
					log.Printf("evaluate on candle close %s/%s failed: %v", c.Symbol, c.Interval, err)
				}
			})
		startFeedFunc(klineFeed, ctx)
	}

	h := handler.New(tracer, alertService, posStore, guard, closedLister, cfg.Symbols)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("signal-alert"))
	r.Use(cors.Default())

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	// Flush the position snapshot so a restart resumes from current state.
	if err := posStore.Save(); err != nil {
		log.Printf("failed to flush position snapshot: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

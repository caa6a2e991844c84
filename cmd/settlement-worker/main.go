package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/evaluator"
	shttp "github.com/radieske/parlay-settlement/internal/settlement-worker/http"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/lock"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/override"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/processor"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/producer"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/repo"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/results"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/scheduler"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/sportkey"
	"github.com/radieske/parlay-settlement/internal/shared/cache"
	"github.com/radieske/parlay-settlement/internal/shared/config"
	"github.com/radieske/parlay-settlement/internal/shared/db"
	"github.com/radieske/parlay-settlement/internal/shared/kafka"
	"github.com/radieske/parlay-settlement/internal/shared/logger"
	"github.com/radieske/parlay-settlement/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	interval, err := scheduler.ParseInterval(cfg.SettlementInterval)
	if err != nil {
		log.Fatal("settlement interval", zap.Error(err))
	}
	if len(cfg.OddsAPIKeys) == 0 {
		log.Warn("ODDS_API_KEYS is empty, results provider calls will fail")
	}

	// Postgres: apostas, seleções e auditoria
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: lock de passada entre réplicas
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka producer: bet_settled e, opcionalmente, DLQ
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer writer.Close()

	var dlq producer.MessageWriter
	if cfg.TopicBetSettledDLQ != "" {
		dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettledDLQ)
		defer dlqWriter.Close()
		dlq = dlqWriter
	}

	// Métricas Prometheus ligadas aos callbacks dos componentes
	m := metrics.NewSettlement(prometheus.DefaultRegisterer)

	resultsClient := results.NewClient(results.Config{
		BaseURL: cfg.OddsAPIBaseURL,
		APIKeys: cfg.OddsAPIKeys,
		Timeout: cfg.OddsAPITimeout,
	}, log.Named("results"))
	m.TrackProviderQuota(func() float64 {
		return float64(resultsClient.RateLimits().RequestsRemaining)
	})

	store := repo.NewPostgres(pg)
	publ := producer.NewKafkaPublisher(writer, dlq, cfg.TopicBetSettled, log)

	proc := &processor.Processor{
		Log:       log.Named("processor"),
		Store:     store,
		Provider:  resultsClient,
		Resolver:  sportkey.NewResolver(log.Named("sportkey")),
		Evaluator: evaluator.New(log.Named("evaluator")),
		Publisher: publ,
		DaysBack:  cfg.SettlementDaysBack,

		OnLegSettled: func(s domain.Status) {
			m.LegsSettled.WithLabelValues(string(s)).Inc()
		},
		OnWagerSettled: func(source string, s domain.Status) {
			m.WagersSettled.WithLabelValues(source, string(s)).Inc()
		},
		OnError: func(stage string) {
			m.Errors.WithLabelValues(stage).Inc()
		},
	}

	schedCfg := scheduler.Config{
		Interval:     interval,
		RunOnStartup: cfg.RunOnStartup,
		StartupDelay: cfg.StartupDelay,
	}
	if cfg.LockEnabled {
		schedCfg.Lock = lock.NewRedisLock(rdb, lock.DefaultKey, log.Named("lock"))
		schedCfg.LockTTL = cfg.LockTTL
	}
	sched := scheduler.New(log.Named("scheduler"), proc, schedCfg)
	sched.OnPass = func(kind, outcome string) { m.Passes.WithLabelValues(kind, outcome).Inc() }

	ovr := override.NewService(log.Named("override"), store, publ)
	ovr.OnOverride = func(s domain.Status) { m.Overrides.WithLabelValues(string(s)).Inc() }

	// HTTP de operação
	api := shttp.NewServer(log.Named("http"), sched, ovr)
	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// metrics/health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	// uma passada em curso termina mesmo após o sinal; Stop espera por ela
	sched.Start(context.WithoutCancel(ctx))

	go func() {
		log.Info("settlement-worker listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("settlement-worker shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = apiSrv.Shutdown(shutdownCtx)
	sched.Stop()
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("settlement-worker stopped")
}

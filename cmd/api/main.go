package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/middleware"
	"github.com/Ramsey-B/stem/pkg/startup"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/Ramsey-B/stem/pkg/tracing/exporters"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	factrepo "github.com/Ramsey-B/fern/internal/repositories/fact"
	outputrepo "github.com/Ramsey-B/fern/internal/repositories/output"
	"github.com/Ramsey-B/fern/pkg/dedup"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/grouping"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	fernredis "github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/synthesis"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, flush := newLogger(cfg)
	defer flush()

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		flush()
		os.Exit(1)
	}
}

// bootDependency adapts a start/stop pair to the startup dependency graph
type bootDependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *bootDependency) GetName() string                 { return d.name }
func (d *bootDependency) DependsOn() []string             { return d.dependsOn }
func (d *bootDependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d *bootDependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

func run(cfg *config.Config, logger ectologger.Logger) error {
	shutdownTracing := initTracing(cfg.AppName)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	var (
		sqlxDB      *sqlx.DB
		redisClient *fernredis.Client
		producer    *kafka.Producer
	)

	boot := startup.NewStartup[any](logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&bootDependency{
		name: "postgres",
		start: func(ctx context.Context) error {
			db, err := connectDatabase(cfg)
			if err != nil {
				return err
			}
			sqlxDB = db
			return migrateDatabase(cfg, logger, db)
		},
		stop: func(ctx context.Context) error { return sqlxDB.Close() },
	})
	boot.AddDependency(&bootDependency{
		name: "redis",
		start: func(ctx context.Context) error {
			client, err := fernredis.NewClient(fernredis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, logger)
			if err != nil {
				return err
			}
			redisClient = client
			return nil
		},
		stop: func(ctx context.Context) error { return redisClient.Close() },
	})
	if cfg.KafkaEnabled {
		boot.AddDependency(&bootDependency{
			name: "kafka",
			start: func(ctx context.Context) error {
				producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				return nil
			},
			stop: func(ctx context.Context) error { return producer.Close() },
		})
	}

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelBoot()
	if err := boot.Start(bootCtx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := boot.Stop(ctx); err != nil {
			logger.WithError(err).Warn("Failed to stop dependencies cleanly")
		}
	}()

	db := database.NewDatabaseInstance(sqlxDB, logger)

	var emitter *events.Emitter
	if producer != nil {
		emitter = events.NewEmitter(producer, logger)
	}

	factRepo := factrepo.NewRepository(db, logger)
	outputRepo := outputrepo.NewRepository(db, logger)

	builder := grouping.NewBuilder(grouping.BuilderConfig{GroupLimit: cfg.GroupLimit})
	locker := dedup.NewRedisLocker(fernredis.NewLocker(redisClient, "fern:lock:"))
	engine := dedup.NewEngine(factRepo, locker, emitter, builder, dedup.Config{
		HardThreshold: cfg.HardDedupThreshold,
		LockTTL:       cfg.DedupLockTTL,
	}, logger)

	generator := synthesis.NewHTTPGenerator(synthesis.HTTPGeneratorConfig{
		BaseURL: cfg.GeneratorBaseURL,
		Timeout: cfg.GeneratorTimeout,
	}, logger)
	synthService := synthesis.NewService(generator, outputRepo, emitter, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	checker := health.NewChecker(sqlxDB, redisClient, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	handlers.NewFactsHandler(factRepo, engine, builder, cfg.SoftSimilarityThreshold, logger).RegisterRoutes(api)
	handlers.NewSynthesisHandler(factRepo, synthService, builder, cfg.SoftSimilarityThreshold, logger).RegisterRoutes(api)
	handlers.NewOutputsHandler(outputRepo, emitter, logger).RegisterRoutes(api)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(fmt.Sprintf(":%d", cfg.Port))
	}()
	checker.SetReady(true)
	logger.WithField("port", cfg.Port).Infof("%s listening on :%d", cfg.AppName, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	}

	checker.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}

func initTracing(appName string) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&exporters.ConsoleExporter{}),
	)
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(appName))
	return tp.Shutdown
}

func connectDatabase(cfg *config.Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode)

	db, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	return db, nil
}

func migrateDatabase(cfg *config.Config, logger ectologger.Logger, db *sqlx.DB) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return err
	}

	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return ms.Migrate(cfg.DatabaseName, driver)
}

// newLogger wires ectologger through zap so log output matches the rest of
// the platform
func newLogger(cfg *config.Config) (ectologger.Logger, func()) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = lvl
	}
	zapLog, err := zapCfg.Build()
	if err != nil {
		zapLog = zap.NewNop()
	}

	sink := zapLog.Sugar()
	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			sink.Info(fmt.Sprintf("%+v", msg))
			return
		}
		sink.Info(string(data))
	})

	return logger, func() { _ = zapLog.Sync() }
}

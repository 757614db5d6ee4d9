package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"cityzen/cache"
	"cityzen/config"
	"cityzen/events"
	"cityzen/handler"
	"cityzen/lifecycle"
	"cityzen/logx"
	"cityzen/metrics"
	"cityzen/middleware"
	"cityzen/repository"
	"cityzen/routes"
	"cityzen/schema"
	"cityzen/service"
	"cityzen/storage"
	"cityzen/worker"
)

const uploadURLPrefix = "/uploads/complaints"

func main() {
	// Load .env file
	envErr := godotenv.Load()

	cfg := config.LoadConfig()
	log := logx.New("cityzen", cfg.Log.Env, cfg.Log.Version, cfg.Log.Level)
	ctx := context.Background()
	if envErr != nil {
		log.Warn(ctx, "config_env_missing", ".env file not found, using environment variables")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn(ctx, "config_jwt_secret_missing", "JWT_SECRET is empty; only the static admin token will authenticate")
	}

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		log.Error(ctx, "db_connect_failed", "failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	log.Info(ctx, "db_connected", "database connection established")

	if cfg.Database.InitSchema {
		if err := schema.InitializeDatabase(ctx, db, log); err != nil {
			log.Error(ctx, "schema_init_failed", "failed to initialize schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	if err := schema.ValidateRequiredColumns(ctx, db, nil); err != nil {
		log.Error(ctx, "schema_invalid", "schema check failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metrics.Register()

	policy := policyFrom(cfg.Policy)
	store := repository.NewStore(db)
	machine := lifecycle.New(policy.MaxAppeals)
	evaluator := service.NewDuplicateEvaluator(policy)

	images, err := storage.NewLocalImageStore(cfg.Upload.BasePath, uploadURLPrefix)
	if err != nil {
		log.Error(ctx, "upload_dir_failed", "failed to prepare upload directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var limiter service.SubmissionLimiter = service.NewStoreSubmissionLimiter(store, policy.RateLimitCount, policy.RateLimitWindow)
	var authorities service.AuthoritySource = repository.NewAuthorityRepository(db)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn(ctx, "redis_unreachable", "redis ping failed; callers fall back to the database", slog.String("error", err.Error()))
		}
		limiter = service.NewFallbackLimiter(
			service.NewRedisSubmissionLimiter(rdb, policy.RateLimitCount, policy.RateLimitWindow),
			limiter, log)
		authorities = cache.NewAreaCache(rdb, authorities, cfg.Redis.AreaTTL, log)
	}

	complaintService := service.NewComplaintService(store, evaluator, machine, limiter, images, policy, log)
	duplicateService := service.NewDuplicateService(store, evaluator, log)
	authorityService := service.NewAuthorityService(authorities, cfg.Server.RequestTimeout)
	moderationService := service.NewModerationService(store, machine, images, policy, log)

	publisher, err := newPublisher(cfg.Kafka, log)
	if err != nil {
		log.Error(ctx, "publisher_failed", "failed to create event publisher", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer publisher.Close()
	relay := worker.NewOutboxRelay(repository.NewOutboxRepository(db), publisher, cfg.Outbox, log)
	relay.Start()

	router := routes.SetupRoutes(routes.Handlers{
		Complaints: handler.NewComplaintHandler(complaintService, duplicateService, cfg.Upload.MaxBytes, log),
		Authority:  handler.NewAuthorityHandler(authorityService, complaintService, log),
		Moderation: handler.NewModerationHandler(moderationService, log),
	}, routes.Options{
		Auth: middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.AdminToken),
		Log:  log,
		Ping: db.PingContext,
	})
	router.PathPrefix(uploadURLPrefix + "/").
		Handler(http.StripPrefix(uploadURLPrefix+"/", http.FileServer(http.Dir(images.Dir())))).
		Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.CORS(cfg.Server.AllowedOrigin)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info(ctx, "server_starting", "server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server_failed", "server stopped unexpectedly", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info(ctx, "server_stopping", "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server_shutdown_failed", "graceful shutdown failed", slog.String("error", err.Error()))
	}
	relay.Stop()
}

// openDB connects with UTC timestamps so every stored instant compares consistently.
func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
	)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func newPublisher(cfg config.KafkaConfig, log logx.Logger) (events.Publisher, error) {
	if len(cfg.Brokers) == 0 {
		log.Warn(context.Background(), "kafka_disabled", "KAFKA_BROKERS not set; outbox events are logged only")
		return events.NewLogPublisher(log), nil
	}
	return events.NewKafkaPublisher(cfg)
}

func policyFrom(p config.PolicyConfig) service.Policy {
	return service.Policy{
		DuplicateRadiusMeters: p.DuplicateRadiusMeters,
		StalenessWindow:       p.StalenessWindow,
		BumpCooldown:          p.BumpCooldown,
		RateLimitCount:        p.RateLimitCount,
		RateLimitWindow:       p.RateLimitWindow,
		BanThreshold:          p.BanThreshold,
		MaxAppeals:            p.MaxAppeals,
		MaxImages:             p.MaxImages,
	}
}

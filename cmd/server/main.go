package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-lms/internal/activation"
	"github.com/technosupport/ts-lms/internal/admin"
	"github.com/technosupport/ts-lms/internal/api"
	"github.com/technosupport/ts-lms/internal/audit"
	"github.com/technosupport/ts-lms/internal/auth"
	"github.com/technosupport/ts-lms/internal/config"
	"github.com/technosupport/ts-lms/internal/data"
	"github.com/technosupport/ts-lms/internal/events"
	"github.com/technosupport/ts-lms/internal/keycodec"
	"github.com/technosupport/ts-lms/internal/metrics"
	"github.com/technosupport/ts-lms/internal/middleware"
	"github.com/technosupport/ts-lms/internal/ratelimit"
	"github.com/technosupport/ts-lms/internal/tokens"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config (optional)")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if cfg.Auth.JWTSigningKey == "" {
		cfg.Auth.JWTSigningKey = "dev-secret-do-not-use-in-prod"
		log.Println("WARN: JWT_SIGNING_KEY not set, using dev default")
	}

	// 2. DB Init
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Key secret
	var secrets keycodec.SecretProvider
	if cfg.Keys.SecretFile != "" {
		fileSecret, err := keycodec.NewFileSecret(cfg.Keys.SecretFile)
		if err != nil {
			log.Fatalf("Key secret error: %v", err)
		}
		fileSecret.StartWatcher(ctx)
		secrets = fileSecret
	} else {
		log.Println("WARN: KEY_SECRET_FILE not set, using dev signing secret")
		secrets = keycodec.StaticSecret([]byte("dev-key-secret"))
	}
	codec := keycodec.New(secrets)

	// 4. Audit with spool failover
	auditService := audit.NewService(db)
	if cfg.Audit.SpoolDir != "" {
		audit.ConfigureFailover(cfg.Audit.SpoolDir, cfg.Audit.SpoolMaxMB)
	}
	auditService.StartReplayer(ctx)

	// 5. Optional NATS publisher
	var publisher *events.Publisher
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			log.Printf("WARN: NATS connect failed, events disabled: %v", err)
		} else {
			defer nc.Close()
			publisher = events.NewPublisher(nc, cfg.NATS.Subject, cfg.NATS.MaxRetries)
		}
	}

	// 6. Services
	store := data.NewStore(db)
	activationSvc := activation.NewService(store, auditService, codec, publisher)
	adminSvc := admin.NewService(store, auditService, codec, publisher)
	tokenMgr := tokens.NewManager(cfg.Auth.JWTSigningKey)

	// 7. Metrics
	collector := metrics.NewCollector()
	collector.Start(ctx, store.Activations)

	// 8. Rate limiter and token blacklist share the Redis client
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	limiter := ratelimit.NewLimiter(rdb, cfg.Redis.Salt)
	rateLimitMw := middleware.NewRateLimitMiddleware(limiter, middleware.RateLimitConfig{
		GlobalIP: cfg.RateLimit.GlobalIP,
		Login:    cfg.RateLimit.Login,
	})
	blacklist := auth.NewRedisBlacklist(rdb)

	// 9. Router
	router := api.NewRouter(api.RouterDeps{
		License:   api.NewLicenseHandler(activationSvc, collector),
		Admin:     api.NewAdminHandler(adminSvc, collector),
		Auth:      api.NewAuthHandler(store.AdminUsers, tokenMgr, blacklist),
		JWT:       middleware.NewJWTAuth(tokenMgr, blacklist),
		RateLimit: rateLimitMw,
		Metrics:   collector,
	})

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("License server listening on %s", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// 10. Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/handler"
	"rollcall/internal/metrics"
	"rollcall/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()
	logger := log.Default()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		lookup       attendance.Store = st
		cacheHealthy func(context.Context) bool
	)
	if cfg.RedisAddr != "" {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		if !redisClient.Healthy(ctx) {
			log.Printf("warning: redis at %s not reachable; token lookups fall back to the store", cfg.RedisAddr)
		}
		lookup = store.NewCachedDevices(st, redisClient.Client, cfg.DeviceCacheTTL, logger)
		cacheHealthy = redisClient.Healthy
		log.Printf("device token cache enabled (ttl %s)", cfg.DeviceCacheTTL)
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	// The service writes through the cached store so rotations and deletions
	// evict cached tokens.
	svc := attendance.NewService(lookup, auth.TokenGenerator(cfg.DeviceTokenSize),
		attendance.WithBounds(attendance.Bounds{
			DefaultLimit: cfg.DefaultLimit,
			MaxLimit:     cfg.MaxPageLimit,
			Location:     loc,
		}))

	m := metrics.New(prometheus.DefaultRegisterer)
	h := handler.New(handler.Deps{
		Service: svc,
		Devices: lookup,
		Admin: auth.Admin{
			Password:   cfg.AdminPassword,
			SigningKey: cfg.SessionSigningKey(),
			Issuer:     cfg.JWTIssuer,
			SessionTTL: cfg.AdminTokenTTL,
		},
		Metrics:      m,
		Logger:       logger,
		CacheHealthy: cacheHealthy,
	})
	if cfg.SessionSigningKey() == "" {
		log.Println("warning: JWT_SIGNING_KEY not set; admin session tokens are disabled")
	}
	if cfg.AdminPassword == "" {
		log.Println("warning: ADMIN_PASSWORD not set; admin routes accept session tokens only and login is disabled")
	}

	r := handler.NewRouter(handler.RouterConfig{
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		HSTS:            cfg.Production(),
	}, h)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s (store=%s)", cfg.HTTPPort, cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	log.Println("Server exited")
	return nil
}

// openStore returns the configured backend and a func releasing it.
func openStore(ctx context.Context, cfg config.App) (attendance.Store, func(), error) {
	if cfg.StoreBackend == config.BackendMemory {
		log.Println("using in-memory store; data is lost on restart")
		return attendance.NewMemoryStore(), func() {}, nil
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Println("database migrations applied")
	}
	return attendance.NewRepository(db.Client), func() { _ = db.Close() }, nil
}

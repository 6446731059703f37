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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tjms-tools/hallpass/internal/audit"
	"github.com/tjms-tools/hallpass/internal/config"
	"github.com/tjms-tools/hallpass/internal/db"
	"github.com/tjms-tools/hallpass/internal/hallpass"
	hallhttp "github.com/tjms-tools/hallpass/internal/http"
	"github.com/tjms-tools/hallpass/internal/jobs"
	"github.com/tjms-tools/hallpass/internal/rooms"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("redis unavailable, scan guard disabled: %v", err)
			redisClient = nil
		}
		cancel()
	}

	provider, err := config.NewProvider(cfg.SchoolConfigPath)
	if err != nil {
		log.Fatalf("school config: %v", err)
	}

	trail := audit.NewTrail(store)
	registry := rooms.NewRegistry(store, trail)
	gate := rooms.NewGate(store)
	guard := hallpass.NewRedisScanGuard(redisClient, cfg.ScanGuardTTL)
	service := hallpass.NewService(store, gate, registry, provider, trail, guard)

	jobs.StartOverdueSweep(ctx, cfg, store, trail)

	server := hallhttp.NewServer(cfg, service, registry, provider)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

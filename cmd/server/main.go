package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merceria/backend/external/osrm"
	"merceria/backend/internal/cache"
	"merceria/backend/internal/cart"
	"merceria/backend/internal/config"
	"merceria/backend/internal/delivery"
	"merceria/backend/internal/httpapi"
	"merceria/backend/internal/service"
	"merceria/backend/internal/store"
	"merceria/backend/internal/store/memory"
	pgstore "merceria/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	cartSlot := cache.CartSlot(cache.NoopCartSlot{})
	if cfg.RedisAddr != "" {
		redisSlot := cache.NewRedisCartSlot(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, time.Duration(cfg.CartTTLHours)*time.Hour)
		if err := redisSlot.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), carts will not survive restarts", err)
		} else {
			cartSlot = redisSlot
			closers = append(closers, redisSlot.Close)
			log.Println("cart slot: redis")
		}
	} else {
		log.Println("cart slot: noop")
	}

	var resolver delivery.Resolver
	if cfg.OSRMBaseURL != "" {
		client, err := osrm.New(cfg.OSRMBaseURL)
		if err != nil {
			log.Printf("osrm disabled (%v), delivery quotes use zone fallback", err)
		} else {
			resolver = client
			log.Println("distance resolver: osrm")
		}
	} else {
		log.Println("distance resolver: none (zone fallback)")
	}

	origin := delivery.LatLng{Lat: cfg.OriginLat, Lng: cfg.OriginLng}
	quoter := delivery.NewQuoter(resolver, origin, time.Duration(cfg.DistanceTimeoutSeconds)*time.Second)
	carts := cart.NewManager(cartSlot)

	svc := service.New(repo, carts, quoter)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("storefront backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}

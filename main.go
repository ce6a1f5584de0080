package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"shifttrack/config"
	"shifttrack/handler"
	"shifttrack/presence"
	"shifttrack/repository"
	"shifttrack/services"
	"shifttrack/shift"
	"shifttrack/usecase"
	"shifttrack/utils"
	"shifttrack/watcher"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logCloser := utils.InitLogger(cfg.LogFile)
	defer logCloser.Close()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := repository.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()
	log.Println("Successfully connected to MongoDB")

	if err := repository.SetupIndexes(client.Database(cfg.Database.DatabaseName), cfg.Database); err != nil {
		log.Fatalf("Failed to set up indexes: %v", err)
	}

	stores := repository.NewStores(client, cfg.Database)
	policy := shift.NewPolicy(cfg.Shift)
	clock := utils.RealClock{}

	// Presence: local hub always, Redis fan-out across instances when configured
	hub := presence.NewHub()
	aggregator := presence.NewAggregator(stores.Sessions, stores.Users, policy, clock, hub)
	broadcasters := presence.Fanout{hub}

	var redisClient *redis.Client
	var wg sync.WaitGroup
	if cfg.Presence.RedisURL != "" {
		redisClient, err = presence.NewRedisClient(ctx, cfg.Presence.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()

		redisBroadcaster := presence.NewRedisBroadcaster(redisClient, cfg.Presence.Channel)
		broadcasters = append(broadcasters, redisBroadcaster)

		wg.Add(1)
		go func() {
			defer wg.Done()
			presence.RelayToHub(ctx, redisClient, cfg.Presence.Channel, redisBroadcaster.Origin(), hub)
		}()
	}

	publisher := presence.NewPublisher(aggregator, broadcasters, cfg.Presence.BroadcastInterval)
	publisher.Start(ctx)
	defer publisher.Stop()

	var geocoder usecase.Geocoder
	if cfg.Geocode.URL != "" {
		geocoder = services.NewGeocoder(cfg.Geocode, stores.GeoCache)
	}

	sessionService := usecase.NewSessionService(usecase.SessionServiceDeps{
		Sessions:       stores.Sessions,
		Users:          stores.Users,
		Policy:         policy,
		Clock:          clock,
		Geocoder:       geocoder,
		GeocodeTimeout: cfg.Geocode.Timeout,
		Notifier:       publisher,
	})

	// Background sweeps
	idle := watcher.NewIdleWatcher(stores.Sessions, clock, cfg.Watcher.IdleThreshold, cfg.Watcher.Interval)
	disconnect := watcher.NewDisconnectWatcher(stores.Sessions, stores.Users, clock, cfg.Watcher.DisconnectThreshold)
	for _, p := range []*watcher.Periodic{
		watcher.NewPeriodic("idle", cfg.Watcher.Interval, idle.Sweep),
		watcher.NewPeriodic("disconnect", cfg.Watcher.Interval, disconnect.Sweep),
	} {
		wg.Add(1)
		go func(p *watcher.Periodic) {
			defer wg.Done()
			p.Run(ctx)
		}(p)
	}

	closer := watcher.NewDailyCloser(stores.Sessions, stores.Users, stores.Archive, policy, clock, cfg.Watcher)
	if err := closer.Schedule(ctx); err != nil {
		log.Fatalf("Failed to schedule daily close: %v", err)
	}
	defer closer.Stop()

	verifier := services.NewTokenVerifier(cfg.JWTSecretKey, cfg.JWTIssuer)
	router := handler.NewRouter(handler.RouterDeps{
		Sessions:     handler.NewSessionHandler(sessionService, verifier),
		Presence:     handler.NewPresenceHandler(aggregator, hub, policy.Location()),
		Admin:        handler.NewAdminHandler(closer),
		Health:       handler.NewHealthHandler(client, redisClient),
		Verifier:     verifier,
		CORSOrigins:  cfg.CORSOrigins,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server.RegisterOnShutdown(hub.Close)

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	wg.Wait()
	log.Println("Server shutdown complete")
}

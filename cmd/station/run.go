package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"eventcheckin/internal/cache"
	"eventcheckin/internal/checkin"
	"eventcheckin/internal/config"
	"eventcheckin/internal/handler"
	"eventcheckin/internal/httpmiddleware"
	"eventcheckin/internal/queue"
	"eventcheckin/internal/remote"
	"eventcheckin/internal/store"
)

func run(parent context.Context, cfg config.App) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode, err := checkin.ParseMode(cfg.CheckinMode)
	if err != nil {
		return err
	}
	policy, err := checkin.ParsePolicy(cfg.FailurePolicy)
	if err != nil {
		return err
	}

	client := remote.New(cfg.APIURL, 2*cfg.RemoteTimeout)
	tokens := &tokenKeeper{client: client, stationID: cfg.StationID}
	if err := tokens.register(ctx); err != nil {
		return fmt.Errorf("register station %s: %w", cfg.StationID, err)
	}
	log.Printf("station %s registered with %s", cfg.StationID, cfg.APIURL)

	var rdb *store.Redis
	if cfg.LockBackend == "redis" || cfg.QueueBackend == "redis" {
		rdb = store.NewRedis(cfg.RedisAddr)
		defer rdb.Close()
		if !rdb.Healthy(ctx) {
			log.Printf("WARNING: redis at %s not reachable", cfg.RedisAddr)
		}
	}

	var locker checkin.Locker = checkin.NewKeyedMutex()
	if cfg.LockBackend == "redis" {
		locker = store.NewRedisLocker(rdb.Client, "checkin:lock:")
	}

	attendees := cache.New()
	session := checkin.NewSession(nil)
	resolver := checkin.NewResolver(client, attendees, session, checkin.Config{
		Mode:     mode,
		Policy:   policy,
		Timeout:  cfg.RemoteTimeout,
		Cooldown: cfg.ScanCooldown,
		Locker:   locker,
	})

	if err := resolver.Reconcile(ctx); err != nil {
		log.Printf("WARNING: initial sync failed, will retry on schedule: %v", err)
	}

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.ReconcileSchedule, func() {
		if err := resolver.Reconcile(ctx); err != nil {
			log.Printf("reconcile failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("RECONCILE_SCHEDULE %q: %w", cfg.ReconcileSchedule, err)
	}
	if cfg.AccessTTL > 0 {
		every := fmt.Sprintf("@every %s", cfg.AccessTTL/2)
		if _, err := sched.AddFunc(every, func() { tokens.refresh(ctx) }); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	source := "http"
	if cfg.QueueBackend == "redis" {
		source = "queue:" + cfg.ScanQueue
	}
	if err := session.Start(ctx, source); err != nil {
		log.Printf("WARNING: %v", err)
	}
	defer session.Stop()
	if cfg.QueueBackend == "redis" {
		go resolver.ConsumeScans(ctx, queue.NewRedisQueue(rdb.Client, cfg.ScanQueue))
	}

	station := handler.NewStation(resolver, checkin.NewRoster(client, resolver), attendees, cfg.SearchDebounce)
	defer station.Close()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		remoteErr := client.Health(c.Request.Context())
		status := http.StatusOK
		if remoteErr != nil {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"station":  cfg.StationID,
			"remote":   remoteErr == nil,
			"scanning": session.Active(),
			"source":   session.Source(),
			"cached":   len(attendees.All()),
		})
	})
	station.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.StationHTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(ctx, srv)
}

// tokenKeeper holds the station's refresh token and renews access before it
// expires. A rejected refresh falls back to registering again.
type tokenKeeper struct {
	client    *remote.Client
	stationID string

	mu           sync.Mutex
	refreshToken string
}

func (k *tokenKeeper) register(ctx context.Context) error {
	pair, err := k.client.Register(ctx, k.stationID)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.refreshToken = pair.RefreshToken
	k.mu.Unlock()
	return nil
}

func (k *tokenKeeper) refresh(ctx context.Context) {
	k.mu.Lock()
	tok := k.refreshToken
	k.mu.Unlock()

	pair, err := k.client.Refresh(ctx, tok)
	if err == nil {
		k.mu.Lock()
		k.refreshToken = pair.RefreshToken
		k.mu.Unlock()
		return
	}
	log.Printf("token refresh failed, registering again: %v", err)
	if err := k.register(ctx); err != nil {
		log.Printf("station re-registration failed: %v", err)
	}
}

// serve runs srv until ctx ends, then gives outstanding requests 10 seconds.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting station on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down station...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	return nil
}

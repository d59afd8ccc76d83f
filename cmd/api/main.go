package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventcheckin/internal/attendance"
	"eventcheckin/internal/auth"
	"eventcheckin/internal/cloudinary"
	"eventcheckin/internal/config"
	"eventcheckin/internal/handler"
	"eventcheckin/internal/httpmiddleware"
	"eventcheckin/internal/queue"
	"eventcheckin/internal/store"
	"eventcheckin/internal/ticket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := attendance.NewRepository(db.Client)
	if err := repo.Migrate(ctx, db.Driver); err != nil {
		return err
	}

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			log.Printf("WARNING: redis at %s not reachable, ticket requests will fail until it is", cfg.RedisAddr)
		}
	}

	var tickets queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(64)
		go logTickets(ctx, mem)
		tickets = mem
	} else {
		tickets = queue.NewRedisQueue(redisClient.Client, cfg.TicketQueue)
	}

	renderer := ticket.Renderer{EventName: cfg.EventName}
	dispatcher := &ticket.Dispatcher{Renderer: renderer, Queue: tickets}
	cdn := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	if cdn.Configured() {
		dispatcher.Uploader = cdn
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured, tickets are sent without an image link")
	}

	svc := attendance.NewService(repo, attendance.WithTickets(dispatcher))
	iss := auth.Issuer{Name: cfg.JWTIssuer, Key: cfg.JWTSigningKey, AccessTTL: cfg.AccessTTL, RefreshTTL: cfg.RefreshTTL}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewClientLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		body := gin.H{"status": "ok", "db": dbHealthy}
		if redisClient != nil {
			healthy := redisClient.Healthy(c.Request.Context())
			body["redis"] = healthy
			dbHealthy = dbHealthy && healthy
		}
		if !dbHealthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	handler.NewAPI(svc, iss, renderer).RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(ctx, srv)
}

// serve runs srv until ctx ends, then gives outstanding requests 10 seconds.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", srv.Addr)
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
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	log.Println("Server exited")
	return nil
}

// logTickets drains the in-memory ticket queue when no mail sender is
// attached, so registration never blocks on a full queue.
func logTickets(ctx context.Context, q queue.Queue) {
	msgs, err := q.Consume(ctx)
	if err != nil {
		log.Printf("ticket queue consume failed: %v", err)
		return
	}
	for msg := range msgs {
		var req ticket.SendRequest
		if err := msg.Decode(&req); err != nil {
			log.Printf("%v", err)
			continue
		}
		log.Printf("ticket ready for %s <%s> barcode %s %s", req.Name, req.Email, req.Barcode, req.TicketURL)
	}
}

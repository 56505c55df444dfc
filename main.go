package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"discount-service/config"
	"discount-service/controllers"
	"discount-service/database"
	"discount-service/kafka"
	"discount-service/middleware"
	"discount-service/notifications"
	aws_pkg "discount-service/pkg/aws"
	"discount-service/pkg/logger"
	"discount-service/repository"
	"discount-service/routes"
	"discount-service/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "discount-service"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		panic("config load failed: " + err.Error())
	}

	// --- AWS setup ---
	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		panic("failed to load AWS config: " + err.Error())
	}

	// --- Logger (tee'd to CloudWatch Logs when enabled) ---
	var sink *aws_pkg.CloudWatchLogsClient
	if cw, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, serviceName); err == nil && cw.IsEnabled() {
		sink = cw
	}
	var log *zap.Logger
	if sink != nil {
		log, err = logger.New(cfg.Env, sink)
	} else {
		log, err = logger.New(cfg.Env, nil)
	}
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	metricsClient := aws_pkg.NewMetricsClient(awsCfg)

	// --- Database ---
	db, err := database.ConnectPostgres(cfg.PostgresDSN(), log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}

	// --- Product names: DynamoDB, cached in Redis when configured ---
	var names repository.ProductNameRepository = repository.NewDynamoProductNames(aws_pkg.NewDynamoDBClient(awsCfg), cfg.ProductsTable, log)
	var cachedNames *repository.CachedProductNames
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Warn("Redis unavailable, product names are not cached", zap.Error(err))
		} else {
			defer func() { _ = rdb.Close() }()
			cachedNames = repository.NewCachedProductNames(rdb, names, cfg.ProductNameTTL, metricsClient, log)
			names = cachedNames
		}
	}

	// --- Event publishing ---
	var producer services.EventProducer
	if len(cfg.KafkaBrokers) > 0 {
		p := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer func() { _ = p.Close() }()
		producer = p
	}
	snsClient := aws_pkg.NewSNSClient(awsCfg)

	hub := notifications.NewHub(log)

	// --- Dependency injection ---
	policyRepo := repository.NewGormDiscountPolicyRepository(db)
	discountService := services.NewDiscountService(policyRepo, names, snsClient, cfg.DiscountSNSTopicARN, producer, hub, metricsClient, log)
	discountController := controllers.NewDiscountController(discountService)
	socketController := controllers.NewSocketController(discountService, hub, cfg.AllowedOrigins, log)

	// --- Product events consumer ---
	if cfg.ProductEventsQueueURL != "" && cachedNames != nil {
		consumer := aws_pkg.NewSQSConsumer(awsCfg, cfg.ProductEventsQueueURL, log)
		handler := services.NewProductEventHandler(cachedNames, metricsClient, log)
		go func() {
			if err := consumer.StartPolling(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Product events consumer stopped", zap.Error(err))
			}
		}()
	}

	// --- HTTP router ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RequestID())
	r.Use(middleware.MetricsMiddleware(metricsClient, serviceName, "/stores/:store_id/discounts/ws"))
	r.Use(middleware.RequestLogger(log))

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitPerMinute/2+1, 5*time.Minute)
	limiter.StartCleanup(ctx.Done())

	routes.RegisterDiscountRoutes(r, discountController, socketController, limiter, 30*time.Second)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": serviceName})
	})

	// --- HTTP server ---
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("Discount Service started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()

	log.Info("Initiating graceful shutdown...")
	httpShutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(httpShutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	if err := database.Close(db); err != nil {
		log.Error("Database close error", zap.Error(err))
	}

	log.Info("Discount Service stopped gracefully")
}

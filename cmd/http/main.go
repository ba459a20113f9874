package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cloudpos/inventory-service/config"
	"github.com/cloudpos/inventory-service/internal/apperror"
	"github.com/cloudpos/inventory-service/internal/auth"
	"github.com/cloudpos/inventory-service/internal/middleware"
	"github.com/cloudpos/inventory-service/internal/outbox"
	"github.com/cloudpos/inventory-service/internal/stock"
	"github.com/cloudpos/inventory-service/pkg/broker"
	"github.com/cloudpos/inventory-service/pkg/cache"
	"github.com/cloudpos/inventory-service/pkg/database/postgres"
	"github.com/cloudpos/inventory-service/pkg/logger"

	alertH "github.com/cloudpos/inventory-service/internal/alert/handler"
	alertListenerPkg "github.com/cloudpos/inventory-service/internal/alert/listener"
	alertRepoPkg "github.com/cloudpos/inventory-service/internal/alert/repository"
	alertUCPkg "github.com/cloudpos/inventory-service/internal/alert/usecase"

	outboxRepoPkg "github.com/cloudpos/inventory-service/internal/outbox/repository"

	stockH "github.com/cloudpos/inventory-service/internal/stock/handler"
	stockListenerPkg "github.com/cloudpos/inventory-service/internal/stock/listener"
	stockRepoPkg "github.com/cloudpos/inventory-service/internal/stock/repository"
	stockUCPkg "github.com/cloudpos/inventory-service/internal/stock/usecase"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 4. Initialize Repositories
	stockRepo := stockRepoPkg.NewPGRepository(db)
	alertRepo := alertRepoPkg.NewPGRepository(db)
	outboxRepo := outboxRepoPkg.NewPGRepository(db)

	// 5. Initialize Redis (read cache, optional)
	var stockCache stock.Cache
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Warn("Could not connect to Redis, serving aggregates uncached", zap.Error(err))
		} else {
			defer redisClient.Close()
			stockCache = redisClient
			appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
		}
	}

	// 6. Initialize UseCases
	stockUC := stockUCPkg.NewStockUseCase(stockRepo, stockCache, appLogger)
	alertUC := alertUCPkg.NewAlertUseCase(alertRepo, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var workers sync.WaitGroup
	runWorker := func(fn func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			fn(ctx)
		}()
	}

	// 7. Initialize Kafka and the outbox relay
	var publisher outbox.Publisher
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.StockTopic,
		})
		defer producer.Close()
		publisher = outbox.NewKafkaPublisher(producer)

		orderConsumer := broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.OrderTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer orderConsumer.Close()

		stockConsumer := broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.StockTopic,
			GroupID: cfg.Kafka.AlertGroupID,
		})
		defer stockConsumer.Close()
		appLogger.Info("Connected to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("order_topic", cfg.Kafka.OrderTopic),
			zap.String("stock_topic", cfg.Kafka.StockTopic),
		)

		runWorker(stockListenerPkg.NewOrderListener(orderConsumer, stockUC, appLogger).Start)
		runWorker(alertListenerPkg.NewStockEventListener(stockConsumer, alertUC, appLogger).Start)
	} else {
		publisher = outbox.NewLocalPublisher(alertUC, appLogger)
		appLogger.Info("Kafka disabled, evaluating alerts in-process")
	}

	relay := outbox.NewRelay(outboxRepo, publisher, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize, appLogger)
	runWorker(relay.Run)

	// 8. Initialize Handlers
	stockHandler := stockH.NewStockHandler(stockUC, appLogger)
	alertHandler := alertH.NewAlertHandler(alertUC)

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.Recovery(appLogger),
		auth.Middleware(),
		middleware.RequestLogger(appLogger),
		apperror.ErrorMiddleware(!cfg.Server.IsProduction()),
	)
	router.GET("/healthz", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1/stores/:storeId")
	stockHandler.RegisterRoutes(v1)
	alertHandler.RegisterRoutes(v1)

	// 9. Start HTTP and gRPC health servers
	httpServer := &http.Server{
		Addr:              withColon(cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("failed to serve http", zap.Error(err))
		}
	}()

	lis, err := net.Listen("tcp", withColon(cfg.Server.GRPCPort))
	if err != nil {
		appLogger.Fatal("failed to listen", zap.Error(err))
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	go func() {
		appLogger.Info("Starting gRPC health server", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve grpc", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()

	cancel()
	workers.Wait()
	appLogger.Info("Server stopped")
}

func withColon(port string) string {
	if !strings.HasPrefix(port, ":") && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go-inventory-predict/internal/config"
	"go-inventory-predict/internal/handler"
	"go-inventory-predict/internal/messaging"
	"go-inventory-predict/internal/metrics"
	"go-inventory-predict/internal/middleware"
	"go-inventory-predict/internal/partition"
	"go-inventory-predict/internal/prediction"
	"go-inventory-predict/internal/repository"
	"go-inventory-predict/internal/rpc"
	"go-inventory-predict/internal/service"
	"go-inventory-predict/internal/store"
	"go-inventory-predict/internal/wire"
	"go-inventory-predict/internal/ws"
	"go-inventory-predict/pkg/database"
	"go-inventory-predict/pkg/jwt"
	"go-inventory-predict/pkg/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hashicorp/consul/api"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// aggregatorStoreID is the store holding aggregated predictions when Redis
// is not configured. It never collides with a partition id.
const aggregatorStoreID = -1

func main() {
	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", "error", err)
	}
	logger.Init(cfg.App.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Setup durable store mirror (optional)
	var db *gorm.DB
	var journal store.Journal
	if cfg.Store.DSN != "" {
		db, err = database.ConnectDB(cfg.Store.DSN)
		if err != nil {
			logger.Fatal("connect store database", "error", err)
		}
		gj := store.NewGormJournal(db)
		if err := gj.Migrate(); err != nil {
			logger.Fatal("migrate store journal", "error", err)
		}
		journal = gj
	}

	// 3. Setup WebSocket Hub and metrics
	wsHub := ws.NewHub()
	go wsHub.Run(ctx)
	metrics.Init()

	// 4. Open partitions
	ranges, err := partition.Ranges(cfg.Partitions.Count, cfg.Partitions.ProductIDLow, cfg.Partitions.ProductIDHigh)
	if err != nil {
		logger.Fatal("partition ranges", "error", err)
	}
	mgr, err := partition.Open(ctx, partition.Options{
		Ranges:           ranges,
		Journal:          journal,
		LockTimeout:      cfg.Store.LockTimeout,
		DispatchInterval: cfg.Dispatcher.Interval,
		Events:           wsHub,
		Seed:             true,
	})
	if err != nil {
		logger.Fatal("open partitions", "error", err)
	}

	// 5. Low-stock subscribers
	var redisClient *redis.Client
	var predictions repository.PredictionRepository
	if cfg.Redis.Addr != "" {
		redisClient, err = database.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("connect redis", "error", err)
		}
		predictions = repository.NewRedisPredictionRepo(redisClient)
	} else {
		aggStore, err := store.Open(ctx, aggregatorStoreID, store.Options{LockTimeout: cfg.Store.LockTimeout, Journal: journal})
		if err != nil {
			logger.Fatal("open aggregator store", "error", err)
		}
		predictions = repository.NewPredictionRepo(aggStore)
	}
	aggService := service.NewStockAggregatorService(predictions)

	notifications := service.NewNotificationService()
	notifications.Subscribe("hub", wsHub)
	notifications.Subscribe("aggregator", aggService)

	var kafkaPublisher *messaging.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = messaging.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		notifications.Subscribe("kafka", kafkaPublisher)
	}

	// 6. Prediction pipelines
	scorer, err := prediction.NewScorer(cfg.Scorer)
	if err != nil {
		logger.Fatal("create scorer", "error", err)
	}
	registry := prediction.NewRegistry(ctx, func(id int) (*prediction.Pipeline, error) {
		p, err := mgr.Get(id)
		if err != nil {
			return nil, err
		}
		return prediction.NewPipeline(id, p.Trends(), scorer, notifications, prediction.Options{
			Window:               cfg.Prediction.Window,
			TimerStartDelay:      cfg.Prediction.TimerStartDelay,
			TimerInterval:        cfg.Prediction.TimerInterval,
			NotificationAttempts: cfg.Prediction.NotificationAttempts,
		}), nil
	})
	mgr.Start(ctx, registry)

	// 7. Partition endpoint resolution
	port, err := strconv.Atoi(cfg.Server.Port)
	if err != nil {
		logger.Fatal("invalid port", "port", cfg.Server.Port)
	}
	var resolver rpc.Resolver
	var consul *api.Client
	serviceID := fmt.Sprintf("%s-%s-%d", cfg.Consul.ServiceName, cfg.Server.PublicHost, port)
	switch cfg.RPC.Resolver {
	case "consul":
		consul, err = rpc.NewConsulClient(cfg.Consul.Addr)
		if err != nil {
			logger.Fatal("create consul client", "error", err)
		}
		if err := rpc.Register(consul, serviceID, cfg.Consul.ServiceName, cfg.Server.PublicHost, port, mgr.IDs()); err != nil {
			logger.Fatal("register partitions", "error", err)
		}
		resolver = rpc.NewConsulResolver(consul, cfg.Consul.ServiceName)
	default:
		resolver = rpc.NewStaticResolver(cfg.Server.PublicHost, cfg.Server.Port)
	}
	clients := rpc.NewFactory(resolver, rpc.Policy{Delay: cfg.RPC.RetryDelay, MaxRetries: cfg.RPC.MaxRetries})

	codec, err := wire.NewCodec(cfg.Wire.Codec)
	if err != nil {
		logger.Fatal("wire codec", "error", err)
	}

	// 8. Handlers
	secret := []byte(cfg.Auth.JWTSecret)
	stockHandler := handler.NewStockHandler(mgr)
	aggHandler := handler.NewAggregatorHandler(aggService)
	dashHandler := handler.NewDashboardHandler(service.NewDashboardService(mgr.Views()))
	authHandler := handler.NewAuthHandler(secret)
	partitionSockets := handler.NewPartitionSocketHandler(ctx, mgr.Partitions(), codec, cfg.Wire.MaxMessageSize)
	gateway := wire.NewServer("gateway", codec, handler.NewGateway(codec, mgr.Ranges(), clients), cfg.Wire.MaxMessageSize)

	rateLimit, err := middleware.RateLimit(cfg.RateLimit.Rate)
	if err != nil {
		logger.Fatal("rate limiter", "error", err)
	}
	requireAuth := middleware.RequireAuth(secret)

	// 9. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName: cfg.App.Name,
	})

	app.Use(fiberlogger.New())
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(metrics.Middleware())

	api := app.Group("/api/v1")

	// ============ PUBLIC ROUTES ============
	api.Post("/auth/validate-token", authHandler.ValidateToken)
	api.Post("/reservestock", rateLimit, stockHandler.ReserveStock)
	api.Get("/stock/:id", stockHandler.GetProduct)

	// ============ OPERATOR ROUTES ============
	api.Post("/stock", requireAuth, middleware.RequireScope(jwt.ScopeRestock), stockHandler.Restock)
	api.Get("/stockaggregator", requireAuth, middleware.RequireScope(jwt.ScopeAggregatorRead), aggHandler.GetProducts)
	api.Get("/dashboard/stats", requireAuth, dashHandler.GetDashboardStats)

	app.Get("/healthz", handler.Health(mgr.IDs()))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket Routes
	app.Use("/ws", middleware.RequireWebSocket())
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		wsHub.Serve(ctx, c)
	}))
	app.Get("/partitions/:id/ws", partitionSockets.Upgrade, websocket.New(partitionSockets.Serve))
	app.Use("/gateway/ws", middleware.RequireWebSocket())
	app.Get("/gateway/ws", handler.EnvelopeSocket(ctx, gateway))

	// 10. Graceful Shutdown
	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			logger.Fatal("listen", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	if consul != nil {
		if err := rpc.Deregister(consul, serviceID); err != nil {
			logger.Warn("deregister partitions", "error", err)
		}
	}
	// closes websocket connections and background loops
	cancel()
	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	mgr.Stop()
	registry.Close()
	clients.Close()
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Warn("close kafka writer", "error", err)
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		if err := database.Close(db); err != nil {
			logger.Warn("close database", "error", err)
		}
	}

	logger.Info("server exited")
}

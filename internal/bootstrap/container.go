package bootstrap

import (
	"context"
	"log"
	"time"

	"chatserver-be/internal/config"
	"chatserver-be/internal/controller"
	"chatserver-be/internal/handler"
	"chatserver-be/internal/pkg/logger"
	"chatserver-be/internal/pkg/metrics"
	"chatserver-be/internal/pkg/serverutils"
	"chatserver-be/internal/repository/unitofwork"
	"chatserver-be/internal/service"
	"chatserver-be/internal/websocket"
	"chatserver-be/pkg/fanout"
	"chatserver-be/pkg/llm/factory"
	pktNats "chatserver-be/pkg/nats"
	"chatserver-be/pkg/presence"
	"chatserver-be/pkg/querypipeline"
	"chatserver-be/pkg/ratelimit"
	"chatserver-be/pkg/warehouse"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Logger logger.ILogger

	// HTTP surface
	ChatHandler     *handler.ChatHandler
	HealthHandler   *handler.HealthHandler
	QueryController controller.IQueryController

	// Background Services (Exposed for main.go to run)
	WebSocketHub    *websocket.Hub
	Relay           *websocket.RedisRelay // nil when redis is unreachable
	ConsumerService service.IConsumerService
	MessageService  service.IMessageService
	QueryService    service.IQueryService
	NatsSubscriber  *pktNats.Subscriber // nil when NATS is unreachable

	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.IsProduction())
	wsLogger := logger.NewIsolatedLogger(cfg.App.WsLogFilePath)
	m := metrics.New(prometheus.DefaultRegisterer)
	auth := serverutils.NewJwtAuthenticator(cfg.App.JwtSecret)
	if cfg.App.JwtSecret == "" {
		log.Printf("[WARN] JWT_SECRET is empty; every handshake will be rejected")
	}

	c := &Container{Logger: sysLogger}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermillLogger,
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}
	var auditEvents service.EventPublisher
	if natsPub != nil {
		auditEvents = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}
	if natsSub != nil {
		c.NatsSubscriber = natsSub
		c.closers = append(c.closers, natsSub.Close)
	}

	// 3. Realtime core
	router := fanout.NewRouter(fanout.NewRegistry(), fanout.Config{
		MaxConsecutiveDrops: cfg.Realtime.MaxConsecutiveDrops,
	}, m, wsLogger)
	tracker := presence.NewTracker(router, presence.Config{
		TypingTimeout: cfg.Realtime.TypingTimeout,
		SweepInterval: cfg.Realtime.TypingSweepInterval,
	})

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v (cross-instance fanout disabled)", err)
	} else {
		c.Relay = websocket.NewRedisRelay(rdb, router, wsLogger)
		router.SetRelay(c.Relay)
	}
	cancelPing()
	c.closers = append(c.closers, func() { _ = rdb.Close() })

	// 4. Query pipeline
	warehouseDB, err := warehouse.Open(cfg.Warehouse.Driver, cfg.Warehouse.DSN)
	if err != nil {
		log.Fatalf("[FATAL] Failed to open warehouse: %v", err)
	}
	c.closers = append(c.closers, func() { _ = warehouseDB.Close() })

	llmProvider, err := factory.NewLLMProvider(factory.Config{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  cfg.Ai.LLMBaseURL,
		APIKey:   cfg.Ai.LLMAPIKey,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	pipeline := querypipeline.New(querypipeline.Deps{
		Schema:    warehouse.NewSQLSchemaProvider(warehouseDB, cfg.Warehouse.Driver, cfg.Warehouse.Schema, cfg.Warehouse.SchemaCacheTTL, sysLogger),
		Generator: llmProvider,
		Executor:  warehouse.NewSQLExecutor(warehouseDB, cfg.Warehouse.ReadOnlyTx),
		Auditor:   service.NewAuditPublisher(pubSub, cfg.Query.AuditTopic, m, sysLogger),
		Metrics:   m,
		Logger:    sysLogger,
	}, querypipeline.Config{
		RowLimit:          cfg.Query.RowLimit,
		ExecTimeout:       cfg.Query.ExecTimeout,
		GenerationTimeout: cfg.Query.GenerationTimeout,
		TotalTimeout:      cfg.Query.TotalTimeout,
		MaxSchemaTables:   cfg.Query.MaxSchemaTables,
	})

	// 5. Services
	messageService := service.NewMessageService(uowFactory, router, sysLogger)
	bridge := service.NewResultBridge(router, uowFactory, cfg.Ai.LLMModel, sysLogger)
	queryLimiter := ratelimit.NewKeyed(ratelimit.Config{
		PerSecond: cfg.Query.PerUserPerMinute / 60,
		Burst:     int(cfg.Query.PerUserPerMinute),
	}, 10*time.Minute)
	queryService := service.NewQueryService(uowFactory, messageService, pipeline, bridge, queryLimiter, sysLogger)
	consumerService := service.NewAuditConsumerService(
		pubSub,
		cfg.Query.AuditTopic,
		uowFactory,
		auditEvents,
		m,
		sysLogger,
	)

	// WebSocket Hub
	wsHub := websocket.NewHub(websocket.Deps{
		Router:  router,
		Tracker: tracker,
		Queries: queryService,
		Posts:   messageService,
		Members: service.NewMembershipService(uowFactory),
		Metrics: m,
		Logger:  wsLogger,
	}, websocket.Config{
		IdleTimeout: cfg.Realtime.IdleTimeout,
		SendBuffer:  cfg.Realtime.SendBuffer,
		IntentRate: ratelimit.Config{
			PerSecond: cfg.Realtime.IntentsPerSecond,
			Burst:     cfg.Realtime.IntentBurst,
		},
	})

	// 6. HTTP surface
	checks := map[string]handler.HealthCheck{
		"warehouse": warehouseDB.PingContext,
	}
	if sqlDB, err := db.DB(); err == nil {
		checks["database"] = sqlDB.PingContext
	}
	if c.Relay != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	c.ChatHandler = handler.NewChatHandler(wsHub, auth, wsLogger)
	c.HealthHandler = handler.NewHealthHandler(checks)
	c.QueryController = controller.NewQueryController(queryService, auth)
	c.WebSocketHub = wsHub
	c.ConsumerService = consumerService
	c.MessageService = messageService
	c.QueryService = queryService
	c.closers = append(c.closers, func() {
		_ = sysLogger.Sync()
		_ = wsLogger.Sync()
	})
	return c
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

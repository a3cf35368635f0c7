package app

import (
	"context"
	"log"
	"time"

	"tush00nka/secujob_messaging/internal/config"
	"tush00nka/secujob_messaging/internal/handler"
	"tush00nka/secujob_messaging/internal/pkg/auth"
	"tush00nka/secujob_messaging/internal/pkg/push"
	"tush00nka/secujob_messaging/internal/realtime"
	"tush00nka/secujob_messaging/internal/repository"
	"tush00nka/secujob_messaging/internal/service"
	"tush00nka/secujob_messaging/internal/thread"
	"tush00nka/secujob_messaging/internal/ws"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const connectTimeout = 10 * time.Second

type bus interface {
	thread.Realtime
	repository.ChangePublisher
	Metrics() *realtime.Metrics
	Close() error
}

type sink interface {
	thread.NotificationSink
	Close() error
}

func Run(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := repository.NewDB(cfg.DSN())
	if err != nil {
		log.Fatal(err)
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	rt, err := newBus(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close()

	notifier, err := newSink(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer notifier.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	realtime.RegisterMetrics(registry, rt.Metrics())
	if hub, ok := rt.(*realtime.Hub); ok {
		realtime.RegisterHubMetrics(registry, hub)
	}

	threadService := service.NewThreadService(service.ThreadServiceDeps{
		Messages:      repository.NewMessageRepository(db, rt),
		Notifications: repository.NewNotificationRepository(db),
		Presence:      repository.NewPresenceRepository(db),
		Applications:  repository.NewApplicationRepository(db),
		Realtime:      rt,
		Sink:          notifier,
		Metrics:       thread.NewMetrics(registry),
	}, threadOptions(cfg))

	authManager := auth.NewManager(cfg.JWTKey, 0)
	threadHandler := handler.NewThreadHandler(
		threadService,
		authManager,
		ws.NewUpgrader(cfg.Origins(), cfg.IsDevelopment()),
	)

	server := NewServer(threadHandler, registry, cfg.Origins())
	server.Run(cfg.ServerPort)
}

func newBus(ctx context.Context, cfg *config.Config) (bus, error) {
	if cfg.RealtimeBackend != config.BackendRedis {
		log.Printf("realtime: in-memory hub")
		return realtime.NewHub(), nil
	}

	client, err := repository.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	log.Printf("realtime: redis at %s", cfg.RedisAddr)
	return realtime.NewRedisBus(client), nil
}

func newSink(cfg *config.Config) (sink, error) {
	if cfg.RabbitURL == "" {
		log.Printf("push: disabled, RABBIT_URL is empty")
		return push.Nop{}, nil
	}
	publisher, err := push.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		return nil, err
	}
	log.Printf("push: publishing to queue %s", cfg.RabbitQueue)
	return publisher, nil
}

func threadOptions(cfg *config.Config) thread.Options {
	return thread.Options{
		TypingIdle:        cfg.TypingIdle,
		HeartbeatInterval: cfg.HeartbeatInterval,
		PresenceFreshness: cfg.PresenceFreshness,
		TransitionReveal:  cfg.TransitionReveal,
		TransitionSettle:  cfg.TransitionSettle,
		ConsecutiveCap:    cfg.ConsecutiveCap,
		MaxMessageLength:  cfg.MaxMessageLength,
	}
}

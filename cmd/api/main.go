package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/SUF145/call-geo/common/env"
	"github.com/SUF145/call-geo/common/logger"
	"github.com/SUF145/call-geo/common/middleware"
	"github.com/SUF145/call-geo/common/rabbitmq"
	"github.com/SUF145/call-geo/common/telemetry"
	"github.com/SUF145/call-geo/internal/archive"
	"github.com/SUF145/call-geo/internal/boot"
	"github.com/SUF145/call-geo/internal/bridge"
	"github.com/SUF145/call-geo/internal/events"
	"github.com/SUF145/call-geo/internal/location"
	"github.com/SUF145/call-geo/internal/notify"
	"github.com/SUF145/call-geo/internal/prefs"
	"github.com/SUF145/call-geo/internal/tracker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	serviceName    = "tracking-service"
	serviceVersion = "1.0.0"
)

// Config is the wired application.
type Config struct {
	Settings   Settings
	Prefs      prefs.Store
	Registry   bridge.Registry
	Hub        *bridge.Hub
	Host       *bridge.Host
	Provider   *location.PushProvider
	Tray       *notify.Tray
	Notifier   notify.Manager
	History    notify.History
	Supervisor *tracker.Supervisor
	Restorer   *boot.Restorer
	Health     *health.Server
	Archive    *archive.PostgresArchive

	Redis *redis.Client
	Mongo *mongo.Client
	DB    *pgxpool.Pool
	AMQP  *amqp.Conn

	httpMetrics *middleware.HTTPMetrics
}

// backends are the storage and messaging implementations chosen at startup.
type backends struct {
	prefs     prefs.Store
	registry  bridge.Registry
	history   notify.History
	archive   archive.Archive
	publisher events.Publisher
}

func newConfig(s Settings, reg prometheus.Registerer, b backends) *Config {
	app := &Config{
		Settings: s,
		Prefs:    b.prefs,
		Registry: b.registry,
		History:  b.history,
		Hub:      bridge.NewHub(s.JWTSecret),
		Provider: location.NewPushProvider(s.LocationPermission),
		Tray:     notify.NewTray(),
		Health:   health.NewServer(),
	}
	app.Host = bridge.NewHost(b.registry, app.Hub.Endpoint)
	app.Notifier = notify.NewRecorder(app.Tray, b.history)
	app.httpMetrics = middleware.NewHTTPMetrics(reg, serviceName)

	metrics := tracker.NewMetrics(reg)
	app.Supervisor = tracker.NewSupervisor(func() *tracker.Service {
		deps := tracker.Deps{
			Host:      app.Host,
			Provider:  app.Provider,
			Notifier:  app.Notifier,
			Publisher: b.publisher,
			Archive:   b.archive,
			Metrics:   metrics,
		}
		if s.SpoofingDetection {
			deps.Spoofing = location.NewSpoofingDetector()
		}
		return tracker.NewService(deps)
	}, app.setTrackingHealth)
	app.Restorer = boot.NewRestorer(b.prefs, app.Supervisor)

	app.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	app.Health.SetServingStatus(trackingHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return app
}

func main() {
	if err := env.Load(); err != nil {
		fmt.Printf("Failed to load .env: %v\n", err)
	}

	// telemetry first so the logger picks up the OTLP provider
	shutdown, err := telemetry.InitTracer(serviceName, serviceVersion)
	if err != nil {
		fmt.Printf("Failed to initialize tracer: %v\n", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Error("Failed to shutdown tracer", "error", err)
			}
		}()
	}

	if err := logger.Init(serviceName, isDevelopment()); err != nil {
		logger.InitDefault(serviceName)
	}
	settings := loadSettings()
	logger.AppInfo("Starting tracking service", "version", serviceVersion)

	b := backends{
		prefs:    prefs.NewMemoryStore(prefs.TrackingPreference{}),
		registry: bridge.NewMemoryRegistry(),
		history:  notify.NewMemoryHistory(int(settings.HistoryLimit)),
	}

	var redisClient *redis.Client
	if settings.RedisEnabled {
		redisClient, err = connectRedis()
		if err != nil {
			logger.Fatal("Failed to connect to Redis", "error", err)
		}
		defer redisClient.Close()
		b.prefs = prefs.NewRedisStore(redisClient)
		b.registry = bridge.NewRedisRegistry(redisClient)
	} else {
		logger.AppWarn("Redis disabled, tracking preference will not survive restarts")
	}

	var mongoClient *mongo.Client
	if settings.MongoEnabled {
		mongoClient, err = connectMongo()
		if err != nil {
			logger.AppError("Failed to connect to MongoDB, keeping notification history in memory", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := mongoClient.Disconnect(ctx); err != nil {
					logger.Error("Error disconnecting from MongoDB", "error", err)
				}
			}()
			b.history = notify.NewMongoHistory(mongoClient.Database(env.Get("MONGO_DATABASE", "tracking")))
		}
	}

	var pool *pgxpool.Pool
	var archived *archive.PostgresArchive
	if settings.DatabaseURL != "" {
		pool, err = archive.Connect(context.Background(), settings.DatabaseURL)
		if err != nil {
			logger.AppError("Failed to connect to Postgres, fixes will not be archived", "error", err)
		} else {
			defer pool.Close()
			pg := archive.NewPostgresArchive(pool)
			if err := pg.EnsureSchema(context.Background()); err != nil {
				logger.AppError("Failed to prepare archive schema", "error", err)
			}
			b.archive = pg
			archived = pg
		}
	}

	var amqpConn *amqp.Conn
	if settings.RabbitEnabled {
		opts := rabbitmq.DefaultConnectOptions()
		opts.ManagementURL = env.RabbitMQManagementURL()
		opts.Username = env.Get("RABBITMQ_USER", "guest")
		opts.Password = env.Get("RABBITMQ_PASSWORD", "guest")

		amqpConn, err = rabbitmq.Connect(context.Background(), env.RabbitMQURL(), &opts)
		if err != nil {
			logger.AppError("Failed to connect to RabbitMQ, continuing without events", "error", err)
		} else {
			defer amqpConn.Close()
			publisher, err := events.NewAMQPPublisher(context.Background(), amqpConn)
			if err != nil {
				logger.AppError("Failed to create event publisher", "error", err)
			} else {
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					publisher.Close(ctx)
				}()
				b.publisher = publisher
			}
		}
	}

	app := newConfig(settings, prometheus.DefaultRegisterer, b)
	app.Redis = redisClient
	app.Mongo = mongoClient
	app.DB = pool
	app.Archive = archived
	app.AMQP = amqpConn

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if amqpConn != nil {
		go func() {
			if err := app.ConsumeGeofenceAlerts(ctx, amqpConn); err != nil {
				logger.AppError("Geofence alert consumer stopped", "error", err)
			}
		}()
	}

	go func() {
		if err := app.StartGRPCServer(ctx); err != nil {
			logger.Fatal("gRPC server failed", "error", err)
		}
	}()

	// the process start counts as a boot signal
	if _, err := app.Restorer.OnReceive(ctx, boot.ActionBootCompleted); err != nil {
		logger.AppError("Failed to restore tracking", "error", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", settings.WebPort),
		Handler: app.routes(),
	}

	go func() {
		logger.AppInfo("Starting HTTP server", "port", settings.WebPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.AppInfo("Shutting down server gracefully...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := app.Supervisor.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop tracking service", "error", err)
	}
	app.Host.Shutdown()
	app.Hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.AppInfo("Server exited")
}

package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/SUF145/call-geo/common/env"
	"github.com/SUF145/call-geo/common/logger"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Settings is the process configuration, read from the environment.
type Settings struct {
	WebPort     string
	GRPCPort    string
	Development bool

	JWTSecret   string
	TokenExpiry time.Duration

	LocationPermission bool
	SpoofingDetection  bool
	HistoryLimit       int64

	RedisEnabled  bool
	MongoEnabled  bool
	RabbitEnabled bool
	DatabaseURL   string
}

func isDevelopment() bool {
	return env.Get("APP_ENV", "development") == "development"
}

func loadSettings() Settings {
	s := Settings{
		WebPort:            env.Get("WEB_PORT", "80"),
		GRPCPort:           env.Get("GRPC_PORT", "50051"),
		Development:        isDevelopment(),
		JWTSecret:          env.Get("JWT_SECRET", ""),
		TokenExpiry:        env.GetDuration("PEER_TOKEN_EXPIRY", 24*time.Hour),
		LocationPermission: env.GetBool("LOCATION_PERMISSION_GRANTED", true),
		SpoofingDetection:  env.GetBool("SPOOFING_DETECTION", true),
		HistoryLimit:       int64(env.GetInt("NOTIFICATION_HISTORY_LIMIT", 50)),
		RedisEnabled:       env.GetBool("REDIS_ENABLED", true),
		MongoEnabled:       env.GetBool("MONGO_ENABLED", true),
		RabbitEnabled:      env.GetBool("RABBITMQ_ENABLED", true),
		DatabaseURL:        env.Get("DATABASE_URL", ""),
	}
	if s.JWTSecret == "" {
		s.JWTSecret = "default-secret-change-in-production"
		logger.Warn("Using default JWT secret. Set JWT_SECRET environment variable in production!")
	}
	return s
}

func connectRedis() (*redis.Client, error) {
	host := env.Get("REDIS_HOST", "redis")
	port := env.Get("REDIS_PORT", "6379")

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.Get("REDIS_PASSWORD", ""),
		DB:       env.GetInt("REDIS_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Successfully connected to Redis", "host", host, "port", port)
	return client, nil
}

func connectMongo() (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(mongoURL())
	clientOptions.SetMaxPoolSize(20)
	clientOptions.SetMaxConnIdleTime(30 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB successfully")
	return client, nil
}

// mongoURL prefers a full connection string and otherwise builds one from
// the split MONGO_* variables.
func mongoURL() string {
	for _, key := range []string{"MONGO_CONNECTION_STRING", "MONGO_URL"} {
		if uri := env.Get(key, ""); uri != "" {
			return uri
		}
	}

	host := env.Get("MONGO_HOST", "mongo")
	port := env.Get("MONGO_PORT", "27017")
	user := env.Get("MONGO_USERNAME", "")
	if user == "" {
		return fmt.Sprintf("mongodb://%s:%s", host, port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%s/?authSource=%s",
		url.QueryEscape(user), url.QueryEscape(env.Get("MONGO_PASSWORD", "")),
		host, port, url.QueryEscape(env.Get("MONGO_AUTH_SOURCE", "admin")))
}

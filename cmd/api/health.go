package main

import (
	"context"
	"net/http"
	"time"

	"github.com/SUF145/call-geo/common/response"
	"github.com/SUF145/call-geo/internal/tracker"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// trackingHealthService is the gRPC health service name reporting whether
// the reporting process is tracking.
const trackingHealthService = "tracking"

// Liveness probe - just check if the service is running
func (app *Config) Liveness(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness probe - checks only the backends this process was started with
func (app *Config) Readiness(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{}
	if app.Redis != nil {
		checks["redis"] = app.checkRedis(r.Context())
	}
	if app.Mongo != nil {
		checks["mongodb"] = app.checkMongo(r.Context())
	}
	if app.DB != nil {
		checks["postgres"] = app.checkPostgres(r.Context())
	}
	if app.AMQP != nil {
		checks["rabbitmq"] = app.checkRabbitMQ(r.Context())
	}

	allHealthy := true
	for _, healthy := range checks {
		if !healthy {
			allHealthy = false
			break
		}
	}

	status, code := "ready", http.StatusOK
	if !allHealthy {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	response.WriteJSON(w, code, map[string]interface{}{
		"status":   status,
		"checks":   checks,
		"tracking": app.Supervisor.Tracking(),
	})
}

func (app *Config) checkRedis(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return app.Redis.Ping(ctx).Err() == nil
}

func (app *Config) checkMongo(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return app.Mongo.Ping(ctx, nil) == nil
}

func (app *Config) checkPostgres(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return app.DB.Ping(ctx) == nil
}

func (app *Config) checkRabbitMQ(ctx context.Context) bool {
	// go-amqp doesn't have IsClosed(), so we check by trying to create a session
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	session, err := app.AMQP.NewSession(ctx, nil)
	if err != nil {
		return false
	}
	session.Close(ctx)
	return true
}

// setTrackingHealth mirrors the supervisor state into the gRPC health server.
func (app *Config) setTrackingHealth(state tracker.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == tracker.StateTracking {
		status = healthpb.HealthCheckResponse_SERVING
	}
	app.Health.SetServingStatus(trackingHealthService, status)
}

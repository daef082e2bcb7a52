package main

import (
	"net/http"

	"github.com/SUF145/call-geo/common/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func (app *Config) routes() http.Handler {
	if !app.Settings.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(otelgin.Middleware(serviceName, otelgin.WithFilter(middleware.TraceFilter)))
	router.Use(middleware.RequestLogging())
	router.Use(middleware.Recovery())
	router.Use(app.httpMetrics.Gin())

	router.GET("/health/live", wrap(app.Liveness))
	router.GET("/health/ready", wrap(app.Readiness))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/system/boot", wrap(app.Boot))

	tracking := router.Group("/tracking")
	tracking.POST("/start", wrap(app.StartTracking))
	tracking.POST("/stop", wrap(app.StopTracking))
	tracking.GET("/status", wrap(app.TrackingStatus))

	router.POST("/location/fixes", wrap(app.UploadFixes))
	router.GET("/location/fixes", wrap(app.ArchivedFixes))
	router.PUT("/location/permission", wrap(app.SetPermission))

	router.POST("/callbacks", wrap(app.RegisterCallback))
	router.GET("/bridge/ws", wrap(app.Hub.ServeWS))

	router.GET("/notifications", wrap(app.ActiveNotifications))
	router.GET("/notifications/history", wrap(app.NotificationHistory))

	return router
}

// wrap adapts a net/http handler to gin, keeping handlers router-agnostic.
func wrap(h http.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		h(c.Writer, c.Request)
	}
}

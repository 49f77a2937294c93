package main

import (
	"context"
	"net/http"
	"time"
	_ "time/tzdata"

	"axiapac.com/attendance/attendance/web/handlers"
	"axiapac.com/attendance/config"
	"axiapac.com/attendance/core"
	"axiapac.com/attendance/infrastructure/locking"
	"axiapac.com/attendance/infrastructure/logging"
	"axiapac.com/attendance/timezone"
	"axiapac.com/attendance/web/middlewares"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := logging.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal(err)
	}

	dm, err := core.New(cfg.DSN, cfg.MaxConnections)
	if err != nil {
		logger.Fatal(err)
	}
	defer dm.Close()
	dm.Logger = logger
	if cfg.IsProduction() {
		dm.LogLevel = core.LogLevelError
		gin.SetMode(gin.ReleaseMode)
	}

	h := &handlers.Handler{
		Controllers: handlers.TenantControllers(dm, timezone.NewClient(cfg.TimezoneServiceURL, cfg.TimezoneAPIKey)),
		Logger:      logger,
	}

	h.Sweeps = handlers.TenantSweeps(dm, nil)
	if cfg.RedisAddress != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := locking.Connect(ctx, cfg.RedisAddress)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("redis unavailable; sweeps run without company leases")
		} else {
			defer rdb.Close()
			h.Sweeps = handlers.TenantSweeps(dm, locking.NewRedisLocker(rdb))
		}
	}

	r := gin.Default()
	if !cfg.IsProduction() {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:    []string{"Authorization", "Content-Type", "Accept-Language"},
			MaxAge:          12 * time.Hour,
		}))
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	protected := r.Group("/api/attendance/v1.0")
	protected.Use(middlewares.Authentication(cfg.SigningSecret))
	handlers.Register(protected, h)

	internal := r.Group("/internal")
	internal.Use(middlewares.SchedulerToken(cfg.SchedulerToken))
	handlers.RegisterInternal(internal, h)

	logger.WithField("port", cfg.Port).Info("attendance api listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Fatal(err)
	}
}

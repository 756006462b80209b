// Command staffingd serves the staffing HTTP API and, optionally, its record
// store over TCP for the staffing CLI and other instances.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/celerix-dev/celerix-staffing/internal/api"
	"github.com/celerix-dev/celerix-staffing/internal/applications"
	"github.com/celerix-dev/celerix-staffing/internal/attendance"
	"github.com/celerix-dev/celerix-staffing/internal/config"
	"github.com/celerix-dev/celerix-staffing/internal/dashboard"
	"github.com/celerix-dev/celerix-staffing/internal/events"
	"github.com/celerix-dev/celerix-staffing/internal/logging"
	"github.com/celerix-dev/celerix-staffing/internal/server"
	"github.com/celerix-dev/celerix-staffing/internal/vault"
	"github.com/celerix-dev/celerix-staffing/pkg/sdk"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		logging.LogFatal(logging.New("info", false), "Failed to load configuration", err)
	}
	logger := logging.Configure(cfg.LogLevel, cfg.LogJSON)
	logger.WithField("backend", cfg.StoreBackend).Info("Starting staffing daemon")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the record store
	opts, err := cfg.StoreOptions()
	if err != nil {
		logging.LogFatal(logger, "Invalid store settings", err)
	}
	store, err := sdk.Open(ctx, opts)
	if err != nil {
		logging.LogFatal(logger, "Failed to open record store", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.LogError(logger, "Failed to close record store", err)
		}
	}()

	// 3. Event publishing
	pub, err := events.Open(cfg.RabbitMQURL, cfg.EventsQueue, logger)
	if err != nil {
		logging.LogWarn(logger, "RabbitMQ unavailable, logging events instead: "+err.Error())
		pub = events.LogPublisher{Logger: logger}
	}
	defer pub.Close()

	// 4. Optionally expose the store over TCP
	var router *server.Router
	if cfg.StorePort != "" && cfg.StoreBackend != sdk.BackendRemote {
		router = server.NewRouter(store)
		if !cfg.DisableTLS {
			cert, err := vault.GenerateSelfSignedCert()
			if err != nil {
				logging.LogFatal(logger, "Failed to generate TLS certificate", err)
			}
			router.SetCertificate(cert)
		} else {
			logging.LogWarn(logger, "TLS disabled for the record-store port")
		}
		go func() {
			logger.Infof("Record store listening on :%s (TCP)", cfg.StorePort)
			if err := router.Listen(cfg.StorePort); err != nil {
				logging.LogError(logger, "TCP server failed", err)
				stop()
			}
		}()
	}

	// 5. Services and HTTP API
	if cfg.JWTSecret == "" {
		logging.LogWarn(logger, config.EnvPrefix+"_JWT_SECRET is empty; admin endpoints will reject every request")
	}
	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	h := &api.Handler{
		Store:        store,
		Applications: applications.NewService(store, pub, logger, cfg.Location),
		Attendance: attendance.NewService(store, pub, logger, cfg.Location, attendance.StaffDefaults{
			HourlyRate:     cfg.DefaultHourlyRate,
			SavingsGoal:    cfg.DefaultSavingsGoal,
			CurrentSavings: cfg.DefaultSavings,
		}),
		Dashboard: dashboard.NewService(store, cfg.Location),
		Logger:    logger,
		Location:  cfg.Location,
	}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(h, []byte(cfg.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("HTTP API listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogError(logger, "HTTP server failed", err)
			stop()
		}
	}()

	// 6. Graceful shutdown
	<-ctx.Done()
	logging.LogInfo(logger, "Shutdown signal received. Finalizing writes...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "HTTP shutdown", err)
	}
	if router != nil {
		router.Stop()
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/fortytwo/review-notifier/internal/config"
	"github.com/fortytwo/review-notifier/internal/monitoring"
	"github.com/fortytwo/review-notifier/internal/notifications"
	"github.com/fortytwo/review-notifier/internal/scheduler"
	"github.com/fortytwo/review-notifier/internal/sources"
	"github.com/fortytwo/review-notifier/internal/storage"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting review notifier")

	storageClient, err := storage.New(context.Background(), cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}

	source := sources.NewGmailSource(cfg)
	if !source.IsEnabled() {
		logrus.Fatal("Gmail credentials are not configured (GMAIL_ACCESS_TOKEN or GMAIL_CLIENT_ID/GMAIL_CLIENT_SECRET/GMAIL_REFRESH_TOKEN)")
	}

	notificationService := notifications.NewService(cfg)
	monitoringService := monitoring.NewService(cfg, storageClient, source, notificationService)

	schedulerService := scheduler.NewService(cfg, monitoringService)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	router.HandleFunc("/metrics", metricsHandler(monitoringService)).Methods("GET")
	router.HandleFunc("/trigger/poll", triggerHandler("poll", monitoringService.RunPollCycle)).Methods("POST")
	router.HandleFunc("/trigger/reminders", triggerHandler("reminders", monitoringService.RunReminderCycle)).Methods("POST")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	// Stop cron before releasing storage
	schedulerService.Stop()
	if err := storage.Close(storageClient); err != nil {
		logrus.Errorf("Failed to close storage: %v", err)
	}

	logrus.Info("Server exited")
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func metricsHandler(monitoringService *monitoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(monitoringService.GetMetrics()))
	}
}

func triggerHandler(name string, run func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			if err := run(ctx); err != nil {
				logrus.Errorf("Manual %s trigger failed: %v", name, err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"message":"` + name + ` cycle triggered"}`))
	}
}

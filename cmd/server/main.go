package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "chama-backend/internal/api/http"
	"chama-backend/internal/config"
	"chama-backend/internal/logger"
	"chama-backend/internal/payment"
	"chama-backend/internal/repository"
	"chama-backend/internal/repository/memory"
	"chama-backend/internal/repository/postgres"
	"chama-backend/internal/security"
	"chama-backend/internal/service"

	_ "github.com/lib/pq"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	mintToken := flag.Int("mint-token", 0, "Print an access token for the given user ID and exit (development only)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	tokenManager := security.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute)
	if *mintToken > 0 {
		token, err := tokenManager.GenerateAccessToken(int32(*mintToken), "")
		if err != nil {
			log.Fatalf("Failed to mint token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger.Info("Starting Chama Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())

	// Initialize Repositories
	store, closeStore := openStore(cfg)
	defer closeStore()
	repos := store.Repos()

	// Initialize Email Service
	var emailSvc service.EmailService
	if cfg.SendGrid.APIKey != "" {
		logger.Info("Email delivery via SendGrid", "from", cfg.SendGrid.FromEmail)
		emailSvc = service.NewSendGridEmailService(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName)
	} else {
		logger.Warn("SendGrid API key not set, emails will only be logged")
		emailSvc = service.NewLogEmailService()
	}
	dispatcher := service.NewNotificationDispatcher(repos.Notifications, repos.Users, emailSvc)

	// Initialize Payment Gateway
	gateway := newGateway(cfg)

	// Initialize Services
	handler := httpapi.NewHandler(httpapi.Services{
		Users:         service.NewUserService(repos.Users),
		Groups:        service.NewGroupService(store),
		Balances:      service.NewBalanceService(store),
		Withdrawals:   service.NewWithdrawalService(store, dispatcher),
		Loans:         service.NewLoanService(store, dispatcher, cfg.Loans.DefaultDurationWeeks),
		Contributions: service.NewContributionService(store, gateway, dispatcher),
		Notifications: service.NewNotificationService(repos.Notifications),
	}, tokenManager)

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           httpapi.NewRouter(handler, tokenManager),
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("Server stopped. Goodbye!")
}

// openStore connects the configured store. The returned func releases it.
func openStore(cfg *config.Config) (repository.Store, func()) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}
	}

	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db, cfg.Database.Database); err != nil {
			logger.Error("Failed to run migrations", "error", err)
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}
	return postgres.NewStore(db), func() { db.Close() }
}

func newGateway(cfg *config.Config) payment.Gateway {
	if cfg.Payment.Provider == "mock" {
		logger.Info("Using mock payment gateway")
		return payment.NewMockGateway()
	}

	logger.Info("Using M-Pesa Daraja gateway", "base_url", cfg.Payment.BaseURL, "short_code", cfg.Payment.ShortCode)
	daraja := payment.NewDarajaClient(payment.DarajaConfig{
		BaseURL:        cfg.Payment.BaseURL,
		ConsumerKey:    cfg.Payment.ConsumerKey,
		ConsumerSecret: cfg.Payment.ConsumerSecret,
		ShortCode:      cfg.Payment.ShortCode,
		PassKey:        cfg.Payment.PassKey,
		CallbackURL:    cfg.Payment.CallbackURL,
		Timeout:        time.Duration(cfg.Payment.TimeoutSeconds) * time.Second,
	})
	b := cfg.Payment.Breaker
	return payment.NewBreakerGateway(daraja, payment.BreakerSettings{
		MaxRequests:         b.MaxRequests,
		Interval:            time.Duration(b.IntervalSeconds) * time.Second,
		Timeout:             time.Duration(b.TimeoutSeconds) * time.Second,
		ConsecutiveFailures: b.ConsecutiveFailures,
	})
}

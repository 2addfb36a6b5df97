package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredislib "github.com/redis/go-redis/v9"

	"chama-backend/internal/config"
	"chama-backend/internal/jobs"
	"chama-backend/internal/logger"
	"chama-backend/internal/repository/postgres"
	"chama-backend/internal/scheduler"
	"chama-backend/internal/service"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run one job (or 'all') and exit, e.g. MarkOverdueLoans")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	// The memory store lives inside the API process, so jobs need the shared database.
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("cronjob requires database.driver=postgres, got %q", cfg.Database.Driver)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	locker, closeLocker := newLocker(cfg)
	defer closeLocker()

	store := postgres.NewStore(db)
	runner := jobs.NewJobRunner(store, newDispatcher(cfg, store), cfg, locker)

	if *runOnce != "" {
		if err := runNamed(runner, *runOnce); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	sched, err := scheduler.NewScheduler(runner)
	if err != nil {
		log.Fatalf("register jobs: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start()
	logger.Info("Chama job scheduler started", "jobs", sched.Entries())
	<-ctx.Done()

	sched.Stop()
	logger.Info("Chama job scheduler stopped")
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s:%d: %w", cfg.Database.Host, cfg.Database.Port, err)
	}
	logger.Info("Connected to postgres", "host", cfg.Database.Host, "database", cfg.Database.Database)
	return db, nil
}

// newLocker returns a redsync-backed locker when redis is configured so that
// only one replica runs each tick.
func newLocker(cfg *config.Config) (jobs.Locker, func()) {
	if cfg.Redis.Address == "" {
		return jobs.NewNoopLocker(), func() {}
	}
	client := goredislib.NewClient(&goredislib.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.Info("Job locking via redis", "address", cfg.Redis.Address)
	expiry := time.Duration(cfg.Redis.LockExpirySeconds) * time.Second
	return jobs.NewRedisLocker(client, expiry), func() { client.Close() }
}

func newDispatcher(cfg *config.Config, store *postgres.Store) service.NotificationDispatcher {
	email := service.NewLogEmailService()
	if cfg.SendGrid.APIKey != "" {
		email = service.NewSendGridEmailService(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName)
	}
	repos := store.Repos()
	return service.NewNotificationDispatcher(repos.Notifications, repos.Users, email)
}

func runNamed(runner *jobs.JobRunner, name string) error {
	if name == "all" {
		runner.RunAll()
		return nil
	}
	registry := runner.Jobs()
	job, ok := registry[name]
	if !ok {
		return fmt.Errorf("unknown job %q; available: %v, all", name, slices.Sorted(maps.Keys(registry)))
	}
	logger.Info("Running job once", "job", name)
	job()
	return nil
}

package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/go-quotations/auth"
	"github.com/diewo77/go-quotations/internal/cache"
	"github.com/diewo77/go-quotations/internal/config"
	"github.com/diewo77/go-quotations/internal/db"
	"github.com/diewo77/go-quotations/internal/jobs"
	"github.com/diewo77/go-quotations/internal/policy"
	"github.com/diewo77/go-quotations/internal/realtime"
	"github.com/diewo77/go-quotations/internal/storage"
	"github.com/joho/godotenv"
)

var (
	migrateOnlyFlag   = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag      = flag.Bool("seed-only", false, "Run DB seed and exit")
	rollbackFlag      = flag.Bool("rollback", false, "Roll back the last migration and exit")
	reconcileOnlyFlag = flag.Bool("reconcile-only", false, "Remove orphaned document rows and exit")
)

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()

	// Load configuration from environment
	cfg := config.Load()
	auth.SetSessionTTL(cfg.Session.TTL)
	auth.SetSecret(cfg.Session.Secret)

	dbConn, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Handle one-shot flags
	switch {
	case *migrateOnlyFlag:
		if err := db.Migrate(dbConn); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
		return
	case *rollbackFlag:
		if err := db.RollbackLast(dbConn); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("Rolled back last migration")
		return
	case *seedOnlyFlag:
		if err := db.Seed(dbConn, cfg.Seed.AdminEmail, cfg.Seed.AdminPassword); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		log.Println("Seeding completed successfully")
		return
	}

	// Run migrations on startup if enabled
	if cfg.App.Migrations {
		if err := db.Migrate(dbConn); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed")
	}

	// Seed roles, permissions and the bootstrap admin
	if err := db.Seed(dbConn, cfg.Seed.AdminEmail, cfg.Seed.AdminPassword); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open object storage: %v", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	// Change feed: every write to a watched table is published on the bus
	bus := realtime.NewBus()
	if err := dbConn.Use(realtime.NewPlugin(bus, realtime.WatchedTables()...)); err != nil {
		log.Fatalf("Failed to register change feed: %v", err)
	}
	appCache := cache.New(cfg.App.CacheTTL)
	invalidator := realtime.NewInvalidator(appCache, realtime.Invalidations, cfg.Realtime.Debounce, cfg.Realtime.MaxWait)
	go invalidator.Run(ctx, bus)

	// Create router config with authorization
	routerCfg := policy.NewRouterConfig(dbConn, appCache, store, bus, cfg.Realtime)

	// Sessions for deleted users are rejected
	auth.SetUserVerifier(routerCfg.Users.Exists)

	if *reconcileOnlyFlag {
		n := jobs.RunReconcile(ctx, routerCfg.Documents)
		log.Printf("Reconcile removed %d document rows", n)
		return
	}

	scheduler := jobs.NewScheduler(ctx)
	if err := scheduler.AddDocumentReconcile(cfg.Jobs.DocumentReconcile, routerCfg.Documents); err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	scheduler.Start()

	// Create application handler
	appHandler := NewApp(routerCfg, store)

	// Create server with config timeouts
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      withLogging(appHandler),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %s (dev=%v, db=%s, storage=%s)",
			cfg.Server.Port, cfg.App.Dev, cfg.Database.Driver, cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Event streams end when the bus closes; close it first so Shutdown
	// does not wait on them.
	bus.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	scheduler.Stop(shutdownCtx)
	stop()
	log.Println("Server stopped gracefully")
}

// withLogging adds request logging middleware.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

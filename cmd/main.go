// Facebook Warmup Service - Main Application
// Drives randomized, human-like browsing sessions to warm up Facebook
// accounts. FOR EDUCATIONAL PURPOSES ONLY - automation violates the
// platform's terms of service; do not use on production accounts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/anvita/facebook-warmup/auth"
	"github.com/anvita/facebook-warmup/browser"
	"github.com/anvita/facebook-warmup/config"
	"github.com/anvita/facebook-warmup/logger"
	"github.com/anvita/facebook-warmup/pool"
	"github.com/anvita/facebook-warmup/server"
	"github.com/anvita/facebook-warmup/status"
	"github.com/anvita/facebook-warmup/stealth"
	"github.com/anvita/facebook-warmup/storage"
	"github.com/anvita/facebook-warmup/timing"
	"github.com/anvita/facebook-warmup/warmup"
)

// Command line flags
var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
	mode       = flag.String("mode", "run", "Run mode: run (one session), serve (HTTP API)")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	printBanner()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		fmt.Println("Note: No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputFile: cfg.Logging.OutputFile,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Facebook warmup service starting...")
	log.Infof("Mode: %s", *mode)

	db, err := storage.NewDatabase(cfg.Storage.DatabasePath, log)
	if err != nil {
		log.Errorf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	switch *mode {
	case "run":
		err = runOnce(cfg, log, db)
	case "serve":
		err = serve(cfg, log, db)
	default:
		err = fmt.Errorf("unknown mode: %s", *mode)
	}

	if err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}

	log.Info("Application completed successfully")
}

// runOnce executes a single warmup session with credentials from the
// configuration or environment.
func runOnce(cfg *config.Config, log *logger.Logger, db *storage.Database) error {
	if cfg.Facebook.Email == "" || cfg.Facebook.Password == "" {
		return fmt.Errorf("no credentials: set FACEBOOK_EMAIL and FACEBOOK_PASSWORD or fill the config file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Schedule.Enabled {
		scheduler := stealth.NewScheduler(&cfg.Schedule, log)
		if err := scheduler.WaitForOperatingHours(ctx); err != nil {
			return err
		}
	}

	src := timing.NewSource()
	stl := stealth.NewManager(&cfg.Stealth, log, src)
	br := browser.NewBrowser(cfg, log, stl)
	defer br.Close()

	p := pool.New(1, log)
	p.Track(br)

	authn := auth.NewAuthenticator(cfg, log, stl, db, br)
	engine := warmup.New(cfg, log, br, authn, p, warmup.WithSource(src))

	result := engine.Run(ctx, cfg.Facebook.Email, cfg.Facebook.Password)

	if err := db.SaveSessionResult(result); err != nil {
		log.WithError(err).Warn("Failed to persist session result")
	}

	showResult(log, result)
	showDailyStats(log, db)

	if result.Status != warmup.StatusCompleted {
		return fmt.Errorf("session ended with status %s: %s", result.Status, result.Error)
	}
	return nil
}

// serve runs the HTTP API until interrupted.
func serve(cfg *config.Config, log *logger.Logger, db *storage.Database) error {
	hub := status.NewHub(log)
	p := pool.New(cfg.Server.MaxConcurrentSessions, log)
	runner := server.NewRunner(cfg, log, db, hub, p)
	srv := server.New(cfg, log, runner, db, hub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// showResult logs a summary of a finished session.
func showResult(log *logger.Logger, res *warmup.SessionResult) {
	log.Info("=== Session Result ===")
	log.Infof("  Status: %s", res.Status)
	log.Infof("  Profile: %s", res.SessionProfile)
	log.Infof("  Duration: %.1f min", res.DurationSeconds/60)
	log.Infof("  Scrolls: %d (%d px)", res.ScrollCount, res.ScrolledPixels)
	log.Infof("  Likes: %d, Comments: %d, Friend Requests: %d, Videos: %d",
		res.Likes, res.Comments, res.FriendRequests, res.VideosWatched)
	if res.Error != "" {
		log.Infof("  Error: %s", res.Error)
	}
	log.Info("======================")
}

// showDailyStats displays today's activity statistics
func showDailyStats(log *logger.Logger, db *storage.Database) {
	stats, err := db.GetTodayStats()
	if err != nil {
		log.WithError(err).Warn("Failed to get daily stats")
		return
	}

	log.Info("=== Today's Activity ===")
	log.Infof("  Sessions: %d completed, %d failed", stats.SessionsCompleted, stats.SessionsFailed)
	log.Infof("  Likes: %d", stats.Likes)
	log.Infof("  Comments: %d", stats.Comments)
	log.Infof("  Friend Requests: %d", stats.FriendRequests)
	log.Infof("  Videos Watched: %d", stats.VideosWatched)
	log.Info("========================")
}

// printBanner prints the application banner
func printBanner() {
	banner := `
╔══════════════════════════════════════════════════════════════════╗
║          Facebook Warmup Service - Educational Only              ║
╠══════════════════════════════════════════════════════════════════╣
║  ⚠️  WARNING: This tool is for EDUCATIONAL PURPOSES ONLY         ║
║  ⚠️  Using automation on Facebook violates their ToS             ║
║  ⚠️  Do NOT use this on production accounts                      ║
╚══════════════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
}

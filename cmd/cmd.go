package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tomodachi-cheki/internal/cache"
	"tomodachi-cheki/internal/config"
	"tomodachi-cheki/internal/repository"
	"tomodachi-cheki/internal/services"
	"tomodachi-cheki/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// stores are the persistence backends picked by database.driver.
type stores struct {
	photos services.PhotoStore
	memos  services.MemoStore
	users  services.UserStore
	close  func()
}

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.close()

	a := &app{
		allowedOrigins: cfg.Server.AllowedOrigins,
		maxUploadBytes: cfg.Photos.MaxUploadBytes,
		limiter:        newRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		hub:            services.NewWSHub(),
	}

	objects, err := openObjectStore(ctx, cfg, a)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create object store")
	}

	a.urlCache = cache.NewSignedURLCache(cache.Options{
		MaxSize:       cfg.Cache.MaxSize,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	a.urlCache.Start(ctx)

	// Initialize services
	a.userService = services.NewUserService(db.users, cfg.JWT.Secret, cfg.JWT.TTL)
	a.userService.SetAdminEmails(cfg.Admin.Emails)
	a.photoService = services.NewPhotoService(db.photos, objects, a.urlCache, services.PhotoOptions{
		SignedURLTTL: cfg.AWS.SignedURLTTL,
		Notifier:     a.hub,
	})
	a.memoService = services.NewMemoService(db.memos, db.photos, nil)

	go services.NewSweeper(a.photoService, cfg.Photos.CleanupInterval).Run(ctx)
	go a.limiter.Cleanup(ctx, time.Minute)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newRouter(a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("database", cfg.Database.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openStores connects to PostgreSQL, or builds in-memory stores when
// database.driver is "memory".
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("Using in-memory database; data is lost on restart")
		return &stores{
			photos: repository.NewMemoryPhotoRepository(),
			memos:  repository.NewMemoryMemoRepository(),
			users:  repository.NewMemoryUserRepository(),
			close:  func() {},
		}, nil
	}

	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test database connection
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if cfg.Database.Migrate {
		if err := repository.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		log.Info().Msg("Database migrations applied")
	}

	return &stores{
		photos: repository.NewPhotoRepository(db),
		memos:  repository.NewMemoRepository(db),
		users:  repository.NewUserRepository(db),
		close:  db.Close,
	}, nil
}

// openObjectStore uses S3 when credentials are configured and falls back to
// an in-process store otherwise.
func openObjectStore(ctx context.Context, cfg *config.Config, a *app) (services.ObjectStore, error) {
	if cfg.AWS.AccessKey == "" {
		baseURL := fmt.Sprintf("http://localhost:%d/objects", cfg.Server.Port)
		log.Warn().Str("base_url", baseURL).Msg("No S3 credentials, storing images in memory")
		mem := storage.NewMemoryStore(baseURL)
		a.objects = mem
		return mem, nil
	}

	s3Store, err := storage.NewS3Store(ctx, storage.S3Options{
		Region:       cfg.AWS.Region,
		Bucket:       cfg.AWS.S3Bucket,
		AccessKey:    cfg.AWS.AccessKey,
		SecretKey:    cfg.AWS.SecretKey,
		Endpoint:     cfg.AWS.Endpoint,
		UsePathStyle: cfg.AWS.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("bucket", cfg.AWS.S3Bucket).Msg("S3 object store configured")
	return s3Store, nil
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

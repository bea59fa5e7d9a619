package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bluesearch/bluesearch/internal/api/handlers"
	"github.com/bluesearch/bluesearch/internal/config"
	"github.com/bluesearch/bluesearch/internal/jobs"
	"github.com/bluesearch/bluesearch/internal/server"
	"github.com/bluesearch/bluesearch/internal/storage"
	"github.com/bluesearch/bluesearch/internal/telemetry"
)

// streamWorkerInterval is how often the background worker opens a firehose
// session when BLUESEARCH_STREAM_KEYWORDS is set.
const streamWorkerInterval = 15 * time.Minute

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the bluesearch API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pipe, err := newPipelineWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer pipe.Close()
	log.Println("connected to database")

	var streamWorker *jobs.Worker
	if keywords := strings.Fields(cfg.StreamKeywords); len(keywords) > 0 {
		var archiver jobs.SessionArchiver
		if cfg.HasS3() {
			s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
				Endpoint:        cfg.S3Endpoint,
				Region:          cfg.S3Region,
				AccessKeyID:     cfg.S3AccessKey,
				SecretAccessKey: cfg.S3SecretKey,
				Bucket:          cfg.S3Bucket,
				UsePathStyle:    true,
			})
			if err != nil {
				return fmt.Errorf("failed to create S3 client: %w", err)
			}
			if err := s3Client.EnsureBucket(ctx); err != nil {
				return fmt.Errorf("failed to ensure S3 bucket: %w", err)
			}
			log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
			archiver = s3Client
		}

		processor := jobs.NewStreamWorker(
			pipe.streamer,
			pipe.ingester,
			archiver,
			jobs.StreamWorkerConfig{
				Keywords:    keywords,
				MaxPosts:    cfg.StreamMaxPosts,
				MaxDuration: cfg.StreamDuration(),
			},
		)
		streamWorker = jobs.NewWorker(processor, streamWorkerInterval)
		go streamWorker.Start(ctx)
		log.Printf("stream worker started (keywords: %s)", cfg.StreamKeywords)
	}

	queryHandler := handlers.NewQueryHandler(pipe.rag, pipe.repo, pipe.logs)
	router := server.NewRouter(server.RouterConfig{QueryHandler: queryHandler})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if streamWorker != nil {
		streamWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	// golang-migrate needs a database/sql handle
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}

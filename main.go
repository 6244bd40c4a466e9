package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	api "github.com/rpupo63/content-tree-backend/api"
	"github.com/rpupo63/content-tree-backend/config"
	"github.com/rpupo63/content-tree-backend/database"
	"github.com/rpupo63/content-tree-backend/database/inmemory"
	"github.com/rpupo63/content-tree-backend/hooks"
	"github.com/rpupo63/content-tree-backend/models"
	"github.com/rpupo63/content-tree-backend/services"
	"github.com/rpupo63/content-tree-backend/storage"
)

func main() {
	fmt.Println("Initializing app...")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: Error loading .env file: %v\n", err)
	}

	c := config.New()
	setupLogger(c)

	ctx := context.Background()

	if prefix := config.GetString(c, "SSM_PARAMETER_PATH", ""); prefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("error loading AWS config")
		}
		values, err := config.LoadSSM(ctx, ssm.NewFromConfig(awsCfg), prefix)
		if err != nil {
			log.Fatal().Err(err).Msg("error loading SSM parameters")
		}
		c = config.Merge(c, values)
		log.Info().Int("count", len(values)).Str("path", prefix).Msg("loaded SSM parameters")
	}

	dbType := config.GetString(c, "DB_TYPE", "postgres")
	log.Info().Str("dbType", dbType).Msg("opening store")

	var store database.Store
	var health func(context.Context) error
	switch dbType {
	case "memory":
		store = inmemory.New()
		log.Warn().Msg("using the in-memory store; content is lost on exit")
	default:
		db, err := database.Open(c)
		if err != nil {
			log.Fatal().Err(err).Msg("error connecting to database")
		}
		if err := database.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("error migrating database")
		}

		// If generating models, run generation and exit
		if config.GetBool(c, "GENERATE_MODELS", false) {
			fmt.Println("Generating models and query helpers...")
			if err := models.GenerateModels(db, config.GetString(c, "GENERATE_MODELS_PATH", "")); err != nil {
				log.Fatal().Err(err).Msg("error generating models")
			}
			return
		}

		// If generating column mismatch report, run report and exit
		if config.GetBool(c, "GENERATE_COLUMN_REPORT", false) {
			fmt.Println("Generating column mismatch report...")
			report, err := models.GenerateColumnMismatchReport(db)
			if err != nil {
				log.Fatal().Err(err).Msg("error generating column report")
			}
			for _, m := range report {
				fmt.Printf("%s: unmapped columns %s\n", m.Table, strings.Join(m.Missing, ", "))
			}
			return
		}

		currentDB := database.New(db)
		store = currentDB.NodeStore()
		health = currentDB.Health
	}

	driver, err := newStorageDriver(ctx, c)
	if err != nil {
		log.Fatal().Err(err).Msg("error configuring asset storage")
	}

	notifier := hooks.Multi{hooks.LogNotifier{Logger: log.Logger}}
	if redisURL := config.GetString(c, "REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("error parsing REDIS_URL")
		}
		client := redis.NewClient(opts)
		defer client.Close()
		notifier = append(notifier, hooks.NewRedisNotifier(client, config.GetString(c, "HOOK_CHANNEL_PREFIX", "cms"), log.Logger))
	}

	engine := services.NewEngine(services.Options{
		Store:              store,
		Notifier:           notifier,
		Storage:            driver,
		Logger:             log.Logger,
		VersionRetention:   config.GetInt(c, "VERSION_RETENTION", 0),
		CleanupConcurrency: config.GetInt(c, "CLEANUP_CONCURRENCY", 4),
	})

	server, err := api.NewServer(c, engine, health)
	if err != nil {
		log.Fatal().Err(err).Msg("error initializing server")
	}

	// Listen for interrupt signals to gracefully shutdown the server
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	run(server, signals, config.GetDuration(c, "SHUTDOWN_TIMEOUT", 30*time.Second))
	engine.Cleaner().Wait()
}

// setupLogger applies LOG_LEVEL and LOG_FORMAT ("console" for humans, JSON otherwise).
func setupLogger(c map[string]string) {
	level, err := zerolog.ParseLevel(config.GetString(c, "LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if config.GetString(c, "LOG_FORMAT", "json") == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// newStorageDriver picks the asset byte store from STORAGE_DRIVER: s3, local
// or none. A nil driver disables key checks and cleanup.
func newStorageDriver(ctx context.Context, c map[string]string) (storage.Driver, error) {
	switch config.GetString(c, "STORAGE_DRIVER", "none") {
	case "s3":
		bucket := config.GetString(c, "S3_BUCKET", "")
		if bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for the s3 storage driver")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		return storage.NewS3Driver(client, bucket, config.GetString(c, "S3_PREFIX", ""), log.Logger), nil
	case "local":
		driver, err := storage.NewLocalDriver(config.GetString(c, "LOCAL_STORAGE_DIR", "./data/assets"))
		if err != nil {
			return nil, err
		}
		return driver, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", config.GetString(c, "STORAGE_DRIVER", ""))
	}
}

type runner interface {
	Start(errChannel chan<- error)
	ShutdownGracefully(timeout time.Duration)
}

// run starts srv and blocks until it fails or a signal arrives, then shuts it
// down. errChannel is buffered for both senders and never closed, so the
// ErrServerClosed that Start reports after shutdown never blocks or panics.
func run(srv runner, signals <-chan os.Signal, timeout time.Duration) error {
	errChannel := make(chan error, 2)

	go srv.Start(errChannel)
	go func() {
		if sig, ok := <-signals; ok {
			errChannel <- fmt.Errorf("%s", sig)
		}
	}()

	fatalErr := <-errChannel
	log.Info().Msgf("Closing server: %v", fatalErr)
	srv.ShutdownGracefully(timeout)
	return fatalErr
}

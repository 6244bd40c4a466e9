package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rpupo63/content-tree-backend/config"
	"github.com/rpupo63/content-tree-backend/errs"
	"github.com/rpupo63/content-tree-backend/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

type Database struct {
	db        *gorm.DB
	nodeStore *NodeStore
}

// New wraps a shared GORM connection.
func New(db *gorm.DB) Database {
	return Database{
		db:        db,
		nodeStore: NewNodeStore(db),
	}
}

func (d Database) NodeStore() *NodeStore {
	return d.nodeStore
}

// Health pings the primary.
func (d Database) Health(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// DSN builds the primary connection string for DB_TYPE.
func DSN(c map[string]string) (string, error) {
	dbType := config.GetString(c, "DB_TYPE", "postgres")
	switch dbType {
	case "postgres":
		dsn := config.GetString(c, "DATABASE_URL", "")
		if dsn == "" {
			return "", errs.NewMissingRequiredFieldError("DATABASE_URL")
		}
		return dsn, nil
	case "supa":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=require",
			config.GetString(c, "SUPABASE_DB_HOST", ""),
			config.GetString(c, "SUPABASE_DB_USER", ""),
			config.GetString(c, "SUPABASE_DB_PASSWORD", ""),
			config.GetString(c, "SUPABASE_DB_NAME", ""),
			config.GetString(c, "SUPABASE_DB_PORT", "5432"),
		), nil
	}
	return "", errs.NewInvalidFieldError("DB_TYPE", fmt.Sprintf("unsupported database type %q", dbType))
}

// Open connects to Postgres and registers read replicas from DB_REPLICA_URLS.
// Transactions always run on the primary.
func Open(c map[string]string) (*gorm.DB, error) {
	dsn, err := DSN(c)
	if err != nil {
		return nil, err
	}

	slow := time.Duration(config.GetInt(c, "DB_SLOW_QUERY_SECONDS", 10)) * time.Second
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		PrepareStmt: false,
		Logger:      gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if replicas := config.GetStrings(c, "DB_REPLICA_URLS"); len(replicas) > 0 {
		dialectors := make([]gorm.Dialector, 0, len(replicas))
		for _, replica := range replicas {
			dialectors = append(dialectors, postgres.New(postgres.Config{
				DSN:                  replica,
				PreferSimpleProtocol: true,
			}))
		}
		resolver := dbresolver.Register(dbresolver.Config{
			Replicas: dialectors,
			Policy:   dbresolver.RandomPolicy{},
		}).
			SetMaxOpenConns(config.GetInt(c, "DB_REPLICA_MAX_OPEN_CONNS", 20)).
			SetConnMaxIdleTime(time.Duration(config.GetInt(c, "DB_REPLICA_MAX_IDLE_SECONDS", 300)) * time.Second)
		if err := db.Use(resolver); err != nil {
			return nil, fmt.Errorf("register read replicas: %w", err)
		}
	}

	var result int
	if err := db.Raw("SELECT 1").Scan(&result).Error; err != nil {
		return nil, fmt.Errorf("test database connection: %w", err)
	}

	return db, nil
}

// nodeIndexes back the tree invariants. Live paths are unique per kind;
// post_version rows live under _version/ and are excluded from that index.
var nodeIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_live_slug_path
		ON nodes (kind, slug_path) WHERE type <> 'post_version'`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_slug_path_prefix
		ON nodes (kind, slug_path text_pattern_ops)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_versions
		ON nodes (parent_id, revision DESC) WHERE type = 'post_version'`,
	`ALTER TABLE nodes ALTER COLUMN tags SET DEFAULT '[]'::jsonb`,
}

// Migrate creates the nodes table and the indexes the tree relies on:
// live path uniqueness per kind, prefix scans and version listing.
func Migrate(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		return fmt.Errorf("enable pgcrypto: %w", err)
	}
	if err := db.AutoMigrate(&models.Node{}); err != nil {
		return fmt.Errorf("migrate nodes: %w", err)
	}

	for _, stmt := range nodeIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate nodes: %w", err)
		}
	}
	return nil
}

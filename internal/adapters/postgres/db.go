package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ConnSettings tunes the underlying connection pool. Zero values fall back to
// defaults sized for a single worker instance.
type ConnSettings struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

func (s ConnSettings) withDefaults() ConnSettings {
	if s.MaxOpenConns <= 0 {
		s.MaxOpenConns = 20
	}
	if s.MaxIdleConns <= 0 {
		s.MaxIdleConns = s.MaxOpenConns / 2
	}
	if s.MaxIdleConns > s.MaxOpenConns {
		s.MaxIdleConns = s.MaxOpenConns
	}
	if s.ConnMaxIdleTime <= 0 {
		s.ConnMaxIdleTime = 15 * time.Minute
	}
	if s.ConnMaxLifetime <= 0 {
		s.ConnMaxLifetime = time.Hour
	}
	if s.PingTimeout <= 0 {
		s.PingTimeout = 5 * time.Second
	}
	return s
}

// Connect opens the profile/transaction database and verifies it is
// reachable. TranslateError is on so driver errors surface as gorm sentinels
// where gorm knows the mapping; the unique-violation probe in util.go covers
// the rest.
func Connect(ctx context.Context, databaseURL string, settings ConnSettings) (*gorm.DB, error) {
	settings = settings.withDefaults()

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(settings.MaxOpenConns)
	sqlDB.SetMaxIdleConns(settings.MaxIdleConns)
	sqlDB.SetConnMaxIdleTime(settings.ConnMaxIdleTime)
	sqlDB.SetConnMaxLifetime(settings.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, settings.PingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded migrations in filename order. Statements
// are idempotent (CREATE ... IF NOT EXISTS), so re-running on startup is safe.
func RunMigrations(ctx context.Context, db *gorm.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	names, err := migrationNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		raw, readErr := migrationFS.ReadFile("migrations/" + name)
		if readErr != nil {
			return fmt.Errorf("read migration %s: %w", name, readErr)
		}
		if execErr := db.WithContext(ctx).Exec(string(raw)).Error; execErr != nil {
			return fmt.Errorf("exec migration %s: %w", name, execErr)
		}
		logger.InfoContext(ctx, "migration applied", "migration", name)
	}
	return nil
}

func migrationNames() ([]string, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Package storage opens the user store selected by the database config,
// shared by lifeplan-server and lifeplan-admin.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lifeplan-navigator/authcore"
	"github.com/lifeplan-navigator/authcore/internal/serverconfig"
	"github.com/lifeplan-navigator/authcore/store/memory"
	"github.com/lifeplan-navigator/authcore/store/postgres"
	"github.com/lifeplan-navigator/authcore/store/sqlite"
	"github.com/lifeplan-navigator/authcore/store/sqlstore"
)

// Handle is an open user store. DB and Audit are nil for the memory driver.
type Handle struct {
	Driver string
	DB     *sql.DB
	Users  authcore.UserStore
	Audit  *sqlstore.AuditSink

	migrate func(context.Context, *sql.DB) ([]int64, error)
}

// Open connects to the configured database. It does not migrate.
func Open(ctx context.Context, cfg serverconfig.DatabaseConfig, logger *slog.Logger) (*Handle, error) {
	h := &Handle{Driver: cfg.Driver}
	switch cfg.Driver {
	case "memory":
		h.Users = memory.NewUserStore()
		return h, nil
	case "postgres":
		db, err := postgres.Open(ctx, cfg.URL, cfg.MaxOpen)
		if err != nil {
			return nil, err
		}
		h.DB, h.migrate = db, postgres.Migrate
		h.Users, h.Audit = postgres.NewUserStore(db), postgres.NewAuditSink(db, logger)
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		h.DB, h.migrate = db, sqlite.Migrate
		h.Users, h.Audit = sqlite.NewUserStore(db), sqlite.NewAuditSink(db, logger)
	default:
		return nil, fmt.Errorf("database driver %q is not supported", cfg.Driver)
	}
	return h, nil
}

// Persistent reports whether accounts survive a restart.
func (h *Handle) Persistent() bool {
	return h.DB != nil
}

// Migrate applies pending schema migrations. It is a no-op for memory.
func (h *Handle) Migrate(ctx context.Context) ([]int64, error) {
	if h.migrate == nil {
		return nil, nil
	}
	return h.migrate(ctx, h.DB)
}

func (h *Handle) Close() error {
	if h.DB == nil {
		return nil
	}
	return h.DB.Close()
}

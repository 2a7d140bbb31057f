// Package postgres implements the storage.Backend interface on PostgreSQL
// with PostGIS. Queueing and the background writer come from the embedded
// GORM backend; this package owns the connection.
package postgres

import (
	"fmt"

	"github.com/eldstar/server/internal/config"
	"github.com/eldstar/server/internal/database"
	gormstorage "github.com/eldstar/server/internal/storage/gorm"
	"github.com/rs/zerolog"

	"gorm.io/gorm"
)

// maxOpenConns caps the pool used by the writer and the status API.
const maxOpenConns = 10

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	DB      *gorm.DB // optional; opened from Config when nil
	Config  config.DatabaseConfig
	Log     zerolog.Logger
	Version string
}

// Backend implements storage.Backend using GORM/PostgreSQL with queue-based batch writes.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new Postgres storage backend. No connection is made
// until Init.
func New(deps Dependencies) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{DB: deps.DB, Log: deps.Log, Version: deps.Version}),
		deps:    deps,
	}
}

// Init connects when no DB was injected, then migrates and starts the writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.OpenPostgres(b.deps.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(maxOpenConns)
		b.deps.DB = db
		b.Backend = gormstorage.New(gormstorage.Dependencies{DB: db, Log: b.deps.Log, Version: b.deps.Version})
	}

	b.deps.Log.Info().Str("host", b.deps.Config.Host).Str("database", b.deps.Config.Database).Msg("Connected to database")
	return b.Backend.Init()
}

// Package factory selects and wires a storage backend from configuration.
// It lives outside package storage because the backends import storage.
package factory

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vantagecv/scenekit/v2/internal/config"
	"github.com/vantagecv/scenekit/v2/internal/database"
	"github.com/vantagecv/scenekit/v2/internal/logging"
	"github.com/vantagecv/scenekit/v2/internal/storage"
	gormstorage "github.com/vantagecv/scenekit/v2/internal/storage/gorm"
	"github.com/vantagecv/scenekit/v2/internal/storage/memory"
	sqlitestorage "github.com/vantagecv/scenekit/v2/internal/storage/sqlite"
)

// NewBackend creates a storage backend based on configuration.
//
//   - memory: in-process records with a JSON run record export
//   - postgres: GORM over Postgres, with automatic SQLite fallback when
//     the server is unreachable
//   - sqlite: GORM over an in-memory SQLite DB with periodic disk dumps
func NewBackend(cfg config.StorageConfig, logManager *logging.SlogManager, dbLog zerolog.Logger) (storage.Backend, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(cfg.Memory), nil

	case "postgres":
		manager := database.NewManager(dbLog)
		if err := manager.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := manager.Setup(); err != nil {
			return nil, fmt.Errorf("failed to set up database schema: %w", err)
		}
		return gormstorage.New(gormstorage.Dependencies{
			DB:         manager.DB,
			LogManager: logManager,
		}), nil

	case "sqlite":
		manager := database.NewManager(dbLog)
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.Sqlite.DumpInterval,
			DumpDir:      cfg.Sqlite.DumpDir,
		}, manager, logManager)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// Package sqlitestorage implements the storage.Backend interface using an
// in-memory SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend via composition — the only SQLite-specific
// concerns are (a) creating the in-memory DB and (b) the dump loop.
package sqlitestorage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vantagecv/scenekit/v2/internal/database"
	"github.com/vantagecv/scenekit/v2/internal/logging"
	gormstorage "github.com/vantagecv/scenekit/v2/internal/storage/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval time.Duration
	DumpDir      string // Directory for periodic VACUUM INTO dumps
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	manager  *database.Manager
	cfg      Config
	log      *logging.SlogManager
	stopChan chan struct{}
}

// New creates a new SQLite storage backend over an in-memory database.
func New(cfg Config, manager *database.Manager, logManager *logging.SlogManager) (*Backend, error) {
	db, err := manager.GetSqliteDB("")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	manager.DB = db
	manager.ShouldSaveLocal = true
	manager.IsValid = true

	if cfg.DumpDir != "" {
		if err := os.MkdirAll(cfg.DumpDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create dump directory: %w", err)
		}
		manager.SqliteFilePath = filepath.Join(cfg.DumpDir, "scenekit_local.db")
	}

	if err := manager.Setup(); err != nil {
		return nil, fmt.Errorf("failed to set up SQLite schema: %w", err)
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:         db,
		LogManager: logManager,
	})

	return &Backend{
		Backend:  gormBackend,
		manager:  manager,
		cfg:      cfg,
		log:      logManager,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.manager.SqliteFilePath != "" && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, takes a final snapshot so the run
// survives the in-memory database, and closes the embedded GORM backend.
func (b *Backend) Close() error {
	close(b.stopChan)

	if b.manager.SqliteFilePath != "" {
		if err := b.manager.DumpMemoryToDisk(); err != nil {
			b.log.WriteLog("sqlite:Close", fmt.Sprintf("Error dumping to disk: %v", err), "ERROR")
		}
	}

	return b.Backend.Close()
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via
// VACUUM INTO. VACUUM INTO creates a point-in-time snapshot, so no pause
// mechanism is needed.
func (b *Backend) dumpLoop() {
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.manager.DumpMemoryToDisk(); err != nil {
				b.log.WriteLog("sqlite:dumpLoop", fmt.Sprintf("Error dumping to disk: %v", err), "ERROR")
			} else {
				b.log.WriteLog("sqlite:dumpLoop", fmt.Sprintf("Dumped to disk in %s", time.Since(start)), "DEBUG")
			}
		}
	}
}

// Package gormstorage implements the storage.Backend interface on GORM
// with internal queues and a background DB writer goroutine. It serves
// both Postgres and SQLite connections.
package gormstorage

import (
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/vantagecv/scenekit/v2/internal/annotation"
	"github.com/vantagecv/scenekit/v2/internal/logging"
	"github.com/vantagecv/scenekit/v2/internal/model"
	"github.com/vantagecv/scenekit/v2/internal/model/convert"
	"github.com/vantagecv/scenekit/v2/internal/queue"
	"github.com/vantagecv/scenekit/v2/internal/storage"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Frames   *queue.Queue[model.Frame]
	Failures *queue.Queue[model.FailureEvent]
}

func newQueues() *queues {
	return &queues{
		Frames:   queue.New[model.Frame](),
		Failures: queue.New[model.FailureEvent](),
	}
}

// Backend implements the storage Backend on GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	queues    *queues
	runID     atomic.Uint64
	stopChan  chan struct{}
	dbReady   bool
	lastWrite atomic.Int64 // nanoseconds spent in the last flush cycle
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{
		deps: deps,
	}
}

// Init creates internal queues and starts the DB writer goroutine.
// The connection must be injected via Dependencies; schema migration
// is the connection owner's job.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})

	if b.deps.DB == nil {
		return fmt.Errorf("no database connection provided")
	}
	b.dbReady = true

	b.startDBWriter()
	return nil
}

// Close stops the DB writer goroutine.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
	}
	return nil
}

// StartRun inserts the run row synchronously so its ID is available to
// the DB writer before any frame is recorded.
func (b *Backend) StartRun(info *storage.RunInfo) error {
	if b.deps.DB == nil {
		return nil
	}

	run := convert.InfoToRun(*info)
	if err := b.deps.DB.Create(&run).Error; err != nil {
		b.deps.LogManager.WriteLog("StartRun", fmt.Sprintf("Failed to insert run: %v", err), "ERROR")
		return fmt.Errorf("failed to insert new run: %w", err)
	}

	// Store run ID for the DB writer goroutine
	b.runID.Store(uint64(run.ID))

	return nil
}

// SetRunID sets the current run ID (used by the export command to point
// the backend at an already persisted run).
func (b *Backend) SetRunID(id uint) {
	b.runID.Store(uint64(id))
}

// RunID returns the current run ID.
func (b *Backend) RunID() uint {
	return uint(b.runID.Load())
}

// EndRun drains the queues synchronously and closes out the run row.
func (b *Backend) EndRun(summary *storage.RunSummary) error {
	if b.deps.DB == nil {
		return nil
	}

	b.flushQueues()

	var run model.Run
	if err := b.deps.DB.First(&run, b.RunID()).Error; err != nil {
		return fmt.Errorf("failed to load run %d: %w", b.RunID(), err)
	}
	convert.ApplySummary(&run, *summary)
	if err := b.deps.DB.Save(&run).Error; err != nil {
		return fmt.Errorf("failed to close out run %d: %w", run.ID, err)
	}
	return nil
}

// RecordFrame converts a frame record with its placement and annotation
// children and pushes it to the write queue.
func (b *Backend) RecordFrame(rec *storage.FrameRecord) error {
	gormObj := convert.RecordToFrame(b.RunID(), *rec)
	b.queues.Frames.Push(gormObj)
	return nil
}

// RecordFailure converts and queues a failure event.
func (b *Backend) RecordFailure(rec *storage.FailureRecord) error {
	gormObj := convert.FailureToEvent(b.RunID(), *rec)
	b.queues.Failures.Push(gormObj)
	return nil
}

// Dataset rebuilds the COCO dataset document from the persisted rows of
// the current run. Only accepted frames contribute.
func (b *Backend) Dataset() (annotation.Dataset, error) {
	if b.deps.DB == nil {
		return annotation.Dataset{}, fmt.Errorf("no database connection")
	}

	var frames []model.Frame
	err := b.deps.DB.
		Preload("Annotations").
		Where("run_id = ? AND accepted = ?", b.RunID(), true).
		Order("frame_index ASC").
		Find(&frames).Error
	if err != nil {
		return annotation.Dataset{}, fmt.Errorf("failed to load frames for run %d: %w", b.RunID(), err)
	}

	builder := annotation.NewDatasetBuilder()
	for _, row := range frames {
		builder.AddFrame(convert.RowToFrame(row))
	}
	return builder.Dataset(), nil
}

// ExportedFilePath returns empty; this backend persists rows, the caller
// decides where dataset documents land.
func (b *Backend) ExportedFilePath() string {
	return ""
}

// writeQueue writes all items from a queue to the database in a transaction.
// On error the items are pushed back for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string)) {
	if q.Empty() {
		return
	}

	tx := db.Begin()
	items := q.GetAndEmpty()
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Push(items...)
		return
	}

	tx.Commit()
}

// flushQueues drains both queues into the DB once.
func (b *Backend) flushQueues() {
	start := time.Now()
	log := b.deps.LogManager.WriteLog
	writeQueue(b.deps.DB, b.queues.Frames, "frames", log)
	writeQueue(b.deps.DB, b.queues.Failures, "failure events", log)
	b.lastWrite.Store(int64(time.Since(start)))
}

// GetLastDBWriteDuration returns how long the last flush cycle took.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// startDBWriter starts the background goroutine that periodically drains
// queues into the DB.
func (b *Backend) startDBWriter() {
	go func() {
		for {
			select {
			case <-b.stopChan:
				return
			default:
			}

			if !b.dbReady {
				time.Sleep(1 * time.Second)
				continue
			}

			b.flushQueues()

			time.Sleep(2 * time.Second)
		}
	}()
}

// Package gormstorage implements the storage.Backend interface on top of
// GORM. Frames are converted at record time and queued; a background
// writer drains the queue in batches. The sqlite and postgres backends
// embed it and only differ in how the *gorm.DB is opened.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eldstar/server/internal/database"
	"github.com/eldstar/server/internal/model"
	"github.com/eldstar/server/internal/model/convert"
	"github.com/eldstar/server/internal/queue"
	"github.com/eldstar/server/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultFlushInterval is how often the writer drains the frame queue.
const DefaultFlushInterval = 2 * time.Second

// ErrNoSession is returned when a frame arrives before StartSession.
var ErrNoSession = errors.New("no session started")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Log           zerolog.Logger
	Version       string
	FlushInterval time.Duration
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	frames    *queue.Queue[model.Frame]
	sessionID atomic.Uint64 // DB id of the open session row

	flushMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		frames: queue.New[model.Frame](),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine. Without
// a DB the backend only queues, which is used by tests.
func (b *Backend) Init() error {
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB == nil {
		close(b.done)
		return nil
	}

	if err := database.Setup(b.deps.DB, b.deps.Log, b.deps.Version); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	go b.writerLoop()
	return nil
}

// Close stops the writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() { close(b.stopChan) })
	<-b.done
	return nil
}

// StartSession inserts the session row synchronously so that queued
// frames can reference it.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		b.sessionID.Store(s.ID)
		return nil
	}

	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	b.sessionID.Store(uint64(row.ID))
	b.deps.Log.Debug().Uint64("session", s.ID).Uint("row", row.ID).Msg("Session started")
	return nil
}

// EndSession flushes pending frames and finalises the session row.
func (b *Backend) EndSession(s *core.Session) error {
	id := uint(b.sessionID.Swap(0))
	if b.deps.DB == nil || id == 0 {
		return nil
	}

	b.Flush()

	row := convert.CoreToSession(*s)
	err := b.deps.DB.Model(&model.Session{}).Where("id = ?", id).Updates(map[string]any{
		"user_agent": row.UserAgent,
		"ended_at":   row.EndedAt,
		"frames":     row.Frames,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// RecordSnapshot converts and queues a committed snapshot.
func (b *Backend) RecordSnapshot(snap *core.Snapshot) error {
	id := uint(b.sessionID.Load())
	if id == 0 {
		return ErrNoSession
	}
	frame, err := convert.CoreToFrame(snap)
	if err != nil {
		return fmt.Errorf("failed to convert frame %d: %w", snap.Frame, err)
	}
	frame.SessionID = id
	b.frames.Push(frame)
	return nil
}

// Pending returns the number of frames waiting for the writer.
func (b *Backend) Pending() int {
	return b.frames.Len()
}

// RecentFrames lists the newest recorded frames, newest first.
func (b *Backend) RecentFrames(limit int) ([]core.Stats, error) {
	if b.deps.DB == nil {
		return nil, nil
	}
	var rows []model.Frame
	err := b.deps.DB.Preload("Session").Order("id desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	out := make([]core.Stats, 0, len(rows))
	for _, f := range rows {
		out = append(out, convert.FrameToStats(f, f.Session.Number))
	}
	return out, nil
}

// LoadFrame restores the object placements of a recorded frame.
func (b *Backend) LoadFrame(id uint) (*core.Snapshot, error) {
	if b.deps.DB == nil {
		return nil, gorm.ErrRecordNotFound
	}
	var f model.Frame
	if err := b.deps.DB.Preload("Session").First(&f, id).Error; err != nil {
		return nil, err
	}
	if err := b.deps.DB.Where("frame_id = ?", id).Order("id").Find(&f.Transforms).Error; err != nil {
		return nil, fmt.Errorf("failed to load transforms: %w", err)
	}
	return convert.FrameToCore(f, f.Session.Number), nil
}

// Flush writes all queued frames now.
func (b *Backend) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	writeQueue(b.deps.DB, b.frames, "frames", b.deps.Log, insertFrames)
}

// insertFrames writes frames and then their children once frame ids
// are known.
func insertFrames(tx *gorm.DB, items []model.Frame) error {
	// ids from a rolled back attempt must not be reused
	for i := range items {
		items[i].ID = 0
	}
	if err := tx.Omit(clause.Associations).Create(&items).Error; err != nil {
		return err
	}

	var meshes []model.ZoneMesh
	var transforms []model.ObjectTransform
	for _, f := range items {
		for _, m := range f.Meshes {
			m.FrameID = f.ID
			meshes = append(meshes, m)
		}
		for _, t := range f.Transforms {
			t.FrameID = f.ID
			transforms = append(transforms, t)
		}
	}
	if len(meshes) > 0 {
		if err := tx.Omit(clause.Associations).Create(&meshes).Error; err != nil {
			return fmt.Errorf("zone meshes: %w", err)
		}
	}
	if len(transforms) > 0 {
		if err := tx.Omit(clause.Associations).Create(&transforms).Error; err != nil {
			return fmt.Errorf("object transforms: %w", err)
		}
	}
	return nil
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back on the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log zerolog.Logger, insert func(*gorm.DB, []T) error) {
	if db == nil || q.Empty() {
		return
	}

	items := q.Drain()
	start := time.Now()
	err := db.Transaction(func(tx *gorm.DB) error {
		return insert(tx, items)
	})
	if err != nil {
		log.Error().Err(err).Str("queue", name).Int("count", len(items)).Msg("Error writing queue")
		q.Push(items...)
		return
	}
	log.Debug().Str("queue", name).Int("count", len(items)).Dur("duration", time.Since(start)).Msg("Wrote queue")
}

// writerLoop periodically drains the frame queue into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.Flush()
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}

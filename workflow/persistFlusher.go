package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zmsaddi/metalflow_backend/config"
	"github.com/zmsaddi/metalflow_backend/utils"
	"gorm.io/gorm"
)

// Sink is the durable persistence contract the engine flushes into. The
// implementation (disk file, cloud object, browser storage bridge) lives
// outside the core; save is best-effort from the engine's point of view.
type Sink interface {
	Save(ctx context.Context, state []byte) error
}

// Flusher pushes serialized engine state to the sink after commits. It is
// debounced: MarkDirty arms a timer instead of flushing inline, so a burst
// of commits produces one snapshot. A failed flush is reported and logged
// as a persistence warning; it never invalidates committed state.
type Flusher struct {
	db       *gorm.DB
	logger   *logrus.Logger
	sink     Sink
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	lastErr error
	closed  bool
	wg      sync.WaitGroup
}

func NewFlusher(db *gorm.DB, logger *logrus.Logger, sink Sink, debounce time.Duration) *Flusher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Flusher{
		db:       db,
		logger:   logger,
		sink:     sink,
		debounce: debounce,
	}
}

// MarkDirty schedules a flush. Repeated calls within the debounce window
// reset the timer.
func (f *Flusher) MarkDirty() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if f.timer != nil && f.timer.Stop() {
		f.wg.Done()
	}
	f.wg.Add(1)
	f.timer = time.AfterFunc(f.debounce, func() {
		defer f.wg.Done()
		f.flush(context.Background())
	})
}

// Flush runs one synchronous flush, used at shutdown and in tests.
func (f *Flusher) Flush(ctx context.Context) error {
	f.mu.Lock()
	if f.timer != nil {
		if f.timer.Stop() {
			f.wg.Done()
		}
		f.timer = nil
	}
	f.mu.Unlock()
	return f.flush(ctx)
}

func (f *Flusher) flush(ctx context.Context) error {
	state, err := config.SnapshotDatabase(f.db)
	if err == nil {
		err = f.sink.Save(ctx, state)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		perr := &utils.PersistenceError{Cause: err}
		f.lastErr = perr
		config.LogWarn(f.logger, "persistFlusher.go", "flush", "background flush failed", nil, perr)
		return perr
	}
	f.lastErr = nil
	return nil
}

// LastError reports the outcome of the most recent flush; nil after a
// successful one.
func (f *Flusher) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Close stops the pending timer and waits for an in-flight flush.
func (f *Flusher) Close() {
	f.mu.Lock()
	f.closed = true
	if f.timer != nil {
		if f.timer.Stop() {
			f.wg.Done()
		}
		f.timer = nil
	}
	f.mu.Unlock()
	f.wg.Wait()
}

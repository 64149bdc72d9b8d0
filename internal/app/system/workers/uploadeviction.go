// internal/app/system/workers/uploadeviction.go
package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// IdleEvictor drops upload sessions that stopped receiving fragments.
type IdleEvictor interface {
	EvictIdle(olderThan time.Duration) int
}

// UploadEviction is a background worker that discards stalled chunked
// uploads and frees their buffers.
type UploadEviction struct {
	uploads       IdleEvictor
	log           *zap.Logger
	interval      time.Duration
	idleThreshold time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewUploadEviction creates a new upload eviction worker.
//
// Parameters:
//   - uploads: the reassembler owning in-flight uploads
//   - logger: zap logger for logging
//   - interval: how often to sweep (e.g., 1 minute)
//   - idleThreshold: how long an upload may go without a fragment (e.g., 10 minutes)
func NewUploadEviction(uploads IdleEvictor, logger *zap.Logger, interval, idleThreshold time.Duration) *UploadEviction {
	return &UploadEviction{
		uploads:       uploads,
		log:           logger,
		interval:      interval,
		idleThreshold: idleThreshold,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *UploadEviction) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("upload eviction worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("idle_threshold", w.idleThreshold))
}

// Stop signals the worker to stop and waits for it to finish. It is safe
// to call more than once.
func (w *UploadEviction) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.log.Info("upload eviction worker stopped")
}

func (w *UploadEviction) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *UploadEviction) sweep() {
	count := w.uploads.EvictIdle(w.idleThreshold)
	if count > 0 {
		w.log.Info("evicted idle uploads", zap.Int("count", count))
	}
}

package yaradb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Engine is the process-wide storage engine: the authoritative in-memory
// [state], the WAL, and the mutex pair that serializes mutations
// (§5: "one state mutex ... and one WAL mutex ... always acquired in the
// order state → WAL").
//
// All public operations (repository.go, tables.go, indexes.go) are
// methods on *Engine.
type Engine struct {
	mu  sync.Mutex // the state mutex
	st  *state
	wal *wal // the WAL mutex lives inside *wal itself

	cfg Config

	closed         atomic.Bool
	stopCheckpoint chan struct{}
	checkpointDone chan struct{}
}

// Open loads the snapshot (if any), replays the WAL, and starts the
// periodic checkpoint goroutine if cfg.CheckpointInterval is non-zero
// (§4.7's startup sequence, plus the supplemented periodic-checkpoint
// feature).
func Open(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, wrap(err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, wrap(fmt.Errorf("create data dir: %w", err))
	}

	st, err := loadSnapshot(cfg.snapshotPath())
	if err != nil {
		return nil, wrap(fmt.Errorf("load snapshot: %w", err))
	}

	st.rebuildAllIndexes()

	w, records, err := openWAL(cfg.walPath(), cfg.WALSyncEveryWrite)
	if err != nil {
		return nil, wrap(fmt.Errorf("open wal: %w", err))
	}

	for _, rec := range records {
		// §4.7: "Any record that fails validation is logged and
		// skipped — replay must never abort." The engine layer itself
		// never logs (see SPEC_FULL.md's ambient Logging section); a
		// caller that wants replay diagnostics should inspect the WAL
		// file directly before calling Open.
		_ = st.apply(rec)
	}

	st.rebuildAllIndexes()

	e := &Engine{
		st:             st,
		wal:            w,
		cfg:            cfg,
		stopCheckpoint: make(chan struct{}),
		checkpointDone: make(chan struct{}),
	}

	if cfg.CheckpointInterval > 0 {
		go e.runCheckpointLoop()
	} else {
		close(e.checkpointDone)
	}

	return e, nil
}

func (e *Engine) runCheckpointLoop() {
	defer close(e.checkpointDone)

	ticker := time.NewTicker(e.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCheckpoint:
			return
		case <-ticker.C:
			_ = e.Checkpoint(context.Background())
		}
	}
}

// Close runs a final checkpoint (§4.7: "on shutdown, run a checkpoint")
// and releases the WAL file handle. Idempotent: calling Close more than
// once is a no-op after the first call.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	if e.stopCheckpoint != nil {
		close(e.stopCheckpoint)
		<-e.checkpointDone
	}

	if err := e.Checkpoint(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.wal.close()
}

func (e *Engine) checkClosed() error {
	if e.closed.Load() {
		return wrap(ErrClosed)
	}

	return nil
}

// Checkpoint runs the checkpoint protocol (§4.4): serialize state to a
// temporary file beside the snapshot (a randomly suffixed name, see
// writeSnapshot), atomically rename it over the snapshot file, then
// truncate the WAL. Runs entirely under the state mutex so the snapshot
// is a consistent point-in-time and nothing can extend the WAL between
// the rename and the truncate.
func (e *Engine) Checkpoint(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := writeSnapshot(e.cfg.snapshotPath(), e.st); err != nil {
		return wrap(fmt.Errorf("%w: %w", ErrDurability, err))
	}

	if err := e.wal.truncate(); err != nil {
		return wrap(fmt.Errorf("%w: %w", ErrDurability, err))
	}

	return nil
}

// WipeAllData clears all in-memory state, truncates the WAL, and
// overwrites the snapshot with an empty state document (a supplemented
// feature grounded on the original's wipe_all_data; see
// SPEC_FULL.md's SUPPLEMENTED FEATURES #2).
func (e *Engine) WipeAllData(_ context.Context) error {
	if err := e.checkClosed(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.st.reset()

	if err := e.wal.truncate(); err != nil {
		return wrap(fmt.Errorf("%w: %w", ErrDurability, err))
	}

	if err := writeSnapshot(e.cfg.snapshotPath(), e.st); err != nil {
		return wrap(fmt.Errorf("%w: %w", ErrDurability, err))
	}

	return nil
}

// appendAndApply writes rec to the WAL (fsync before return) and, only
// if that succeeds, applies it to memory. Callers must hold e.mu.
//
// §5's cancellation rule: once the WAL write returns successfully the
// in-memory apply always completes, regardless of ctx — the operation
// is already durable, so skipping the apply would let memory diverge
// from what a crash-recovery replay would reconstruct.
func (e *Engine) appendAndApply(rec walRecord) error {
	if err := e.wal.append(rec); err != nil {
		return err
	}

	// Apply errors are not expected here (we just constructed rec
	// ourselves); per §7's propagation policy, an in-memory apply error
	// discovered post-WAL is not fatal to the caller — recovery on next
	// startup reconstructs a consistent state from the WAL.
	_ = e.st.apply(rec)

	return nil
}

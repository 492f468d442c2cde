// Package engine implements the Engine: the single point of entry for
// creating, starting, pausing, resuming, and cancelling downloads. It owns
// the Store, the EventBus, and the map of in-flight Transfer workers, and
// is the only component allowed to write the Store — Transfer workers
// report outcomes back through callbacks instead of touching it directly,
// so every state transition for a given path is serialized through a
// single mutex before the corresponding Store write and EventBus emit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"downloadengine/internal/download"
	"downloadengine/internal/events"
	"downloadengine/internal/logging"
	"downloadengine/internal/validate"
	"downloadengine/internal/worker"
)

// Config holds everything an Engine needs to start. Callers typically
// populate it from the envconfig-resolved RuntimeConfig in internal/config.
type Config struct {
	DataDir                  string
	Logger                   *slog.Logger
	ConnectTimeout           time.Duration
	IdleTimeout              time.Duration
	ProgressThresholdPercent float64
}

type workerHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine is the embeddable download engine. A host process constructs one
// with Open and drives it through List/Get/Create/Start/Pause/Resume/Cancel.
type Engine struct {
	store  *download.Store
	bus    *events.Bus
	logger *slog.Logger
	lock   *flock.Flock

	cfg Config

	workersMu sync.Mutex
	workers   map[string]*workerHandle
}

// Open loads the Store at cfg.DataDir/downloads.json, reconciles any
// records left InProgress by an unclean shutdown, and returns a ready
// Engine. It advisory-locks cfg.DataDir for the engine's lifetime, using
// github.com/gofrs/flock, so a second process opening the same directory
// fails fast with an error instead of racing this one for downloads.json.
func Open(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.DataDir, ".engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("engine: acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("engine: data directory %s is already in use by another instance", cfg.DataDir)
	}

	store := download.NewStore(filepath.Join(cfg.DataDir, "downloads.json"))
	if err := store.Load(); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("engine: load store: %w", err)
	}

	e := &Engine{
		store:   store,
		bus:     events.NewBus(),
		logger:  cfg.Logger,
		lock:    lock,
		cfg:     cfg,
		workers: make(map[string]*workerHandle),
	}

	e.reconcile()

	return e, nil
}

// Close releases the data-directory lock. Any in-flight transfers are
// cancelled immediately rather than left to notice cooperatively, since a
// host process calling Close means to shut down now.
func (e *Engine) Close() error {
	e.workersMu.Lock()
	for path, h := range e.workers {
		h.cancel()
		delete(e.workers, path)
	}
	e.workersMu.Unlock()

	return e.lock.Unlock()
}

// Subscribe registers a listener for download state changes. See
// events.Bus.Subscribe.
func (e *Engine) Subscribe() (<-chan events.Changed, func()) {
	return e.bus.Subscribe()
}

// reconcile reclassifies every Record left in StatusInProgress from a
// previous run that didn't shut down cleanly. A record with no recorded
// progress yet goes back to Idle (nothing was ever written, nothing to
// resume); a record with partial progress goes to Paused so a Resume can
// pick the Range back up from its temp file.
func (e *Engine) reconcile() {
	for _, rec := range e.store.List() {
		if rec.Status != download.StatusInProgress {
			continue
		}

		newStatus := download.StatusPaused
		if rec.Progress <= 0 {
			newStatus = download.StatusIdle
		}

		updated := rec.WithStatus(newStatus)
		if err := e.store.Update(updated, true); err != nil {
			e.logger.Warn("reconcile: failed to update stale record", "file", logging.Filename(rec.Path), "error", err)
			continue
		}
		e.logger.Info("reconcile: found stale in-progress download", "file", logging.Filename(rec.Path), "status", string(newStatus))
	}
}

// List returns every Record currently tracked by the Store.
func (e *Engine) List() []download.Record {
	return e.store.List()
}

// Get returns the Record for path. Unlike Start/Pause/Resume/Cancel, an
// unknown path is not an error: it reports a synthetic Pending record so a
// caller can distinguish "never created" from an actual lookup failure.
func (e *Engine) Get(path string) (download.Record, error) {
	rec, err := e.store.FindByPath(path)
	if errors.Is(err, download.ErrNotFound) {
		return download.Record{Path: path, Status: download.StatusPending}, nil
	}
	return rec, err
}

// Create persists a new Idle Record for path/url. If a Record already
// exists for path, Create is idempotent: it returns the existing Record
// with IsExpectedStatus reporting whether it happens to already be Idle.
func (e *Engine) Create(path, url string) (download.ActionResponse, error) {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()

	if existing, err := e.store.FindByPath(path); err == nil {
		return download.NewActionResponseExpecting(existing, download.StatusIdle), nil
	}

	if err := validate.Path(path); err != nil {
		return download.ActionResponse{}, err
	}
	if err := validate.URL(url); err != nil {
		return download.ActionResponse{}, err
	}

	rec := download.Record{URL: url, Path: path, Status: download.StatusIdle}
	if err := e.store.Append(rec); err != nil {
		return download.ActionResponse{}, err
	}

	e.bus.Emit(events.Changed{Download: rec})
	e.logger.Info("download created", "file", logging.Filename(path))
	return download.NewActionResponse(rec), nil
}

// Start begins transferring an Idle download. Calling Start on a download
// already in any other state is not an error; it returns the download's
// current state unchanged, with IsExpectedStatus reporting whether that
// state is already InProgress.
func (e *Engine) Start(path string) (download.ActionResponse, error) {
	return e.beginTransfer(path, download.StatusIdle)
}

// Resume restarts a Paused download's transfer, picking the Range request
// back up from its partial temp file. Calling Resume on a download not in
// Paused is not an error; it returns the current state unchanged, with
// IsExpectedStatus reporting whether that state is already InProgress.
func (e *Engine) Resume(path string) (download.ActionResponse, error) {
	return e.beginTransfer(path, download.StatusPaused)
}

func (e *Engine) beginTransfer(path string, requiredStatus download.Status) (download.ActionResponse, error) {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()

	rec, err := e.store.FindByPath(path)
	if err != nil {
		return download.ActionResponse{}, err
	}

	if rec.Status != requiredStatus {
		return download.NewActionResponseExpecting(rec, download.StatusInProgress), nil
	}

	started := rec.WithStatus(download.StatusInProgress)
	if err := e.store.Update(started, true); err != nil {
		return download.ActionResponse{}, err
	}
	e.bus.Emit(events.Changed{Download: started})
	e.spawnWorkerLocked(started)

	return download.NewActionResponse(started), nil
}

// Pause stops an in-progress download's transfer. The temp file is kept in
// place so a later Resume can continue it. Calling Pause on a download not
// InProgress is not an error; it returns the current state unchanged, with
// IsExpectedStatus reporting whether that state is already Paused.
func (e *Engine) Pause(path string) (download.ActionResponse, error) {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()

	rec, err := e.store.FindByPath(path)
	if err != nil {
		return download.ActionResponse{}, err
	}

	if rec.Status != download.StatusInProgress {
		return download.NewActionResponseExpecting(rec, download.StatusPaused), nil
	}

	paused := rec.WithStatus(download.StatusPaused)
	// The resume hint is opportunistic bookkeeping only: the Range request
	// against the <path>.download temp file is what actually resumes the
	// transfer. Nothing reads this ID back; it exists so a future cache
	// layer keyed on it has somewhere to hang an artifact.
	paused.ResumeHint = &download.ResumeHint{ID: uuid.NewString()}
	if err := e.store.Update(paused, true); err != nil {
		return download.ActionResponse{}, err
	}
	e.bus.Emit(events.Changed{Download: paused})

	// The status flip above happens-before this: the worker polls the
	// Store's status on its own next progress tick and will see Paused and
	// return on its own, leaving the temp file intact.
	delete(e.workers, path)

	return download.NewActionResponse(paused), nil
}

// Cancel stops and forgets a download entirely: its Record is removed from
// the Store and its partial temp file, if any, is deleted. A download that
// was already cancelled or has completed is no longer tracked, so Cancel
// on its path returns download.ErrNotFound. A Record in any status other
// than Idle, InProgress or Paused is returned unchanged, with
// IsExpectedStatus reporting whether it is already Cancelled.
func (e *Engine) Cancel(path string) (download.ActionResponse, error) {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()

	rec, err := e.store.FindByPath(path)
	if err != nil {
		return download.ActionResponse{}, err
	}

	switch rec.Status {
	case download.StatusIdle, download.StatusInProgress, download.StatusPaused:
		if err := e.store.Remove(path); err != nil {
			return download.ActionResponse{}, err
		}

		tempPath := path + worker.DownloadSuffix
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			e.logger.Debug("cancel: temp file was not found or could not be deleted", "file", logging.Filename(path), "error", err)
		}

		if h, ok := e.workers[path]; ok {
			h.cancel()
		}
		delete(e.workers, path)

		cancelled := rec.WithStatus(download.StatusCancelled)
		e.bus.Emit(events.Changed{Download: cancelled})
		e.logger.Info("download cancelled", "file", logging.Filename(path))
		return download.NewActionResponse(cancelled), nil
	default:
		return download.NewActionResponseExpecting(rec, download.StatusCancelled), nil
	}
}

// spawnWorkerLocked starts a Transfer goroutine for rec. Callers must hold
// workersMu.
func (e *Engine) spawnWorkerLocked(rec download.Record) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.workers[rec.Path] = &workerHandle{cancel: cancel, done: done}

	tr := worker.New(e.cfg.ConnectTimeout, e.cfg.IdleTimeout, e.cfg.ProgressThresholdPercent, worker.Callbacks{
		CheckStatus: e.checkStatus,
		OnProgress:  e.onProgress,
		OnComplete:  e.onComplete,
		OnError:     e.onError,
	})

	go func() {
		defer close(done)
		tr.Run(ctx, rec)
	}()
}

func (e *Engine) checkStatus(path string) (download.Status, bool) {
	rec, err := e.store.FindByPath(path)
	if err != nil {
		return download.StatusUnknown, false
	}
	return rec.Status, true
}

func (e *Engine) onProgress(path string, progress float64) {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()

	rec, err := e.store.FindByPath(path)
	if err != nil || rec.Status != download.StatusInProgress {
		return
	}
	updated := rec.WithProgress(progress)
	if err := e.store.Update(updated, false); err != nil {
		e.logger.Warn("failed to persist progress", "file", logging.Filename(path), "error", err)
		return
	}
	e.bus.Emit(events.Changed{Download: updated})
}

func (e *Engine) onComplete(path string) {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()

	delete(e.workers, path)

	rec, err := e.store.FindByPath(path)
	if err != nil {
		// Already removed by a racing Cancel; nothing left to report.
		return
	}

	completed := rec.WithStatus(download.StatusCompleted)
	if err := e.store.Remove(path); err != nil {
		e.logger.Warn("failed to remove completed record", "file", logging.Filename(path), "error", err)
	}
	e.bus.Emit(events.Changed{Download: completed})
	e.logger.Info("download completed", "file", logging.Filename(path))
}

func (e *Engine) onError(path string, transferErr error) {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()

	delete(e.workers, path)
	e.logger.Error("transfer failed", "file", logging.Filename(path), "error", transferErr)

	rec, err := e.store.FindByPath(path)
	if err != nil {
		// Already removed by a racing Cancel.
		return
	}
	if err := os.Remove(path + worker.DownloadSuffix); err != nil && !os.IsNotExist(err) {
		e.logger.Debug("transfer failed: temp file could not be deleted", "file", logging.Filename(path), "error", err)
	}
	if err := e.store.Remove(path); err != nil {
		e.logger.Warn("failed to remove failed record", "file", logging.Filename(path), "error", err)
		return
	}

	cancelled := rec.WithStatus(download.StatusCancelled)
	e.bus.Emit(events.Changed{Download: cancelled})
}

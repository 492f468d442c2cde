// Package worker implements the Transfer worker: the goroutine that
// actually streams one HTTP response to disk, resuming via Range headers
// and reporting progress back through a small callback seam instead of
// touching the Store or EventBus directly.
package worker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"downloadengine/internal/download"
)

// DownloadSuffix is appended to a Record's Path to name the partial file a
// Transfer writes into while a download is in progress.
const DownloadSuffix = ".download"

// bufferSize is the copy-loop chunk size. Progress is reported on a
// percent-of-total threshold rather than a wall-clock interval, so an 8 KiB
// buffer keeps reads frequent enough for that threshold to be checked
// promptly without adding meaningful per-chunk overhead.
const bufferSize = 8 * 1024

// Callbacks lets a Transfer report outcomes without importing the engine
// package (which owns the Store and EventBus) and without writing to the
// Store itself — every write funnels back through the Engine so per-path
// ordering stays centralized in one mutex.
type Callbacks struct {
	// CheckStatus returns the authoritative current status for path. found
	// is false if the Record has been removed from the Store entirely
	// (e.g. a concurrent Cancel already deleted it).
	CheckStatus func(path string) (status download.Status, found bool)
	// OnProgress is invoked whenever accumulated progress has advanced by
	// at least the configured threshold and the record is still InProgress.
	OnProgress func(path string, progress float64)
	// OnComplete is invoked once the temp file has been renamed into place.
	OnComplete func(path string)
	// OnError is invoked on any unrecoverable transfer failure. For a
	// failure while the body is being copied, the Transfer removes the temp
	// file right after this returns; failures before the copy starts, and a
	// failed final rename, leave the temp file in place.
	OnError func(path string, err error)
}

// Transfer streams a single Record's URL to its Path, resuming from any
// existing <path>.download partial file.
type Transfer struct {
	client              *http.Client
	cb                  Callbacks
	idleTimeout         time.Duration
	progressThresholdPt float64
}

// New builds a Transfer. connectTimeout bounds dialing and response-header
// receipt; idleTimeout bounds the gap between successive body reads.
// progressThresholdPercent is the minimum percentage-point delta before a
// progress update is reported.
func New(connectTimeout, idleTimeout time.Duration, progressThresholdPercent float64, cb Callbacks) *Transfer {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
			ResponseHeaderTimeout: connectTimeout,
		},
	}
	return &Transfer{
		client:              client,
		cb:                  cb,
		idleTimeout:         idleTimeout,
		progressThresholdPt: progressThresholdPercent,
	}
}

// Run performs the transfer for rec. It blocks until the transfer
// completes, fails, is paused, or is cancelled out from under it, and
// reports the outcome exclusively through the Callbacks given to New. Run
// never returns an error directly: every failure path goes through
// cb.OnError so the Engine can decide how to log and surface it.
func (t *Transfer) Run(ctx context.Context, rec download.Record) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tempPath := rec.Path + DownloadSuffix

	var downloadedSize int64
	if info, err := os.Stat(tempPath); err == nil {
		downloadedSize = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.URL, nil)
	if err != nil {
		t.cb.OnError(rec.Path, fmt.Errorf("worker: build request: %w", err))
		return
	}
	if downloadedSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", downloadedSize))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.cb.OnError(rec.Path, fmt.Errorf("worker: send request: %w", err))
		return
	}
	defer resp.Body.Close()

	if downloadedSize > 0 && resp.StatusCode != http.StatusPartialContent {
		t.cb.OnError(rec.Path, fmt.Errorf("worker: server does not support partial downloads (status %d)", resp.StatusCode))
		return
	}
	if downloadedSize == 0 && resp.StatusCode != http.StatusOK {
		t.cb.OnError(rec.Path, fmt.Errorf("worker: unexpected status %d", resp.StatusCode))
		return
	}

	var totalSize int64
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if v, parseErr := strconv.ParseInt(cl, 10, 64); parseErr == nil {
			totalSize = v + downloadedSize
		}
	}

	if dir := filepath.Dir(tempPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.cb.OnError(rec.Path, fmt.Errorf("worker: create output directory: %w", err))
			return
		}
	}

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.cb.OnError(rec.Path, fmt.Errorf("worker: open temp file: %w", err))
		return
	}

	idleTimer := time.AfterFunc(t.idleTimeout, cancel)
	defer idleTimer.Stop()

	downloaded := downloadedSize
	lastEmitted := 0.0
	buf := make([]byte, bufferSize)

	for {
		select {
		case <-ctx.Done():
			file.Close()
			t.cb.OnError(rec.Path, ctx.Err())
			os.Remove(tempPath)
			return
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			idleTimer.Reset(t.idleTimeout)
			if _, werr := file.Write(buf[:n]); werr != nil {
				file.Close()
				t.cb.OnError(rec.Path, fmt.Errorf("worker: write temp file: %w", werr))
				os.Remove(tempPath)
				return
			}
			downloaded += int64(n)
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			file.Close()
			t.cb.OnError(rec.Path, fmt.Errorf("worker: read response body: %w", readErr))
			os.Remove(tempPath)
			return
		}

		progress := 0.0
		if totalSize > 0 {
			progress = float64(downloaded) / float64(totalSize) * 100
		}
		if progress-lastEmitted < t.progressThresholdPt {
			continue
		}
		lastEmitted = progress

		status, found := t.cb.CheckStatus(rec.Path)
		if !found {
			file.Close()
			return
		}
		switch status {
		case download.StatusInProgress:
			t.cb.OnProgress(rec.Path, progress)
		case download.StatusPaused:
			file.Close()
			return
		default:
			file.Close()
			return
		}
	}

	if err := file.Sync(); err != nil {
		file.Close()
		t.cb.OnError(rec.Path, fmt.Errorf("worker: sync temp file: %w", err))
		os.Remove(tempPath)
		return
	}
	if err := file.Close(); err != nil {
		t.cb.OnError(rec.Path, fmt.Errorf("worker: close temp file: %w", err))
		os.Remove(tempPath)
		return
	}
	if err := os.Rename(tempPath, rec.Path); err != nil {
		t.cb.OnError(rec.Path, fmt.Errorf("worker: rename temp file: %w", err))
		return
	}
	t.cb.OnComplete(rec.Path)
}

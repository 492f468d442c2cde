package engine

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"downloadengine/internal/download"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(Config{
		DataDir:                  t.TempDir(),
		Logger:                   testLogger(t),
		ConnectTimeout:           2 * time.Second,
		IdleTimeout:              2 * time.Second,
		ProgressThresholdPercent: 1.0,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// waitForStatus polls e.Get until it observes want or the deadline passes.
func waitForStatus(t *testing.T, e *Engine, path string, want download.Status) download.Record {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var last download.Record
	for time.Now().Before(deadline) {
		rec, err := e.Get(path)
		require.NoError(t, err)
		last = rec
		if rec.Status == want {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s, last seen %+v", want, last)
	return last
}

func TestOpenFailsWhenDataDirAlreadyLocked(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(Config{DataDir: dir, Logger: testLogger(t)})
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(Config{DataDir: dir, Logger: testLogger(t)})
	assert.Error(t, err)
}

func TestCreateGetList(t *testing.T) {
	e := testEngine(t)
	path := filepath.Join(t.TempDir(), "a.bin")

	resp, err := e.Create(path, "http://example.com/a.bin")
	require.NoError(t, err)
	assert.True(t, resp.IsExpectedStatus)
	assert.Equal(t, download.StatusIdle, resp.Download.Status)

	rec, err := e.Get(path)
	require.NoError(t, err)
	assert.Equal(t, download.StatusIdle, rec.Status)

	list := e.List()
	require.Len(t, list, 1)
	assert.Equal(t, path, list[0].Path)
}

func TestGetUnknownPathReturnsPending(t *testing.T) {
	e := testEngine(t)
	rec, err := e.Get("/tmp/never-created.bin")
	require.NoError(t, err)
	assert.Equal(t, download.StatusPending, rec.Status)
}

func TestCreateTwiceIsIdempotent(t *testing.T) {
	e := testEngine(t)
	path := filepath.Join(t.TempDir(), "a.bin")

	first, err := e.Create(path, "http://example.com/a.bin")
	require.NoError(t, err)

	second, err := e.Create(path, "http://example.com/other.bin")
	require.NoError(t, err)
	assert.Equal(t, first.Download.URL, second.Download.URL, "second create must not overwrite the original URL")
}

func TestCreateRejectsInvalidPathAndURL(t *testing.T) {
	e := testEngine(t)

	_, err := e.Create("relative/path.bin", "http://example.com/a.bin")
	assert.Error(t, err)

	_, err = e.Create(filepath.Join(t.TempDir(), "a.bin"), "ftp://example.com/a.bin")
	assert.Error(t, err)
}

func TestStartUnknownPathFails(t *testing.T) {
	e := testEngine(t)
	_, err := e.Start("/tmp/never-created.bin")
	assert.ErrorIs(t, err, download.ErrNotFound)
}

func TestHappyPathCompletesDownload(t *testing.T) {
	body := []byte("the quick brown fox jumps over the lazy dog, repeated many times\n")
	full := make([]byte, 0, len(body)*200)
	for i := 0; i < 200; i++ {
		full = append(full, body...)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(full)
	}))
	defer srv.Close()

	e := testEngine(t)
	destDir := t.TempDir()
	path := filepath.Join(destDir, "fox.txt")

	_, err := e.Create(path, srv.URL)
	require.NoError(t, err)

	_, err = e.Start(path)
	require.NoError(t, err)

	waitForCompletion(t, e, path)

	got, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, full, got)
}

// waitForCompletion polls until the Record disappears from the Store
// (completion removes it) or the deadline passes.
func waitForCompletion(t *testing.T, e *Engine, path string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := e.Get(path)
		require.NoError(t, err)
		if rec.Status == download.StatusPending {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for download to complete")
}

func TestPauseThenResumeCompletesDownload(t *testing.T) {
	full := make([]byte, 256*1024)
	for i := range full {
		full[i] = byte(i % 256)
	}

	releaseRest := make(chan struct{})
	var releasedOnce sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		flusher, _ := w.(http.Flusher)

		var start int
		if rangeHeader != "" {
			var offset int64
			_, _ = fmt.Sscanf(rangeHeader, "bytes=%d-", &offset)
			start = int(offset)
			w.Header().Set("Content-Length", strconv.Itoa(len(full)-start))
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.Header().Set("Content-Length", strconv.Itoa(len(full)))
		}

		mid := start + (len(full)-start)/2
		w.Write(full[start:mid])
		if flusher != nil {
			flusher.Flush()
		}

		if rangeHeader == "" {
			<-releaseRest
		}

		w.Write(full[mid:])
		if flusher != nil {
			flusher.Flush()
		}
	}))
	defer srv.Close()

	e := testEngine(t)
	path := filepath.Join(t.TempDir(), "big.bin")

	_, err := e.Create(path, srv.URL)
	require.NoError(t, err)
	_, err = e.Start(path)
	require.NoError(t, err)

	// Wait for some progress, then pause.
	deadline := time.Now().Add(3 * time.Second)
	for {
		rec, gerr := e.Get(path)
		require.NoError(t, gerr)
		if rec.Progress > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for initial progress")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err = e.Pause(path)
	require.NoError(t, err)
	waitForStatus(t, e, path, download.StatusPaused)

	releasedOnce.Do(func() { close(releaseRest) })

	_, statErr := os.Stat(path + ".download")
	assert.NoError(t, statErr, "temp file must survive a pause")

	_, err = e.Resume(path)
	require.NoError(t, err)

	waitForCompletion(t, e, path)

	got, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, full, got)
}

func TestCancelRemovesRecordAndTempFile(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "20")
		w.Write([]byte("0123456789"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-block
		w.Write([]byte("9876543210"))
	}))
	defer srv.Close()

	e := testEngine(t)
	path := filepath.Join(t.TempDir(), "c.bin")

	_, err := e.Create(path, srv.URL)
	require.NoError(t, err)
	_, err = e.Start(path)
	require.NoError(t, err)

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, statErr := os.Stat(path + ".download"); statErr == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for temp file to appear")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := e.Cancel(path)
	require.NoError(t, err)
	assert.Equal(t, download.StatusCancelled, resp.Download.Status)

	rec, err := e.Get(path)
	require.NoError(t, err)
	assert.Equal(t, download.StatusPending, rec.Status)

	_, statErr := os.Stat(path + ".download")
	assert.True(t, os.IsNotExist(statErr))

	close(block)
}

func TestResumeFailsWhenServerIgnoresRangeRecordIsDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ignoring your range header entirely"))
	}))
	defer srv.Close()

	e := testEngine(t)
	path := filepath.Join(t.TempDir(), "d.bin")
	require.NoError(t, os.WriteFile(path+".download", []byte("partial-data"), 0o644))

	_, err := e.Create(path, srv.URL)
	require.NoError(t, err)

	// Simulate the reconciliation that would have marked this Paused after
	// an unclean shutdown.
	rec, err := e.Get(path)
	require.NoError(t, err)
	paused := rec.WithProgress(10).WithStatus(download.StatusPaused)
	require.NoError(t, e.store.Update(paused, true))

	_, err = e.Resume(path)
	require.NoError(t, err)

	deadline := time.Now().Add(3 * time.Second)
	for {
		rec, gerr := e.Get(path)
		require.NoError(t, gerr)
		if rec.Status == download.StatusPending {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for failed transfer to be dropped from the store")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReconcileSplitsStaleInProgressByProgress(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "downloads.json")
	os.WriteFile(store, []byte(`[
		{"url":"http://example.com/a","path":"/tmp/a","progress":0,"status":"inProgress"},
		{"url":"http://example.com/b","path":"/tmp/b","progress":42,"status":"inProgress"}
	]`), 0o644)

	e, err := Open(Config{DataDir: dir, Logger: testLogger(t)})
	require.NoError(t, err)
	defer e.Close()

	a, err := e.Get("/tmp/a")
	require.NoError(t, err)
	assert.Equal(t, download.StatusIdle, a.Status)

	b, err := e.Get("/tmp/b")
	require.NoError(t, err)
	assert.Equal(t, download.StatusPaused, b.Status)
}

func TestSubscribeReceivesChangedEvents(t *testing.T) {
	e := testEngine(t)
	ch, unsubscribe := e.Subscribe()
	defer unsubscribe()

	path := filepath.Join(t.TempDir(), "e.bin")
	_, err := e.Create(path, "http://example.com/e.bin")
	require.NoError(t, err)

	select {
	case msg := <-ch:
		assert.Equal(t, path, msg.Download.Path)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Create event")
	}
}

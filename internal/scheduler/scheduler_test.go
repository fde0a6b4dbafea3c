package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"zoe/internal/cache"
	"zoe/internal/index"
	"zoe/internal/sliceset"
	"zoe/internal/targetfile"
	"zoe/internal/transport"
	"zoe/internal/worker"
)

func rangeServer(t *testing.T, content []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, end := int64(0), int64(len(content))-1
		if rng := r.Header.Get("Range"); rng != "" {
			var s, e int64
			if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &s, &e); err == nil {
				start, end = s, e
			}
		}
		if end >= int64(len(content)) {
			end = int64(len(content)) - 1
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(content)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(content[start : end+1])
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newHarness(t *testing.T, content []byte, slices []sliceset.Slice) (*Scheduler, *sliceset.Table, string) {
	t.Helper()
	dir := t.TempDir()
	tf, err := targetfile.Create(filepath.Join(dir, "data.tmp"), int64(len(content)))
	if err != nil {
		t.Fatalf("targetfile.Create: %v", err)
	}
	t.Cleanup(func() { tf.Close() })

	table := sliceset.NewTable(slices, int64(len(content)))
	store := index.New(filepath.Join(dir, "target"))
	updater := index.NewUpdater(store, 0, &index.Record{TotalSize: int64(len(content)), Slices: table.Snapshot()})
	srv := rangeServer(t, content)

	sched := New(transport.NewHTTPTransport(), srv.URL, table, func(idx int) *cache.SliceCache {
		return cache.New(256, tf, table, idx, updater)
	}, Options{ThreadNum: 4})
	return sched, table, srv.URL
}

func evenSlices(total, count int64) []sliceset.Slice {
	base := total / count
	var out []sliceset.Slice
	var pos int64
	for i := int64(0); i < count; i++ {
		size := base
		if i == count-1 {
			size = total - pos
		}
		out = append(out, sliceset.Slice{Begin: pos, End: pos + size, Status: sliceset.Pending})
		pos += size
	}
	return out
}

func TestSchedulerRunCompletesAllSlices(t *testing.T) {
	content := bytes.Repeat([]byte("z"), 4000)
	sched, table, _ := newHarness(t, content, evenSlices(4000, 4))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sched.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !table.AllCompleted() {
		t.Fatalf("expected all slices Completed, got %+v", table.Snapshot())
	}
	if got := table.Downloaded(); got != int64(len(content)) {
		t.Errorf("Downloaded() = %d, want %d", got, len(content))
	}
}

func TestSchedulerStopConvergesToTerminalStates(t *testing.T) {
	content := bytes.Repeat([]byte("q"), 20000)
	sched, table, _ := newHarness(t, content, evenSlices(20000, 20))
	// ThreadNum defaults to 4 in newHarness; keep it low relative to slice
	// count so most slices are still Pending when Stop lands.

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(context.Background())
	}()
	sched.Stop()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return promptly after Stop")
	}

	if !table.AllTerminal() {
		t.Fatalf("every slice should reach a terminal state after Stop, got %+v", table.Snapshot())
	}
}

func TestSchedulerPauseBlocksProgressUntilResume(t *testing.T) {
	content := bytes.Repeat([]byte("p"), 200)
	sched, table, _ := newHarness(t, content, []sliceset.Slice{{Begin: 0, End: int64(len(content)), Status: sliceset.Pending}})

	sched.Pause()
	done := make(chan error, 1)
	go func() { done <- sched.Run(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Run should not complete while paused")
	case <-time.After(100 * time.Millisecond):
	}

	sched.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not complete after Resume")
	}
	if !table.AllCompleted() {
		t.Error("expected the single slice to complete after Resume")
	}
}

func TestCheckMinSpeedStopsAfterSustainedShortfall(t *testing.T) {
	content := []byte("x")
	table := sliceset.NewTable([]sliceset.Slice{{Begin: 0, End: 1, Status: sliceset.Completed, Downloaded: 1}}, 1)
	_ = content
	sched := &Scheduler{
		table:    table,
		cancelCh: make(chan struct{}),
		opts: Options{
			MinDownloadSpeed: 1000,
			MinSpeedDuration: 20 * time.Millisecond,
		},
	}

	var lowSince time.Time
	sched.checkMinSpeed(2000, &lowSince) // above floor: no-op
	if !lowSince.IsZero() {
		t.Fatal("checkMinSpeed should not arm the watchdog while above the floor")
	}

	sched.checkMinSpeed(10, &lowSince) // first below-floor sample arms the timer
	if lowSince.IsZero() {
		t.Fatal("checkMinSpeed should record the first below-floor timestamp")
	}
	select {
	case <-sched.cancelCh:
		t.Fatal("Stop should not fire before MinSpeedDuration has elapsed")
	default:
	}

	time.Sleep(25 * time.Millisecond)
	sched.checkMinSpeed(10, &lowSince) // still below floor, duration now elapsed
	select {
	case <-sched.cancelCh:
	default:
		t.Fatal("checkMinSpeed should have called Stop after the sustained shortfall")
	}
}

func TestCheckEffectiveURLDetectsDrift(t *testing.T) {
	sched := &Scheduler{effURL: "http://origin.example/file"}

	if err := sched.checkEffectiveURL("http://origin.example/file"); err != nil {
		t.Errorf("checkEffectiveURL with the baseline URL = %v, want nil", err)
	}
	err := sched.checkEffectiveURL("http://mirror.example/file")
	if err == nil {
		t.Fatal("checkEffectiveURL with a different URL should return an error")
	}
	if !errors.Is(err, worker.ErrRedirectedURLDifferent) {
		t.Errorf("checkEffectiveURL error = %v, want wrapping ErrRedirectedURLDifferent", err)
	}
}

func TestCheckMinSpeedDisabledWhenUnconfigured(t *testing.T) {
	sched := &Scheduler{cancelCh: make(chan struct{}), opts: Options{}}
	var lowSince time.Time
	sched.checkMinSpeed(0, &lowSince)
	select {
	case <-sched.cancelCh:
		t.Fatal("checkMinSpeed should be a no-op when MinDownloadSpeed/MinSpeedDuration are unset")
	default:
	}
}

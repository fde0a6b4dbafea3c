package worker

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"zoe/internal/cache"
	"zoe/internal/index"
	"zoe/internal/sliceset"
	"zoe/internal/targetfile"
	"zoe/internal/transport"
)

var errTransient = errors.New("simulated transient failure")

// fakeTransport serves fixed content out of memory and can be told to fail
// the first N attempts with a transient error before succeeding, mirroring
// what the retry loop in Run needs to exercise.
type fakeTransport struct {
	content      []byte
	failTimes    int
	attempts     int
	permanent    bool
	effectiveURL string
}

func (f *fakeTransport) Probe(ctx context.Context, url string, opts transport.ProbeOptions) (transport.Metadata, error) {
	return transport.Metadata{TotalSize: int64(len(f.content)), AcceptsRanges: true}, nil
}

func (f *fakeTransport) Fetch(ctx context.Context, url string, rng transport.ByteRange, sink io.Writer, controls transport.Controls, opts transport.FetchOptions) transport.FetchResult {
	f.attempts++
	if f.attempts <= f.failTimes {
		cause := transport.TransientError
		if f.permanent {
			cause = transport.PermanentError
		}
		return transport.FetchResult{Cause: cause, Err: errTransient}
	}
	end := rng.End
	if end < 0 || end > int64(len(f.content)) {
		end = int64(len(f.content))
	}
	chunk := f.content[rng.Begin:end]
	if _, err := sink.Write(chunk); err != nil {
		return transport.FetchResult{Cause: transport.TransientError, Err: err}
	}
	cause := transport.EOF
	if rng.End >= 0 {
		cause = transport.RangeComplete
	}
	return transport.FetchResult{BytesWritten: int64(len(chunk)), Cause: cause, EffectiveURL: f.effectiveURL}
}

func newWorkerHarness(t *testing.T, total int64) (*sliceset.Table, *cache.SliceCache, string) {
	t.Helper()
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.tmp")
	tf, err := targetfile.Create(dataPath, total)
	if err != nil {
		t.Fatalf("targetfile.Create: %v", err)
	}
	t.Cleanup(func() { tf.Close() })

	table := sliceset.NewTable([]sliceset.Slice{{Begin: 0, End: total, Status: sliceset.Pending}}, total)
	store := index.New(filepath.Join(dir, "target"))
	updater := index.NewUpdater(store, 0, &index.Record{TotalSize: total, Slices: table.Snapshot()})
	sc := cache.New(1024, tf, table, 0, updater)
	return table, sc, dataPath
}

func TestRunCompletesOnFirstTry(t *testing.T) {
	content := []byte("hello world, this is the slice content")
	table, sc, _ := newWorkerHarness(t, int64(len(content)))
	tr := &fakeTransport{content: content}

	out := Run(context.Background(), tr, "http://example/x", table, 0, sc, transport.FetchOptions{}, nil, make(chan struct{}), nil, nil)
	if out.Status != sliceset.Completed {
		t.Fatalf("Run status = %v, want Completed (err=%v)", out.Status, out.Err)
	}
	if got := table.Get(0).Downloaded; got != int64(len(content)) {
		t.Errorf("Downloaded = %d, want %d", got, len(content))
	}
}

func TestRunRetriesTransientThenSucceeds(t *testing.T) {
	content := []byte("retry me please")
	table, sc, _ := newWorkerHarness(t, int64(len(content)))
	tr := &fakeTransport{content: content, failTimes: 2}

	out := Run(context.Background(), tr, "http://example/x", table, 0, sc, transport.FetchOptions{}, nil, make(chan struct{}), nil, nil)
	if out.Status != sliceset.Completed {
		t.Fatalf("Run status = %v, want Completed", out.Status)
	}
	if tr.attempts != 3 {
		t.Errorf("attempts = %d, want 3 (2 failures + 1 success)", tr.attempts)
	}
}

func TestRunGivesUpAfterMaxRetries(t *testing.T) {
	content := []byte("never works")
	table, sc, _ := newWorkerHarness(t, int64(len(content)))
	tr := &fakeTransport{content: content, failTimes: maxRetries + 5}

	out := Run(context.Background(), tr, "http://example/x", table, 0, sc, transport.FetchOptions{}, nil, make(chan struct{}), nil, nil)
	if out.Status != sliceset.Failed {
		t.Fatalf("Run status = %v, want Failed", out.Status)
	}
	if tr.attempts != maxRetries {
		t.Errorf("attempts = %d, want %d", tr.attempts, maxRetries)
	}
}

func TestRunStopsImmediatelyOnPermanentError(t *testing.T) {
	content := []byte("permanent")
	table, sc, _ := newWorkerHarness(t, int64(len(content)))
	tr := &fakeTransport{content: content, failTimes: 1, permanent: true}

	Run(context.Background(), tr, "http://example/x", table, 0, sc, transport.FetchOptions{}, nil, make(chan struct{}), nil, nil)
	if tr.attempts != 1 {
		t.Errorf("attempts = %d, want 1 (PermanentError should not retry)", tr.attempts)
	}
}

func TestRunCanceledBeforeStart(t *testing.T) {
	content := []byte("canceled")
	table, sc, _ := newWorkerHarness(t, int64(len(content)))
	tr := &fakeTransport{content: content, failTimes: 1}
	cancel := make(chan struct{})
	close(cancel)

	out := Run(context.Background(), tr, "http://example/x", table, 0, sc, transport.FetchOptions{}, nil, cancel, nil, nil)
	if out.Status != sliceset.Canceled {
		t.Fatalf("Run status = %v, want Canceled", out.Status)
	}
}

func TestRunFailsImmediatelyOnEffectiveURLDrift(t *testing.T) {
	content := []byte("drifted content")
	table, sc, _ := newWorkerHarness(t, int64(len(content)))
	tr := &fakeTransport{content: content, effectiveURL: "http://mirror.example/x"}

	checkEffectiveURL := func(got string) error {
		if got != "http://example/x" {
			return errors.New("effective URL drifted")
		}
		return nil
	}

	out := Run(context.Background(), tr, "http://example/x", table, 0, sc, transport.FetchOptions{}, nil, make(chan struct{}), nil, checkEffectiveURL)
	if out.Status != sliceset.Failed {
		t.Fatalf("Run status = %v, want Failed", out.Status)
	}
	if tr.attempts != 1 {
		t.Errorf("attempts = %d, want 1 (drift should not retry)", tr.attempts)
	}
}

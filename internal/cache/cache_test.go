package cache

import (
	"path/filepath"
	"testing"

	"zoe/internal/index"
	"zoe/internal/sliceset"
	"zoe/internal/targetfile"
)

func TestQuotaSplitsEvenlyWithFloor(t *testing.T) {
	if got := Quota(1000, 4); got != 250 {
		t.Errorf("Quota(1000, 4) = %d, want 250", got)
	}
	if got := Quota(100, 10); got != MinQuota {
		t.Errorf("Quota(100, 10) = %d, want the MinQuota floor %d", got, MinQuota)
	}
	if got := Quota(1000, 0); got != 1000 {
		t.Errorf("Quota(1000, 0) = %d, want 1000 (parallelism clamped to 1)", got)
	}
}

func newTestCache(t *testing.T, quota int64) (*SliceCache, *sliceset.Table, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.tmp")
	tf, err := targetfile.Create(path, 100)
	if err != nil {
		t.Fatalf("targetfile.Create: %v", err)
	}
	t.Cleanup(func() { tf.Close() })

	table := sliceset.NewTable([]sliceset.Slice{{Begin: 0, End: 100, Status: sliceset.Pending}}, 100)
	store := index.New(filepath.Join(dir, "target"))
	rec := &index.Record{Slices: table.Snapshot(), TotalSize: 100}
	updater := index.NewUpdater(store, 0, rec)

	return New(quota, tf, table, 0, updater), table, path
}

func TestWriteBelowQuotaDoesNotFlush(t *testing.T) {
	c, table, _ := newTestCache(t, 1024)
	n, err := c.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write = (%d, %v), want (5, nil)", n, err)
	}
	if got := table.Get(0).Downloaded; got != 0 {
		t.Errorf("Downloaded = %d before quota reached, want 0", got)
	}
	if c.Buffered() != 5 {
		t.Errorf("Buffered() = %d, want 5", c.Buffered())
	}
}

func TestWriteAtOrAboveQuotaFlushesSynchronously(t *testing.T) {
	c, table, _ := newTestCache(t, 5)
	if _, err := c.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := table.Get(0).Downloaded; got != 5 {
		t.Errorf("Downloaded = %d after crossing quota, want 5", got)
	}
	if c.Buffered() != 0 {
		t.Errorf("Buffered() = %d after flush, want 0", c.Buffered())
	}
}

func TestFlushFinalRequestsUpdateEvenWithEmptyBuffer(t *testing.T) {
	c, _, _ := newTestCache(t, 1024)
	if err := c.Flush(true); err != nil {
		t.Fatalf("Flush(true) on empty buffer: %v", err)
	}
}

func TestDiscardDropsBufferedBytes(t *testing.T) {
	c, table, _ := newTestCache(t, 1024)
	c.Write([]byte("partial"))
	c.Discard()
	if c.Buffered() != 0 {
		t.Errorf("Buffered() = %d after Discard, want 0", c.Buffered())
	}
	if got := table.Get(0).Downloaded; got != 0 {
		t.Errorf("Downloaded = %d after Discard, want 0 (never written)", got)
	}
}

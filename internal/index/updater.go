package index

import (
	"sync"
	"time"

	"zoe/internal/sliceset"
)

// Updater is the single writer of the index file. Workers post update
// requests through Request; Updater coalesces them so a Save happens at
// most once per flushInterval, except immediately after any Request marked
// urgent (a slice transitioning to Completed or Failed, per spec §4.4).
type Updater struct {
	store         *Store
	flushInterval time.Duration

	mu        sync.Mutex
	pending   bool
	lastFlush time.Time
	rec       *Record
}

// NewUpdater constructs an Updater seeded with the record to keep updated.
func NewUpdater(store *Store, flushInterval time.Duration, rec *Record) *Updater {
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &Updater{store: store, flushInterval: flushInterval, rec: rec}
}

// Request updates the in-memory record from the slice table and persists
// it if enough time elapsed since the last flush, or immediately if urgent.
func (u *Updater) Request(table *sliceset.Table, urgent bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rec.Slices = table.Snapshot()
	u.rec.TotalSize = table.Total()
	u.rec.UpdatedAt = time.Now().UnixMilli()

	if !urgent && time.Since(u.lastFlush) < u.flushInterval {
		u.pending = true
		return nil
	}
	if err := u.store.Save(u.rec); err != nil {
		return err
	}
	u.lastFlush = time.Now()
	u.pending = false
	return nil
}

// FlushIfPending forces a save when a coalesced update is outstanding. The
// Session calls it once, after the scheduler's run returns.
func (u *Updater) FlushIfPending() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.pending {
		return nil
	}
	if err := u.store.Save(u.rec); err != nil {
		return err
	}
	u.lastFlush = time.Now()
	u.pending = false
	return nil
}

// Record returns a copy of the current in-memory record.
func (u *Updater) Record() Record {
	u.mu.Lock()
	defer u.mu.Unlock()
	return *u.rec
}

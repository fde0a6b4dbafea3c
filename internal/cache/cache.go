// Package cache is the bounded, per-slice write-back buffer of spec §4.5.
// The teacher has no equivalent — it writes each chunk straight through to
// its own *.partN file — so this package is new, but reuses the teacher's
// buffer-sizing constant (utils.DefaultBufferSize, 8MiB) as the shape of
// the per-slice unit the overall disk_cache_size quota is divided into.
package cache

import (
	"fmt"

	"zoe/internal/index"
	"zoe/internal/sliceset"
	"zoe/internal/targetfile"
)

// DefaultSize is the default disk_cache_size (spec §6), 20MiB.
const DefaultSize int64 = 20 * 1024 * 1024

// MinQuota is the smallest per-slice quota handed out even when the
// configured budget divided by parallelism would round to less.
const MinQuota int64 = 64 * 1024

// Quota computes the per-slice buffer size: disk_cache_size split evenly
// across up to `parallelism` concurrently active slices (spec §4.5).
func Quota(totalSize int64, parallelism int) int64 {
	if parallelism < 1 {
		parallelism = 1
	}
	q := totalSize / int64(parallelism)
	if q < MinQuota {
		q = MinQuota
	}
	return q
}

// SliceCache buffers one slice's incoming bytes and flushes coalesced
// regions to the target file, updating the shared slice table and
// requesting an index update on every flush (spec §4.5).
type SliceCache struct {
	quota   int64
	buf     []byte
	file    *targetfile.File
	table   *sliceset.Table
	idx     int
	updater *index.Updater
}

// New constructs a SliceCache for slice idx of table, writing through file
// and posting update requests through updater.
func New(quota int64, file *targetfile.File, table *sliceset.Table, idx int, updater *index.Updater) *SliceCache {
	return &SliceCache{quota: quota, file: file, table: table, idx: idx, updater: updater}
}

// Write implements io.Writer; it is the sink passed to transport.Fetch.
// It flushes synchronously once the buffer reaches quota, bounding bytes
// in flight for this slice (spec §4.5, §5).
func (c *SliceCache) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	if int64(len(c.buf)) >= c.quota {
		if err := c.Flush(false); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush writes any buffered bytes to the target file at the slice's
// current begin+downloaded offset, advances Downloaded, and requests an
// index update. final marks the flush as urgent (slice reached a terminal
// state), per the index store's coalescing rule (spec §4.4).
func (c *SliceCache) Flush(final bool) error {
	if len(c.buf) == 0 {
		if final && c.updater != nil {
			return c.updater.Request(c.table, true)
		}
		return nil
	}
	sl := c.table.Get(c.idx)
	offset := sl.Begin + sl.Downloaded
	n := int64(len(c.buf))
	if err := c.file.WriteAt(offset, c.buf); err != nil {
		c.buf = c.buf[:0]
		c.table.Mutate(c.idx, func(s *sliceset.Slice) {
			s.Status = sliceset.Failed
			s.LastError = fmt.Errorf("cache: flush failed: %w", err)
		})
		if c.updater != nil {
			c.updater.Request(c.table, true)
		}
		return err
	}
	c.buf = c.buf[:0]
	c.table.Mutate(c.idx, func(s *sliceset.Slice) {
		s.Downloaded += n
	})
	if c.updater == nil {
		return nil
	}
	return c.updater.Request(c.table, final)
}

// Discard drops buffered bytes without writing them, used when a slice is
// canceled by a stop (not a pause) — spec §4.7 "on stop discard in-flight
// buffer".
func (c *SliceCache) Discard() {
	c.buf = c.buf[:0]
}

// Buffered returns the number of bytes currently held unflushed.
func (c *SliceCache) Buffered() int64 { return int64(len(c.buf)) }

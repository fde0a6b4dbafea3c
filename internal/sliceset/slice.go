// Package sliceset holds the Slice type and the mutex-protected table of
// slices shared between the planner, workers, cache and scheduler (spec §3,
// §5 "Slice table and aggregate counters").
package sliceset

import (
	"fmt"
	"sync"
)

// Status is a slice's position in its state machine (spec §4.7).
type Status int

const (
	Pending Status = iota
	Active
	Completed
	Failed
	Canceled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Slice is a half-open byte interval [Begin, End) of the resource, plus
// progress and state (spec §3).
type Slice struct {
	Begin      int64
	End        int64 // -1 means open-ended (unknown total size)
	Downloaded int64
	Status     Status
	Retries    int
	LastError  error
}

// Open reports whether the slice has no known upper bound yet.
func (s *Slice) Open() bool { return s.End < 0 }

// Remaining returns the number of bytes left to fetch, or -1 if open-ended.
func (s *Slice) Remaining() int64 {
	if s.Open() {
		return -1
	}
	return s.End - s.Begin - s.Downloaded
}

// NextOffset is the byte offset a worker should resume fetching from.
func (s *Slice) NextOffset() int64 { return s.Begin + s.Downloaded }

// Table is the mutex-guarded set of slices for one session plus the
// aggregate counters the scheduler reports as telemetry.
type Table struct {
	mu     sync.Mutex
	slices []Slice
	total  int64 // -1 if unknown
}

// NewTable takes ownership of the given slices (typically produced by the
// planner) and the resource's total size (-1 if unknown).
func NewTable(slices []Slice, total int64) *Table {
	cp := make([]Slice, len(slices))
	copy(cp, slices)
	return &Table{slices: cp, total: total}
}

// Len returns the number of slices.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slices)
}

// SetTotal updates the resource's total size, used once an open-ended
// slice observes EOF (spec §4.7).
func (t *Table) SetTotal(total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
}

// Total returns the resource's total size, or -1 if still unknown.
func (t *Table) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Downloaded sums Downloaded across all slices.
func (t *Table) Downloaded() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum int64
	for i := range t.slices {
		sum += t.slices[i].Downloaded
	}
	return sum
}

// Get returns a copy of slice i.
func (t *Table) Get(i int) Slice {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slices[i]
}

// Snapshot returns a copy of every slice, for index persistence or tests.
func (t *Table) Snapshot() []Slice {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]Slice, len(t.slices))
	copy(cp, t.slices)
	return cp
}

// Mutate runs fn with exclusive access to slice i and returns *fn's slice.
// It is the only sanctioned way to change a slice's fields, keeping the
// locking discipline in one place (spec §5).
func (t *Table) Mutate(i int, fn func(*Slice)) Slice {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.slices[i])
	return t.slices[i]
}

// CountActive returns how many slices are currently Active (spec §8
// property 6). The scheduler bounds parallelism with its own semaphore and
// does not call this.
func (t *Table) CountActive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.slices {
		if t.slices[i].Status == Active {
			n++
		}
	}
	return n
}

// AllTerminal reports whether every slice reached Completed, Failed or
// Canceled.
func (t *Table) AllTerminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slices {
		switch t.slices[i].Status {
		case Completed, Failed, Canceled:
		default:
			return false
		}
	}
	return true
}

// AllCompleted reports whether every slice reached Completed.
func (t *Table) AllCompleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slices {
		if t.slices[i].Status != Completed {
			return false
		}
	}
	return true
}

// FirstFailed returns the index of the first Failed slice, or -1.
func (t *Table) FirstFailed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slices {
		if t.slices[i].Status == Failed {
			return i
		}
	}
	return -1
}

// NextPending returns the index of the next Pending slice ready to be
// scheduled, FIFO by index, or -1 if none.
func (t *Table) NextPending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slices {
		if t.slices[i].Status == Pending {
			return i
		}
	}
	return -1
}

// Validate checks the invariants from spec §3: begin <= begin+downloaded <=
// end, pairwise disjoint, covering [0, total) when total is known.
func (t *Table) Validate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.slices) == 0 {
		return fmt.Errorf("sliceset: empty slice table")
	}
	prevEnd := int64(0)
	for i := range t.slices {
		s := &t.slices[i]
		if s.Begin != prevEnd {
			return fmt.Errorf("sliceset: gap or overlap at slice %d: begin=%d expected=%d", i, s.Begin, prevEnd)
		}
		if !s.Open() {
			if s.Begin > s.Begin+s.Downloaded || s.Begin+s.Downloaded > s.End {
				return fmt.Errorf("sliceset: slice %d invariant violated: begin=%d downloaded=%d end=%d", i, s.Begin, s.Downloaded, s.End)
			}
			prevEnd = s.End
		} else if i != len(t.slices)-1 {
			return fmt.Errorf("sliceset: open-ended slice %d is not last", i)
		}
	}
	if t.total >= 0 {
		last := t.slices[len(t.slices)-1]
		if last.Open() {
			return fmt.Errorf("sliceset: total known but last slice is open-ended")
		}
		if prevEnd != t.total {
			return fmt.Errorf("sliceset: slices cover [0,%d) but total is %d", prevEnd, t.total)
		}
	}
	return nil
}

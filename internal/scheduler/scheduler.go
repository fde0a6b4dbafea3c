// Package scheduler is the bounded-parallelism worker pool over the
// slice table (spec §4.8, Component H). It is grounded on the teacher's
// internal/scheduler/scheduler.go (channel of jobs, fixed worker-goroutine
// pool, sync.WaitGroup) and the commented-out PerformMultiDownload in
// internal/downloaders/http/multi-down.go (wg.Add/go chunkedDownload/
// wg.Wait per chunk), generalized from "one goroutine per chunk" to a
// bounded pool that re-admits pending slices as workers free up and layers
// in speed
// governance via golang.org/x/time/rate (a dependency the teacher itself
// does not use, adopted from the rest of the retrieval pack for this).
//
// A failed fetch is retried with backoff inside its worker (worker.Run),
// which keeps its pool slot while it waits; a failed slice is never put
// back to Pending for re-admission.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"zoe/internal/cache"
	"zoe/internal/sliceset"
	"zoe/internal/transport"
	"zoe/internal/worker"
)

// maxParallelism is the clamp named in spec §4.8 ("thread_num clamped to
// [1,100]").
const maxParallelism = 100

// minLimiterBurst matches transport's rateLimitChunk so a low speed cap
// still leaves every WaitN call admissible.
const minLimiterBurst = 32 * 1024

// Progress is delivered to the caller's onProgress callback at most once
// per progressInterval while a run is in flight, and once more when Run
// returns so the caller sees the final count (spec §4.9).
type Progress struct {
	Downloaded int64
	Total      int64 // -1 if unknown
}

// Speed is delivered to the caller's onSpeed callback at most once per
// second (spec §4.8 "min_download_speed ... sampled once per second").
type Speed struct {
	BytesPerSecond float64
}

// Options configures one Scheduler run.
type Options struct {
	ThreadNum         int
	FetchOpts         transport.FetchOptions
	MaxDownloadSpeed  int64 // bytes/sec, 0 = unlimited
	MinDownloadSpeed  int64 // bytes/sec, 0 = no watchdog
	MinSpeedDuration  time.Duration
	ProgressInterval  time.Duration
	OnProgress        func(Progress)
	OnSpeed           func(Speed)
}

// Scheduler drives every slice in a table to a terminal state, honoring
// pause/resume/cancel and the configured bounded parallelism.
type Scheduler struct {
	tr    transport.Transport
	url   string
	table *sliceset.Table
	sc    func(idx int) *cache.SliceCache
	opts  Options

	pauseMu   sync.Mutex
	pauseCh   chan struct{} // non-nil and open while paused; closed on resume
	cancelCh  chan struct{}
	cancelOne sync.Once

	limiter *rate.Limiter

	effURLMu sync.Mutex
	effURL   string // the resolved effective URL every slice's fetches must agree on
}

// New constructs a Scheduler. scFactory must return a fresh SliceCache
// bound to slice idx (the Session owns cache lifetime per-slice).
func New(tr transport.Transport, url string, table *sliceset.Table, scFactory func(idx int) *cache.SliceCache, opts Options) *Scheduler {
	if opts.ThreadNum < 1 {
		opts.ThreadNum = 1
	}
	if opts.ThreadNum > maxParallelism {
		opts.ThreadNum = maxParallelism
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 100 * time.Millisecond
	}
	var lim *rate.Limiter
	if opts.MaxDownloadSpeed > 0 {
		// Burst must stay at least minLimiterBurst so a worker's chunked
		// WaitN calls (transport.rateLimitChunk) never exceed it.
		burst := int(opts.MaxDownloadSpeed)
		if burst < minLimiterBurst {
			burst = minLimiterBurst
		}
		lim = rate.NewLimiter(rate.Limit(opts.MaxDownloadSpeed), burst)
	}
	return &Scheduler{
		tr:       tr,
		url:      url,
		table:    table,
		sc:       scFactory,
		opts:     opts,
		cancelCh: make(chan struct{}),
		limiter:  lim,
		effURL:   url,
	}
}

// checkEffectiveURL compares got against the effective URL recorded for
// this download, failing the slice immediately on drift rather than
// retrying (spec §4.2).
func (s *Scheduler) checkEffectiveURL(got string) error {
	s.effURLMu.Lock()
	defer s.effURLMu.Unlock()
	if got != s.effURL {
		return fmt.Errorf("%w: got %q, want %q", worker.ErrRedirectedURLDifferent, got, s.effURL)
	}
	return nil
}

// Run blocks until every slice reaches a terminal state, the context is
// canceled, or Stop is called. It returns the first slice error seen, if
// any (the caller decides whether that is fatal per spec §4.9).
func (s *Scheduler) Run(ctx context.Context) error {
	stopReporting := s.startReporting(ctx)
	defer stopReporting()

	sem := make(chan struct{}, s.opts.ThreadNum)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for {
		idx := s.table.NextPending()
		if idx < 0 {
			break
		}
		s.table.Mutate(idx, func(sl *sliceset.Slice) { sl.Status = sliceset.Active })

		select {
		case <-s.cancelCh:
			s.table.Mutate(idx, func(sl *sliceset.Slice) { sl.Status = sliceset.Canceled })
			for p := s.table.NextPending(); p >= 0; p = s.table.NextPending() {
				s.table.Mutate(p, func(sl *sliceset.Slice) { sl.Status = sliceset.Canceled })
			}
			wg.Wait()
			return firstErr
		case <-ctx.Done():
			s.table.Mutate(idx, func(sl *sliceset.Slice) { sl.Status = sliceset.Canceled })
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			var limiter interface {
				WaitN(context.Context, int) error
			}
			if s.limiter != nil {
				limiter = s.limiter
			}
			out := worker.Run(ctx, s.tr, s.url, s.table, idx, s.sc(idx), s.opts.FetchOpts, s.suspendHook, s.cancelCh, limiter, s.checkEffectiveURL)
			if out.Status == sliceset.Failed {
				mu.Lock()
				if firstErr == nil {
					firstErr = out.Err
				}
				mu.Unlock()
			}
		}(idx)
	}
	wg.Wait()
	return firstErr
}

// suspendHook is passed to every worker as the Controls.Suspend function; it
// blocks the calling goroutine while a pause is in effect (spec §4.7
// "suspension points").
func (s *Scheduler) suspendHook(ctx context.Context) error {
	s.pauseMu.Lock()
	ch := s.pauseCh
	s.pauseMu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause arms the suspension gate; in-flight workers block at their next
// suspension point (spec §4.9).
func (s *Scheduler) Pause() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	if s.pauseCh == nil {
		s.pauseCh = make(chan struct{})
	}
}

// Resume releases any workers blocked in suspendHook.
func (s *Scheduler) Resume() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	if s.pauseCh != nil {
		close(s.pauseCh)
		s.pauseCh = nil
	}
}

// Stop cancels every in-flight worker; buffered bytes are discarded rather
// than flushed (spec §4.7).
func (s *Scheduler) Stop() {
	s.cancelOne.Do(func() { close(s.cancelCh) })
}

// startReporting launches the progress/speed aggregation goroutine (spec
// §4.9 "progress ... at most once per 100ms", "speed ... once per second")
// and the min-speed watchdog (spec §4.8). It returns a stop function.
func (s *Scheduler) startReporting(ctx context.Context) func() {
	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		progressTick := time.NewTicker(s.opts.ProgressInterval)
		speedTick := time.NewTicker(time.Second)
		defer progressTick.Stop()
		defer speedTick.Stop()

		var lastDownloaded int64
		var lowSpeedSince time.Time
		for {
			select {
			case <-stop:
				if s.opts.OnProgress != nil {
					s.opts.OnProgress(Progress{Downloaded: s.table.Downloaded(), Total: s.table.Total()})
				}
				return
			case <-ctx.Done():
				return
			case <-progressTick.C:
				if s.opts.OnProgress != nil {
					s.opts.OnProgress(Progress{Downloaded: s.table.Downloaded(), Total: s.table.Total()})
				}
			case <-speedTick.C:
				cur := s.table.Downloaded()
				bps := float64(cur - lastDownloaded)
				lastDownloaded = cur
				if s.opts.OnSpeed != nil {
					s.opts.OnSpeed(Speed{BytesPerSecond: bps})
				}
				s.checkMinSpeed(bps, &lowSpeedSince)
			}
		}
	}()
	return func() { close(stop); <-exited }
}

// checkMinSpeed stops the transfer once throughput has stayed below
// MinDownloadSpeed for MinSpeedDuration (spec §4.8).
func (s *Scheduler) checkMinSpeed(bps float64, lowSince *time.Time) {
	if s.opts.MinDownloadSpeed <= 0 || s.opts.MinSpeedDuration <= 0 {
		return
	}
	if bps >= float64(s.opts.MinDownloadSpeed) {
		*lowSince = time.Time{}
		return
	}
	if lowSince.IsZero() {
		*lowSince = time.Now()
		return
	}
	if time.Since(*lowSince) >= s.opts.MinSpeedDuration {
		s.Stop()
	}
}

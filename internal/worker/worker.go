// Package worker drives a single slice through its Pending→Active→
// {Completed,Failed,Canceled} state machine (spec §4.7), grounded on the
// teacher's chunkedDownload/downloadSingleChunk pair
// (internal/downloaders/http/multi-chunk-handlers.go): same retry-with-
// backoff shape and resume-from-on-disk-offset idea, generalized to route
// writes through a SliceCache and a shared Transport instead of a bare
// os.File and http.Client.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zoe/internal/cache"
	"zoe/internal/sliceset"
	"zoe/internal/transport"
)

// maxRetries mirrors the teacher's maxRetries := 5 in chunkedDownload.
const maxRetries = 5

// backoffUnit mirrors the teacher's time.Duration(retry+1) * 500ms backoff.
const backoffUnit = 500 * time.Millisecond

// ErrRedirectedURLDifferent is wrapped into a slice's LastError when a
// fetch's effective URL (after following redirects) drifts from the one
// every other slice of the same download observed (spec §4.2, redirect
// drift mid-download). It is never retried.
var ErrRedirectedURLDifferent = errors.New("worker: effective URL changed mid-download")

// Outcome summarizes how a slice attempt ended, for the scheduler to act on.
type Outcome struct {
	Status   sliceset.Status
	Cause    transport.TerminalCause
	Err      error
	Canceled bool
}

// Run drives slice idx of table to completion or terminal failure, writing
// through sc and fetching through tr. suspend, if non-nil, is passed to the
// transport as the pause suspension hook (spec §4.7); cancel signals a stop.
// checkEffectiveURL, if non-nil, is called with each fetch's resolved
// effective URL; a non-nil return aborts the slice immediately as a
// redirect-drift failure rather than retrying.
func Run(ctx context.Context, tr transport.Transport, url string, table *sliceset.Table, idx int, sc *cache.SliceCache, opts transport.FetchOptions, suspend func(context.Context) error, cancel <-chan struct{}, limiter interface {
	WaitN(context.Context, int) error
}, checkEffectiveURL func(string) error) Outcome {
	table.Mutate(idx, func(s *sliceset.Slice) { s.Status = sliceset.Active })

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-cancel:
				return cancelOutcome(table, idx)
			case <-time.After(time.Duration(attempt+1) * backoffUnit):
			}
		}

		select {
		case <-cancel:
			return cancelOutcome(table, idx)
		default:
		}

		sl := table.Get(idx)
		rng := transport.ByteRange{Begin: sl.NextOffset(), End: sl.End}
		controls := transport.Controls{Suspend: suspend, Cancel: cancel, Limiter: limiter}
		res := tr.Fetch(ctx, url, rng, sc, controls, opts)

		if res.Cause == transport.Canceled {
			sc.Discard()
			return cancelOutcome(table, idx)
		}

		if checkEffectiveURL != nil && res.EffectiveURL != "" {
			if err := checkEffectiveURL(res.EffectiveURL); err != nil {
				sc.Discard()
				table.Mutate(idx, func(s *sliceset.Slice) {
					s.Status = sliceset.Failed
					s.LastError = err
				})
				return Outcome{Status: sliceset.Failed, Err: err}
			}
		}

		if flushErr := sc.Flush(res.Err == nil && (res.Cause == transport.EOF || res.Cause == transport.RangeComplete)); flushErr != nil {
			res.Err = flushErr
		}

		if res.Err == nil && (res.Cause == transport.EOF || res.Cause == transport.RangeComplete) {
			final := table.Mutate(idx, func(s *sliceset.Slice) {
				s.Status = sliceset.Completed
				s.LastError = nil
			})
			if res.Cause == transport.EOF {
				table.SetTotal(final.Begin + final.Downloaded)
			}
			return Outcome{Status: sliceset.Completed, Cause: res.Cause}
		}

		err := res.Err
		if err == nil {
			err = fmt.Errorf("worker: fetch ended with cause %s but no completion", res.Cause)
		}
		table.Mutate(idx, func(s *sliceset.Slice) {
			s.Retries++
			s.LastError = err
		})
		if res.Cause == transport.PermanentError {
			break
		}
	}

	final := table.Mutate(idx, func(s *sliceset.Slice) {
		s.Status = sliceset.Failed
	})
	return Outcome{Status: sliceset.Failed, Err: final.LastError}
}

func cancelOutcome(table *sliceset.Table, idx int) Outcome {
	table.Mutate(idx, func(s *sliceset.Slice) { s.Status = sliceset.Canceled })
	return Outcome{Status: sliceset.Canceled, Canceled: true}
}

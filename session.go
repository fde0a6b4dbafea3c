package zoe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"zoe/internal/cache"
	"zoe/internal/digest"
	"zoe/internal/future"
	"zoe/internal/index"
	"zoe/internal/planner"
	"zoe/internal/policy"
	"zoe/internal/scheduler"
	"zoe/internal/sliceset"
	"zoe/internal/transport"
	"zoe/internal/worker"
	"zoe/internal/zlog"
)

var sessionLog = zlog.New("session")

// errExpiredIndex is a local sentinel forcing the resume block to treat an
// expired index the same as any other benign load failure (start fresh)
// when the caller hasn't opted into ReportTmpFileExpired.
var errExpiredIndex = errors.New("zoe: index expired")

// Future is the handle returned by Start, resolved once with the terminal
// ResultCode (spec §9 "shared future").
type Future = future.Future[ResultCode]

// ProgressFunc receives cumulative progress, generalizing the teacher's
// utils.DanzoJob.ProgressFunc convention (spec §9).
type ProgressFunc func(total, downloaded int64)

// SpeedFunc receives the aggregate instantaneous throughput, sampled at
// most once per second (spec §4.8/§4.9).
type SpeedFunc func(bytesPerSecond int64)

// ResultFunc receives the terminal ResultCode once a Start call settles.
type ResultFunc func(code ResultCode)

// Session drives one resumable download through its
// Stopped/Downloading/Paused lifecycle (spec §4.9, Component I). A Session
// is reusable across sequential Start calls but only one download may be
// in flight at a time.
type Session struct {
	id  string
	cfg Config

	mu             sync.Mutex
	state          SessionState
	url            string
	targetPath     string
	originFileSize int64
	fut            *Future
	sched          *scheduler.Scheduler
	cancel         context.CancelFunc
}

// SessionState mirrors the original DownloadState enum (spec §4.9).
type SessionState = policy.State

const (
	Stopped     = policy.Stopped
	Downloading = policy.Downloading
	Paused      = policy.Paused
)

// NewSession constructs a Session bound to cfg. cfg is copied; later
// mutation of the caller's struct has no effect.
func NewSession(cfg Config) *Session {
	return &Session{id: uuid.NewString(), cfg: cfg, state: Stopped}
}

// ID returns the session's random identifier. Temp and index file names do
// not include it; they are derived from the target path alone.
func (s *Session) ID() string { return s.id }

// URL returns the URL of the in-progress or most recently started download.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// TargetFilePath returns the local path of the in-progress or most recently
// started download.
func (s *Session) TargetFilePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetPath
}

// OriginFileSize returns the server-reported size, or -1 if unknown.
func (s *Session) OriginFileSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.originFileSize
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FutureResult returns the Future for the in-progress or most recently
// started download, or nil if Start was never called.
func (s *Session) FutureResult() *Future {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fut
}

// Start begins a download, returning immediately with a Future that
// resolves once the transfer reaches a terminal outcome (spec §4.9). Only
// one download may be active per Session; a concurrent Start while
// Downloading or Paused returns a pre-resolved Future carrying
// AlreadyDownloading.
func (s *Session) Start(rawURL, targetPath string, onResult ResultFunc, onProgress ProgressFunc, onSpeed SpeedFunc) *Future {
	s.mu.Lock()
	if s.state != Stopped {
		s.mu.Unlock()
		fut := future.New[ResultCode]()
		fut.Complete(AlreadyDownloading)
		if onResult != nil {
			onResult(AlreadyDownloading)
		}
		return fut
	}
	if _, err := url.Parse(rawURL); err != nil || rawURL == "" {
		s.mu.Unlock()
		fut := future.New[ResultCode]()
		fut.Complete(InvalidURL)
		if onResult != nil {
			onResult(InvalidURL)
		}
		return fut
	}
	if targetPath == "" {
		s.mu.Unlock()
		fut := future.New[ResultCode]()
		fut.Complete(InvalidTargetFilePath)
		if onResult != nil {
			onResult(InvalidTargetFilePath)
		}
		return fut
	}
	if code, ok := s.cfg.validate(); !ok {
		s.mu.Unlock()
		fut := future.New[ResultCode]()
		fut.Complete(code)
		if onResult != nil {
			onResult(code)
		}
		return fut
	}

	ctx, cancel := context.WithCancel(context.Background())
	fut := future.New[ResultCode]()
	s.url = rawURL
	s.targetPath = targetPath
	s.fut = fut
	s.cancel = cancel
	s.state = Downloading
	s.mu.Unlock()

	go s.run(ctx, rawURL, targetPath, fut, onResult, onProgress, onSpeed)
	return fut
}

// Pause requests the current transfer suspend at its next suspension
// point (spec §4.7, §4.9). No-op when not Downloading.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Downloading {
		return
	}
	if s.sched != nil {
		s.sched.Pause()
	}
	s.state = Paused
}

// Resume releases a paused transfer. No-op when not Paused.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Paused {
		return
	}
	if s.sched != nil {
		s.sched.Resume()
	}
	s.state = Downloading
}

// Stop cancels the current transfer; its Future settles with Canceled
// (spec §4.9). No-op when already Stopped.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return
	}
	if s.sched != nil {
		s.sched.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) settle(fut *Future, onResult ResultFunc, code ResultCode) {
	s.mu.Lock()
	s.state = Stopped
	s.sched = nil
	s.mu.Unlock()
	fut.Complete(code)
	if onResult != nil {
		onResult(code)
	}
}

func (s *Session) run(ctx context.Context, rawURL, targetPath string, fut *Future, onResult ResultFunc, onProgress ProgressFunc, onSpeed SpeedFunc) {
	scheme := schemeOf(rawURL)
	tr, err := transport.ForScheme(scheme)
	if err != nil {
		sessionLog.Error().Err(err).Str("url", rawURL).Msg("unsupported scheme")
		s.settle(fut, onResult, InvalidURL)
		return
	}

	connTimeout := s.cfg.NetworkConnectionTimeout
	if connTimeout <= 0 {
		connTimeout = 3000 * time.Millisecond
	}
	retryTimes := s.cfg.RetryTimesOfFetchFileInfo
	if retryTimes <= 0 {
		retryTimes = 1
	}

	fetchOpts := transport.FetchOptions{
		ConnectTimeout: connTimeout.Milliseconds(),
		Headers:        transport.HeaderList(s.cfg.HTTPHeaders),
		Proxy:          s.cfg.Proxy,
		VerifyCA:       s.cfg.VerifyCAEnabled,
		CAPath:         s.cfg.CAPath,
		VerifyHost:     s.cfg.VerifyHostEnabled,
		CookieList:     s.cfg.CookieList,
	}
	probeOpts := transport.ProbeOptions{
		UseHead:        s.cfg.FetchFileInfoUseHead,
		RetryTimes:     retryTimes,
		ConnectTimeout: fetchOpts.ConnectTimeout,
		Headers:        fetchOpts.Headers,
		Proxy:          fetchOpts.Proxy,
		VerifyCA:       fetchOpts.VerifyCA,
		CAPath:         fetchOpts.CAPath,
		VerifyHost:     fetchOpts.VerifyHost,
		CookieList:     fetchOpts.CookieList,
	}

	meta, err := tr.Probe(ctx, rawURL, probeOpts)
	if err != nil {
		sessionLog.Error().Err(err).Str("url", rawURL).Msg("probe failed")
		code := FetchFileInfoFailed
		if ctx.Err() != nil {
			code = Canceled
		}
		s.settle(fut, onResult, code)
		return
	}

	s.mu.Lock()
	s.originFileSize = meta.TotalSize
	s.mu.Unlock()

	tempPath := index.TempDataPath(targetPath)
	idxStore := index.New(targetPath)
	threadNum := clampThreadNum(s.cfg.ThreadNum)

	var table *sliceset.Table
	var rec *index.Record
	now := time.Now()

	if idxStore.Exists() {
		loaded, loadErr := idxStore.Load()
		// A decode/schema mismatch (INVALID_INDEX_FORMAT) means "start
		// fresh" per spec §4.4; any other loadErr is a real I/O failure
		// opening the index file and aborts instead.
		if loadErr != nil {
			var mismatch *index.Mismatch
			if !errors.As(loadErr, &mismatch) {
				sessionLog.Error().Err(loadErr).Str("path", idxStore.Path()).Msg("open index file failed")
				s.settle(fut, onResult, OpenIndexFileFailed)
				return
			}
		}
		if loadErr == nil && loaded.Expired(now, s.cfg.ExpiredTimeOfTmpFile) {
			if s.cfg.ReportTmpFileExpired {
				s.settle(fut, onResult, TmpFileExpired)
				return
			}
			loadErr = errExpiredIndex
		}
		if loadErr == nil {
			checkURL := rawURL
			if s.cfg.RedirectedURLCheckEnabled && meta.EffectiveURL != "" {
				checkURL = meta.EffectiveURL
			}
			tmpSize := int64(0)
			if fi, statErr := os.Stat(tempPath); statErr == nil {
				tmpSize = fi.Size()
			}
			if valErr := index.ValidateAgainst(loaded, checkURL, tmpSize); valErr != nil {
				var mismatch *index.Mismatch
				if errors.As(valErr, &mismatch) {
					switch mismatch.Reason {
					case "URL_DIFFERENT":
						s.settle(fut, onResult, URLDifferent)
						return
					case "TMP_FILE_SIZE_ERROR":
						s.settle(fut, onResult, TmpFileSizeError)
						return
					}
				}
			} else {
				rec = loaded
				slices := planner.Reconcile(loaded.Slices, meta.TotalSize, meta.AcceptsRanges,
					SlicePolicy(loaded.SlicePolicy), loaded.PolicyValue, threadNum, s.cfg.UncompletedSliceSavePolicy)
				table = sliceset.NewTable(slices, meta.TotalSize)
			}
		}
		if table == nil {
			idxStore.Delete()
			os.Remove(tempPath)
		}
	}

	if table == nil {
		slices := planner.Plan(meta.TotalSize, meta.AcceptsRanges, s.cfg.SlicePolicy, s.cfg.SlicePolicyValue, threadNum)
		table = sliceset.NewTable(slices, meta.TotalSize)
		rec = &index.Record{
			OriginURL:    rawURL,
			EffectiveURL: meta.EffectiveURL,
			TotalSize:    meta.TotalSize,
			CreatedAt:    now.UnixMilli(),
			SlicePolicy:  uint8(s.cfg.SlicePolicy),
			PolicyValue:  s.cfg.SlicePolicyValue,
		}
	}

	tf, err := openTargetFile(tempPath, meta.TotalSize)
	if err != nil {
		sessionLog.Error().Err(err).Str("path", tempPath).Msg("open temp file failed")
		s.settle(fut, onResult, CreateTmpFileFailed)
		return
	}
	defer tf.Close()

	updater := index.NewUpdater(idxStore, 2*time.Second, rec)
	diskCacheSize := s.cfg.DiskCacheSize
	if diskCacheSize <= 0 {
		diskCacheSize = cache.DefaultSize
	}
	quota := cache.Quota(diskCacheSize, threadNum)

	// max_download_speed_Bps has no effect on file:// transfers (spec §6).
	maxSpeed := s.cfg.MaxDownloadSpeed
	if scheme == "file" {
		maxSpeed = 0
	}

	sched := scheduler.New(tr, meta.EffectiveURL, table, func(idx int) *cache.SliceCache {
		return cache.New(quota, tf.File, table, idx, updater)
	}, scheduler.Options{
		ThreadNum:        threadNum,
		FetchOpts:        fetchOpts,
		MaxDownloadSpeed: maxSpeed,
		MinDownloadSpeed: s.cfg.MinDownloadSpeed,
		MinSpeedDuration: s.cfg.MinDownloadSpeedDuration,
		OnProgress: func(p scheduler.Progress) {
			if onProgress != nil {
				onProgress(p.Total, p.Downloaded)
			}
		},
		OnSpeed: func(sp scheduler.Speed) {
			if onSpeed != nil {
				onSpeed(int64(sp.BytesPerSecond))
			}
		},
	})

	s.mu.Lock()
	s.sched = sched
	if s.state == Paused {
		sched.Pause()
	}
	s.mu.Unlock()

	if s.cfg.StopEvent != nil {
		go func() {
			select {
			case <-s.cfg.StopEvent:
				s.Stop()
			case <-ctx.Done():
			}
		}()
	}

	runErr := sched.Run(ctx)
	flushErr := updater.FlushIfPending()

	if ctx.Err() != nil || !table.AllCompleted() {
		if runErr != nil {
			sessionLog.Warn().Err(runErr).Msg("download ended without completing all slices")
		}
		code := SliceDownloadFailed
		switch {
		case ctx.Err() != nil:
			code = Canceled
		case errors.Is(runErr, worker.ErrRedirectedURLDifferent):
			code = RedirectedURLDifferent
		}
		s.settle(fut, onResult, code)
		return
	}

	if flushErr != nil {
		sessionLog.Error().Err(flushErr).Msg("final index flush failed")
		s.settle(fut, onResult, UpdateIndexFileFailed)
		return
	}

	if err := tf.Flush(); err != nil {
		s.settle(fut, onResult, FlushTmpFileFailed)
		return
	}

	if code, ok := s.verify(tf, table.Total(), meta.ContentDigest); !ok {
		s.settle(fut, onResult, code)
		return
	}

	if err := tf.Close(); err != nil {
		s.settle(fut, onResult, FlushTmpFileFailed)
		return
	}
	if err := renameFinal(tempPath, targetPath); err != nil {
		code := RenameTmpFileFailed
		if errors.Is(err, errCreateTargetFile) {
			code = CreateTargetFileFailed
		}
		s.settle(fut, onResult, code)
		return
	}
	idxStore.Delete()
	s.settle(fut, onResult, Success)
}

// verify runs the optional integrity checks (spec §4.1, §4.9): the
// server-advertised Content-MD5, when enabled, and the configured
// ExpectedHash/HashVerifyPolicy check. Both reopen the temp file for a
// sequential read rather than reusing tf's *os.File handle, since tf is
// about to be closed and renamed.
func (s *Session) verify(tf *targetFileHandle, total int64, contentDigest string) (ResultCode, bool) {
	if s.cfg.ContentMD5Enabled && contentDigest != "" {
		f, err := os.Open(tf.path)
		if err != nil {
			return CalculateHashFailed, false
		}
		got, err := digest.File(digest.MD5, f)
		f.Close()
		if err != nil {
			return CalculateHashFailed, false
		}
		if !digest.Equal(got, contentDigest) {
			return HashVerifyNotPass, false
		}
	}

	if s.cfg.HashVerifyPolicy == HashVerifyDisabled || s.cfg.ExpectedHash == "" {
		return Success, true
	}
	if s.cfg.HashVerifyPolicy == HashVerifyOnlyNoSize && total >= 0 {
		return Success, true
	}
	f, err := os.Open(tf.path)
	if err != nil {
		return CalculateHashFailed, false
	}
	defer f.Close()
	got, err := digest.File(digest.Type(s.cfg.HashType), f)
	if err != nil {
		return CalculateHashFailed, false
	}
	if !digest.Equal(got, s.cfg.ExpectedHash) {
		return HashVerifyNotPass, false
	}
	return Success, true
}

func schemeOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return "http"
	}
	return u.Scheme
}

// errCreateTargetFile distinguishes a failure creating the final target
// file (during the cross-device copy fallback below) from a plain rename
// failure, matching the original engine's separate CREATE_TARGET_FILE_FAILED
// and RENAME_TMP_FILE_FAILED codes.
var errCreateTargetFile = errors.New("zoe: create target file")

func renameFinal(tempPath, targetPath string) error {
	err := os.Rename(tempPath, targetPath)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("zoe: finalize rename: %w", err)
	}

	src, openErr := os.Open(tempPath)
	if openErr != nil {
		return fmt.Errorf("zoe: finalize rename: %w", openErr)
	}
	defer src.Close()

	dst, createErr := os.Create(targetPath)
	if createErr != nil {
		return fmt.Errorf("%w: %v", errCreateTargetFile, createErr)
	}
	if _, copyErr := io.Copy(dst, src); copyErr != nil {
		dst.Close()
		return fmt.Errorf("%w: %v", errCreateTargetFile, copyErr)
	}
	if closeErr := dst.Close(); closeErr != nil {
		return fmt.Errorf("%w: %v", errCreateTargetFile, closeErr)
	}
	os.Remove(tempPath)
	return nil
}

package zoe

import (
	"time"

	"zoe/internal/policy"
	"zoe/internal/transport"
)

// Slice policy selection, re-exported from internal/policy so callers never
// import an internal package directly (spec §4.6, §6).
type SlicePolicy = policy.SlicePolicy

const (
	SlicePolicyAuto      = policy.Auto
	SlicePolicyFixedSize = policy.FixedSize
	SlicePolicyFixedNum  = policy.FixedNum
)

// HashType selects the digest algorithm used for integrity verification
// (spec §4.1, §6).
type HashType = policy.HashType

const (
	HashMD5    = policy.MD5
	HashCRC32  = policy.CRC32
	HashSHA256 = policy.SHA256
)

// HashVerifyPolicy controls when the target file is digested and compared
// against ExpectedHash (spec §4.9).
type HashVerifyPolicy = policy.HashVerifyPolicy

const (
	HashVerifyDisabled    = policy.VerifyDisabled
	HashVerifyAlways      = policy.AlwaysVerify
	HashVerifyOnlyNoSize  = policy.OnlyNoFileSize
)

// UncompletedSliceSavePolicy governs how a loaded index's incomplete
// slices are treated when resuming under a possibly different slice
// policy (spec §4.6).
type UncompletedSliceSavePolicy = policy.UncompletedSliceSavePolicy

const (
	SaveAlwaysDiscard    = policy.AlwaysDiscard
	SaveExceptFailed     = policy.SaveExceptFailed
)

// HeaderKV is one entry of an ordered HTTP header multimap, allowing
// duplicate keys in order (spec §6 "http_headers").
type HeaderKV = transport.HeaderKV

// Config is the full configuration surface for a Session, mirroring the
// setter surface of the engine this was distilled from (spec §6). A zero
// Config passes validation but lacks the documented defaults (for example
// SlicePolicy is Auto and FetchFileInfoUseHead is false); start from
// DefaultConfig and override fields.
type Config struct {
	// ThreadNum is the maximum number of concurrently active slices, at
	// most 100; a larger value makes Start fail with InvalidThreadNum. 0 or
	// negative uses the default of 1.
	ThreadNum int

	// NetworkConnectionTimeout bounds the TCP connect phase. 0 uses the
	// default of 3000ms; a negative value makes Start fail with
	// InvalidNetworkConnTimeout.
	NetworkConnectionTimeout time.Duration

	// RetryTimesOfFetchFileInfo is how many times Probe is retried before
	// giving up. 0 uses the default of 1; a negative value makes Start fail
	// with InvalidFetchFileInfoRetryTimes.
	RetryTimesOfFetchFileInfo int

	// FetchFileInfoUseHead selects HEAD over a ranged GET for probing.
	FetchFileInfoUseHead bool

	// ExpiredTimeOfTmpFile is how long a loaded index/temp file pair may
	// sit before it is treated as stale and restarted. <= 0 means never
	// expires.
	ExpiredTimeOfTmpFile time.Duration

	// ReportTmpFileExpired, when set, aborts Start with TmpFileExpired
	// instead of silently discarding the expired index and restarting
	// fresh (spec §4.4 "result TMP_FILE_EXPIRED is reported only if the
	// caller asked").
	ReportTmpFileExpired bool

	// MaxDownloadSpeed caps aggregate throughput in bytes/sec. <= 0 means
	// unlimited. Has no effect on file:// transfers.
	MaxDownloadSpeed int64

	// MinDownloadSpeed and MinDownloadSpeedDuration define the watchdog:
	// if aggregate throughput stays below MinDownloadSpeed for the given
	// duration, the session stops itself with SliceDownloadFailed.
	MinDownloadSpeed         int64
	MinDownloadSpeedDuration time.Duration

	// DiskCacheSize is the total write-back buffer budget in bytes, split
	// evenly across ThreadNum active slices. 0 or negative uses the
	// default of 20MiB.
	DiskCacheSize int64

	// RedirectedURLCheckEnabled re-validates the index against the
	// effective (post-redirect) URL rather than only the origin URL.
	RedirectedURLCheckEnabled bool

	// ContentMD5Enabled compares a server-advertised Content-MD5 header
	// against the downloaded bytes when present.
	ContentMD5Enabled bool

	// SlicePolicy and SlicePolicyValue select how the initial layout is
	// computed (spec §4.6). Default is FixedSize with a 10MiB value.
	SlicePolicy      SlicePolicy
	SlicePolicyValue int64

	// HashVerifyPolicy, HashType and ExpectedHash configure the optional
	// post-download integrity check (spec §4.1, §4.9). An empty
	// ExpectedHash disables verification regardless of policy.
	HashVerifyPolicy HashVerifyPolicy
	HashType         HashType
	ExpectedHash     string

	// HTTPHeaders is an ordered multimap applied to every request.
	HTTPHeaders []HeaderKV

	// Proxy is a proxy URL, e.g. "http://127.0.0.1:8888".
	Proxy string

	// VerifyCAEnabled and CAPath control TLS certificate authority
	// verification.
	VerifyCAEnabled bool
	CAPath          string

	// VerifyHostEnabled controls TLS hostname verification.
	VerifyHostEnabled bool

	// CookieList is a Netscape-format cookie list seeded into the
	// session's cookie jar before the first request.
	CookieList string

	// UncompletedSliceSavePolicy governs resume reconciliation (spec
	// §4.6). Default is AlwaysDiscard.
	UncompletedSliceSavePolicy UncompletedSliceSavePolicy

	// StopEvent, if non-nil, is closed to request the same cancellation
	// Stop() would trigger — useful for wiring an external cancellation
	// source without holding a Session reference.
	StopEvent <-chan struct{}
}

// DefaultConfig returns the engine's documented defaults (spec §6).
func DefaultConfig() Config {
	return Config{
		ThreadNum:                 1,
		NetworkConnectionTimeout:  3000 * time.Millisecond,
		RetryTimesOfFetchFileInfo: 1,
		FetchFileInfoUseHead:      true,
		ExpiredTimeOfTmpFile:      -1,
		MaxDownloadSpeed:          -1,
		MinDownloadSpeed:          -1,
		MinDownloadSpeedDuration:  0,
		DiskCacheSize:             20 * 1024 * 1024,
		RedirectedURLCheckEnabled: true,
		ContentMD5Enabled:         false,
		SlicePolicy:               SlicePolicyFixedSize,
		SlicePolicyValue:          10 * 1024 * 1024,
		HashVerifyPolicy:          HashVerifyDisabled,
		HashType:                  HashMD5,
		UncompletedSliceSavePolicy: SaveAlwaysDiscard,
	}
}

func clampThreadNum(n int) int {
	if n <= 0 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}

// validate checks the config values that spec §7 requires to surface a
// specific invalid-* result at Start time, rather than being silently
// clamped or defaulted. Zero/negative values that DefaultConfig documents
// as "use the default" are left alone here; only out-of-range or unknown
// enum values are rejected.
func (cfg Config) validate() (ResultCode, bool) {
	if cfg.ThreadNum > 100 {
		return InvalidThreadNum, false
	}
	if cfg.NetworkConnectionTimeout < 0 {
		return InvalidNetworkConnTimeout, false
	}
	if cfg.RetryTimesOfFetchFileInfo < 0 {
		return InvalidFetchFileInfoRetryTimes, false
	}
	switch cfg.SlicePolicy {
	case SlicePolicyAuto:
	case SlicePolicyFixedSize, SlicePolicyFixedNum:
		if cfg.SlicePolicyValue <= 0 {
			return InvalidSlicePolicy, false
		}
	default:
		return InvalidSlicePolicy, false
	}
	switch cfg.HashVerifyPolicy {
	case HashVerifyDisabled, HashVerifyAlways, HashVerifyOnlyNoSize:
	default:
		return InvalidHashPolicy, false
	}
	switch cfg.HashType {
	case HashMD5, HashCRC32, HashSHA256:
	default:
		return InvalidHashPolicy, false
	}
	return Success, true
}

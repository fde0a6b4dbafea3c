package zoe

import "zoe/internal/resultcode"

// ResultCode is the terminal outcome of a Start call, delivered to the
// result callback and the Future (spec §7). It implements error so callers
// can compare or wrap it directly.
type ResultCode = resultcode.Code

// Named result codes, mirroring the original ZoeResult enum this engine's
// interface was distilled from (spec §7).
const (
	Success                        = resultcode.Success
	UnknownError                   = resultcode.UnknownError
	InvalidURL                     = resultcode.InvalidURL
	InvalidIndexFormat             = resultcode.InvalidIndexFormat
	InvalidTargetFilePath          = resultcode.InvalidTargetFilePath
	InvalidThreadNum               = resultcode.InvalidThreadNum
	InvalidHashPolicy              = resultcode.InvalidHashPolicy
	InvalidSlicePolicy             = resultcode.InvalidSlicePolicy
	InvalidNetworkConnTimeout      = resultcode.InvalidNetworkConnTimeout
	InvalidFetchFileInfoRetryTimes = resultcode.InvalidFetchFileInfoRetryTimes
	AlreadyDownloading             = resultcode.AlreadyDownloading
	Canceled                       = resultcode.Canceled
	RenameTmpFileFailed            = resultcode.RenameTmpFileFailed
	OpenIndexFileFailed            = resultcode.OpenIndexFileFailed
	TmpFileExpired                 = resultcode.TmpFileExpired
	CreateTargetFileFailed         = resultcode.CreateTargetFileFailed
	CreateTmpFileFailed            = resultcode.CreateTmpFileFailed
	OpenTmpFileFailed              = resultcode.OpenTmpFileFailed
	URLDifferent                   = resultcode.URLDifferent
	TmpFileSizeError               = resultcode.TmpFileSizeError
	TmpFileCannotRW                = resultcode.TmpFileCannotRW
	FlushTmpFileFailed             = resultcode.FlushTmpFileFailed
	UpdateIndexFileFailed          = resultcode.UpdateIndexFileFailed
	SliceDownloadFailed            = resultcode.SliceDownloadFailed
	HashVerifyNotPass              = resultcode.HashVerifyNotPass
	CalculateHashFailed            = resultcode.CalculateHashFailed
	FetchFileInfoFailed            = resultcode.FetchFileInfoFailed
	RedirectedURLDifferent         = resultcode.RedirectedURLDifferent
)

// Package resultcode enumerates the terminal outcomes a Session can settle
// its Future with (spec §7). It is kept as its own internal package (mirror
// of internal/policy) so it can be depended on from internal/index,
// internal/worker and internal/scheduler without an import cycle back to
// the root zoe package, which re-exports these as zoe.ResultCode.
package resultcode

// Code is a terminal result of a download attempt.
type Code int

const (
	Success Code = iota
	UnknownError
	InvalidURL
	InvalidIndexFormat
	InvalidTargetFilePath
	InvalidThreadNum
	InvalidHashPolicy
	InvalidSlicePolicy
	InvalidNetworkConnTimeout
	InvalidFetchFileInfoRetryTimes
	AlreadyDownloading
	Canceled
	RenameTmpFileFailed
	OpenIndexFileFailed
	TmpFileExpired
	CreateTargetFileFailed
	CreateTmpFileFailed
	OpenTmpFileFailed
	URLDifferent
	TmpFileSizeError
	TmpFileCannotRW
	FlushTmpFileFailed
	UpdateIndexFileFailed
	SliceDownloadFailed
	HashVerifyNotPass
	CalculateHashFailed
	FetchFileInfoFailed
	RedirectedURLDifferent
	// notClearlyResult is an internal sentinel meaning "the failure does not
	// map to a more specific code"; it is never returned to a caller (spec
	// §7). Session.Start always narrows to one of the codes above it.
	notClearlyResult
)

var names = map[Code]string{
	Success:                        "SUCCESSED",
	UnknownError:                   "UNKNOWN_ERROR",
	InvalidURL:                     "INVALID_URL",
	InvalidIndexFormat:             "INVALID_INDEX_FORMAT",
	InvalidTargetFilePath:          "INVALID_TARGET_FILE_PATH",
	InvalidThreadNum:               "INVALID_THREAD_NUM",
	InvalidHashPolicy:              "INVALID_HASH_POLICY",
	InvalidSlicePolicy:             "INVALID_SLICE_POLICY",
	InvalidNetworkConnTimeout:      "INVALID_NETWORK_CONN_TIMEOUT",
	InvalidFetchFileInfoRetryTimes: "INVALID_FETCH_FILE_INFO_RETRY_TIMES",
	AlreadyDownloading:             "ALREADY_DOWNLOADING",
	Canceled:                       "CANCELED",
	RenameTmpFileFailed:            "RENAME_TMP_FILE_FAILED",
	OpenIndexFileFailed:            "OPEN_INDEX_FILE_FAILED",
	TmpFileExpired:                 "TMP_FILE_EXPIRED",
	CreateTargetFileFailed:         "CREATE_TARGET_FILE_FAILED",
	CreateTmpFileFailed:            "CREATE_TMP_FILE_FAILED",
	OpenTmpFileFailed:              "OPEN_TMP_FILE_FAILED",
	URLDifferent:                   "URL_DIFFERENT",
	TmpFileSizeError:               "TMP_FILE_SIZE_ERROR",
	TmpFileCannotRW:                "TMP_FILE_CANNOT_RW",
	FlushTmpFileFailed:             "FLUSH_TMP_FILE_FAILED",
	UpdateIndexFileFailed:          "UPDATE_INDEX_FILE_FAILED",
	SliceDownloadFailed:            "SLICE_DOWNLOAD_FAILED",
	HashVerifyNotPass:              "HASH_VERIFY_NOT_PASS",
	CalculateHashFailed:            "CALCULATE_HASH_FAILED",
	FetchFileInfoFailed:            "FETCH_FILE_INFO_FAILED",
	RedirectedURLDifferent:         "REDIRECT_URL_DIFFERENT",
	notClearlyResult:               "NOT_CLEARLY_RESULT",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "UNKNOWN_ERROR"
}

// Error implements error so a Code can be returned or wrapped directly.
func (c Code) Error() string { return c.String() }

// OK reports whether c represents success.
func (c Code) OK() bool { return c == Success }

// Package transport is the abstract ranged-GET capability the core
// consumes (spec §1 "the HTTP client transport ... treated as an abstract
// ranged-GET capability", §4.2). It is generalized from the teacher's
// internal/downloaders/http/initial.go (probing) and
// multi-chunk-handlers.go (ranged fetch).
package transport

import (
	"context"
	"io"
)

// TerminalCause is why a Fetch call returned (spec §4.2).
type TerminalCause int

const (
	EOF TerminalCause = iota
	RangeComplete
	Canceled
	TransientError
	PermanentError
)

func (c TerminalCause) String() string {
	switch c {
	case EOF:
		return "EOF"
	case RangeComplete:
		return "RangeComplete"
	case Canceled:
		return "Canceled"
	case TransientError:
		return "TransientError"
	case PermanentError:
		return "PermanentError"
	default:
		return "Unknown"
	}
}

// ByteRange is a half-open [Begin, End) request range. End < 0 requests to
// the end of the resource (open-ended).
type ByteRange struct {
	Begin int64
	End   int64 // -1 means "to EOF"
}

// Metadata is the resource metadata obtained once per start (spec §3).
type Metadata struct {
	EffectiveURL   string
	TotalSize      int64 // -1 if unknown
	AcceptsRanges  bool
	ContentDigest  string // server-advertised Content-MD5, hex, "" if absent
}

// Controls carries the suspension/cancellation/speed-cap signals a Fetch
// call must honor (spec §4.2, §5 "suspension points").
type Controls struct {
	// Suspend, when non-nil, is called before each read and blocks while
	// the caller wants the transfer paused, returning once it resumes.
	Suspend func(ctx context.Context) error
	// Cancel is closed when the transfer must stop immediately.
	Cancel <-chan struct{}
	// Limiter, if non-nil, is consulted before each write to the sink to
	// enforce a speed cap. The scheduler passes one limiter shared by all
	// of a download's fetches, so the cap applies to their sum.
	Limiter interface {
		WaitN(ctx context.Context, n int) error
	}
}

// FetchResult is returned by Fetch (spec §4.2).
type FetchResult struct {
	BytesWritten   int64
	Cause          TerminalCause
	Err            error
	EffectiveURL   string // URL after following redirects for this request
}

// ProbeOptions configures a Probe call (spec §4.2, §6 configuration surface).
type ProbeOptions struct {
	UseHead          bool
	RetryTimes       int
	ConnectTimeout   int64 // milliseconds
	Headers          HeaderList
	Proxy            string
	VerifyCA         bool
	CAPath           string
	VerifyHost       bool
	CookieList       string
}

// FetchOptions configures a Fetch call; it shares the network posture of
// ProbeOptions but is kept distinct since a Fetch never retries file-info.
type FetchOptions struct {
	ConnectTimeout int64
	Headers        HeaderList
	Proxy          string
	VerifyCA       bool
	CAPath         string
	VerifyHost     bool
	CookieList     string
}

// HeaderKV is one entry of an ordered multimap of HTTP headers (spec §6
// http_headers "ordered multimap allowing duplicate keys").
type HeaderKV struct {
	Key   string
	Value string
}

// HeaderList is an ordered list of header key/value pairs, preserving
// duplicates and order, unlike a plain map[string]string.
type HeaderList []HeaderKV

// Transport is the abstract ranged-GET capability (spec §4.2).
type Transport interface {
	// Probe resolves resource metadata, retrying transient failures up to
	// opts.RetryTimes.
	Probe(ctx context.Context, url string, opts ProbeOptions) (Metadata, error)
	// Fetch streams range into sink, honoring back-pressure and controls.
	Fetch(ctx context.Context, url string, rng ByteRange, sink io.Writer, controls Controls, opts FetchOptions) FetchResult
}

// ForScheme returns the Transport implementation appropriate for the URL's
// scheme ("http", "https" or "file"), per spec §6.
func ForScheme(scheme string) (Transport, error) {
	switch scheme {
	case "http", "https":
		return NewHTTPTransport(), nil
	case "file":
		return NewFileTransport(), nil
	default:
		return nil, ErrUnsupportedScheme{Scheme: scheme}
	}
}

// ErrUnsupportedScheme is returned by ForScheme for anything but
// http/https/file.
type ErrUnsupportedScheme struct{ Scheme string }

func (e ErrUnsupportedScheme) Error() string {
	return "transport: unsupported scheme " + e.Scheme
}

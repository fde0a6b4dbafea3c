package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/publicsuffix"
	"zoe/internal/zlog"
)

var httpLog = zlog.New("transport/http")

// HTTPTransport implements Transport over net/http, generalizing the
// teacher's utils.DanzoHTTPClient (internal/utils/http-client.go) and the
// probe/fetch functions in internal/downloaders/http/{initial,
// multi-chunk-handlers}.go.
type HTTPTransport struct{}

func NewHTTPTransport() *HTTPTransport { return &HTTPTransport{} }

func buildClient(opts httpOpts) (*http.Client, error) {
	tlsCfg := &tls.Config{}
	if !opts.verifyHost {
		tlsCfg.InsecureSkipVerify = true
	}
	if opts.verifyCA && opts.caPath != "" {
		pem, err := os.ReadFile(opts.caPath)
		if err != nil {
			return nil, fmt.Errorf("transport: reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("transport: no certificates parsed from %s", opts.caPath)
		}
		tlsCfg.RootCAs = pool
	} else if !opts.verifyCA {
		tlsCfg.InsecureSkipVerify = true
	}

	transport := &http.Transport{
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		DisableCompression:  true,
		TLSClientConfig:     tlsCfg,
		DialContext: (&net.Dialer{
			Timeout:   time.Duration(opts.connectTimeoutMs) * time.Millisecond,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	if opts.proxy != "" {
		proxyURL, err := url.Parse(opts.proxy)
		if err != nil {
			return nil, fmt.Errorf("transport: invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{Transport: transport}

	if opts.cookieList != "" {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("transport: creating cookie jar: %w", err)
		}
		if err := loadNetscapeCookies(jar, opts.cookieList); err != nil {
			return nil, fmt.Errorf("transport: parsing cookie list: %w", err)
		}
		client.Jar = jar
	}
	return client, nil
}

type httpOpts struct {
	connectTimeoutMs int64
	proxy            string
	verifyCA         bool
	caPath           string
	verifyHost       bool
	cookieList       string
	headers          HeaderList
}

func applyHeaders(req *http.Request, headers HeaderList) {
	for _, h := range headers {
		req.Header.Add(h.Key, h.Value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "zoe/1.0")
	}
	req.Header.Set("Connection", "keep-alive")
}

func (t *HTTPTransport) Probe(ctx context.Context, rawURL string, opts ProbeOptions) (Metadata, error) {
	o := httpOpts{
		connectTimeoutMs: opts.ConnectTimeout,
		proxy:            opts.Proxy,
		verifyCA:         opts.VerifyCA,
		caPath:           opts.CAPath,
		verifyHost:       opts.VerifyHost,
		cookieList:       opts.CookieList,
		headers:          opts.Headers,
	}
	if _, err := buildClient(o); err != nil {
		return Metadata{}, err
	}

	retries := opts.RetryTimes
	if retries < 0 {
		retries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			httpLog.Warn().Int("attempt", attempt).Msg("retrying probe")
			select {
			case <-ctx.Done():
				return Metadata{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
		}
		meta, err := t.probeOnce(ctx, rawURL, opts.UseHead, o)
		if err == nil {
			return meta, nil
		}
		lastErr = err
	}
	return Metadata{}, fmt.Errorf("transport: probe failed after %d attempts: %w", retries+1, lastErr)
}

func (t *HTTPTransport) probeOnce(ctx context.Context, rawURL string, useHead bool, o httpOpts) (Metadata, error) {
	client, err := buildClient(o)
	if err != nil {
		return Metadata{}, err
	}
	method := "GET"
	if useHead {
		method = "HEAD"
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return Metadata{}, err
	}
	applyHeaders(req, o.headers)
	if !useHead {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := client.Do(req)
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1))

	if resp.StatusCode >= 400 {
		return Metadata{}, fmt.Errorf("transport: probe status %d", resp.StatusCode)
	}

	meta := Metadata{
		EffectiveURL:  resp.Request.URL.String(),
		TotalSize:     -1,
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes" || resp.StatusCode == http.StatusPartialContent,
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size >= 0 {
			meta.TotalSize = size
		}
	}
	if resp.StatusCode == http.StatusPartialContent {
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if total, ok := parseContentRangeTotal(cr); ok {
				meta.TotalSize = total
			}
		}
	}
	meta.ContentDigest = resp.Header.Get("Content-MD5")
	return meta, nil
}

func parseContentRangeTotal(cr string) (int64, bool) {
	// Format: "bytes start-end/total"
	var start, end, total int64
	if _, err := fmt.Sscanf(cr, "bytes %d-%d/%d", &start, &end, &total); err != nil {
		return 0, false
	}
	return total, true
}

func (t *HTTPTransport) Fetch(ctx context.Context, rawURL string, rng ByteRange, sink io.Writer, controls Controls, opts FetchOptions) FetchResult {
	o := httpOpts{
		connectTimeoutMs: opts.ConnectTimeout,
		proxy:            opts.Proxy,
		verifyCA:         opts.VerifyCA,
		caPath:           opts.CAPath,
		verifyHost:       opts.VerifyHost,
		cookieList:       opts.CookieList,
		headers:          opts.Headers,
	}
	client, err := buildClient(o)
	if err != nil {
		return FetchResult{Cause: PermanentError, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return FetchResult{Cause: PermanentError, Err: err}
	}
	applyHeaders(req, o.headers)
	if rng.End < 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", rng.Begin))
	} else {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Begin, rng.End-1))
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return FetchResult{Cause: Canceled, Err: err}
		}
		return FetchResult{Cause: TransientError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && rng.Begin == 0 {
		// Server ignored the Range header but we're reading from the start;
		// acceptable for single open-ended slices.
	} else if resp.StatusCode != http.StatusPartialContent {
		cause := PermanentError
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			cause = TransientError
		}
		return FetchResult{Cause: cause, Err: fmt.Errorf("transport: unexpected status %d", resp.StatusCode)}
	}

	written, cause, err := copyWithControls(ctx, sink, resp.Body, controls)
	if cause == EOF && rng.End >= 0 {
		// A bounded range that hit EOF means the server delivered exactly
		// the requested bytes; report RangeComplete per spec §4.7.
		cause = RangeComplete
	}
	return FetchResult{
		BytesWritten: written,
		Cause:        cause,
		Err:          err,
		EffectiveURL: resp.Request.URL.String(),
	}
}

const bufferSize = 8 * 1024 * 1024 // 8MiB, matches teacher's utils.DefaultBufferSize

// rateLimitChunk bounds each Limiter.WaitN call so it never exceeds a
// burst configured smaller than bufferSize (spec §4.8 max_download_speed).
const rateLimitChunk = 32 * 1024

func copyWithControls(ctx context.Context, dst io.Writer, src io.Reader, controls Controls) (int64, TerminalCause, error) {
	buf := make([]byte, bufferSize)
	var total int64
	for {
		select {
		case <-controls.Cancel:
			return total, Canceled, ctx.Err()
		default:
		}
		if controls.Suspend != nil {
			if err := controls.Suspend(ctx); err != nil {
				return total, Canceled, err
			}
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			// Rate limiters are configured with a burst sized to one
			// second's budget, which can be smaller than bufferSize; feed
			// WaitN in bounded pieces so a single fast read never exceeds it.
			for off := 0; off < n; off += rateLimitChunk {
				end := off + rateLimitChunk
				if end > n {
					end = n
				}
				if controls.Limiter != nil {
					if err := controls.Limiter.WaitN(ctx, end-off); err != nil {
						return total, Canceled, err
					}
				}
				if _, writeErr := dst.Write(buf[off:end]); writeErr != nil {
					return total, TransientError, writeErr
				}
				total += int64(end - off)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return total, EOF, nil
			}
			if errors.Is(readErr, context.Canceled) {
				return total, Canceled, readErr
			}
			return total, TransientError, readErr
		}
	}
}

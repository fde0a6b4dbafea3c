package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
)

// FileTransport implements Transport for local file:// resources (spec §6
// "speed caps do not apply to FILE"). The teacher has no equivalent; this
// is new, mirroring the shape of HTTPTransport so the rest of the engine
// stays transport-agnostic.
type FileTransport struct{}

func NewFileTransport() *FileTransport { return &FileTransport{} }

func pathFromFileURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("transport: not a file:// URL: %s", rawURL)
	}
	if u.Path == "" {
		return "", fmt.Errorf("transport: empty file path in %s", rawURL)
	}
	return u.Path, nil
}

func (t *FileTransport) Probe(ctx context.Context, rawURL string, opts ProbeOptions) (Metadata, error) {
	path, err := pathFromFileURL(rawURL)
	if err != nil {
		return Metadata{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("transport: stat %s: %w", path, err)
	}
	return Metadata{
		EffectiveURL:  rawURL,
		TotalSize:     info.Size(),
		AcceptsRanges: true,
	}, nil
}

func (t *FileTransport) Fetch(ctx context.Context, rawURL string, rng ByteRange, sink io.Writer, controls Controls, opts FetchOptions) FetchResult {
	path, err := pathFromFileURL(rawURL)
	if err != nil {
		return FetchResult{Cause: PermanentError, Err: err}
	}
	f, err := os.Open(path)
	if err != nil {
		return FetchResult{Cause: PermanentError, Err: err}
	}
	defer f.Close()
	if _, err := f.Seek(rng.Begin, io.SeekStart); err != nil {
		return FetchResult{Cause: PermanentError, Err: err}
	}
	var src io.Reader = f
	bounded := rng.End >= 0
	if bounded {
		src = io.LimitReader(f, rng.End-rng.Begin)
	}
	written, cause, err := copyWithControls(ctx, sink, src, controls)
	if cause == EOF && bounded {
		cause = RangeComplete
	}
	return FetchResult{BytesWritten: written, Cause: cause, Err: err, EffectiveURL: rawURL}
}

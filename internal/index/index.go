// Package index persists the sidecar manifest describing slice progress
// (spec §4.4, §6). It has no direct analog in the teacher, which infers
// resumability from the size of leftover .partN files on disk
// (internal/downloaders/http/multi-chunk-handlers.go's os.Stat check); this
// package generalizes that same "trust what's durable on disk" idea into an
// explicit, versioned, atomically-rewritten record, using the teacher's
// write-to-temp-then-rename finalize idiom
// (internal/downloaders/http/simple-downloader.go) for the index file too.
package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"zoe/internal/sliceset"
)

const schemaVersion uint32 = 1

// Suffix is appended to the target file path to name the index file
// (spec §6).
const Suffix = ".zoe.idx"

// TempSuffix is appended to the target file path to name the temporary
// data file (spec §6).
const TempSuffix = ".zoe.tmp"

// Record is the persisted sidecar manifest (spec §3 "Index record").
type Record struct {
	SchemaVersion uint32
	OriginURL     string
	EffectiveURL  string
	TotalSize     int64 // -1 = unknown
	CreatedAt     int64 // unix ms
	UpdatedAt     int64 // unix ms
	SlicePolicy   uint8
	PolicyValue   int64
	Slices        []sliceset.Slice
}

// Mismatch is returned by Load when a persisted record cannot describe a
// resumption of the requested download (spec §4.4).
type Mismatch struct {
	Reason string // "URL_DIFFERENT", "TMP_FILE_SIZE_ERROR", "INVALID_INDEX_FORMAT"
	Detail string
}

func (m *Mismatch) Error() string { return fmt.Sprintf("index: %s: %s", m.Reason, m.Detail) }

// Store manages one index file, adjacent to the temp data file.
type Store struct {
	path string
}

// New returns a Store for the sidecar of targetPath.
func New(targetPath string) *Store {
	return &Store{path: targetPath + Suffix}
}

// TempDataPath returns the temp data file path for targetPath.
func TempDataPath(targetPath string) string { return targetPath + TempSuffix }

// Exists reports whether an index file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the on-disk index file path.
func (s *Store) Path() string { return s.path }

// Load reads and validates the index record. A structural decode failure
// yields *Mismatch{Reason: "INVALID_INDEX_FORMAT"}; callers should treat
// that as "start fresh" per spec §4.4.
func (s *Store) Load() (*Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rec, err := decode(bufio.NewReader(f))
	if err != nil {
		return nil, &Mismatch{Reason: "INVALID_INDEX_FORMAT", Detail: err.Error()}
	}
	if rec.SchemaVersion != schemaVersion {
		return nil, &Mismatch{Reason: "INVALID_INDEX_FORMAT", Detail: fmt.Sprintf("schema version %d unsupported", rec.SchemaVersion)}
	}
	return rec, nil
}

// ValidateAgainst checks a loaded record against the requested download,
// per spec §4.4 URL_DIFFERENT / TMP_FILE_SIZE_ERROR.
func ValidateAgainst(rec *Record, originURL string, tmpFileSize int64) error {
	if rec.OriginURL != originURL && rec.EffectiveURL != originURL {
		return &Mismatch{Reason: "URL_DIFFERENT", Detail: fmt.Sprintf("index has %q, requested %q", rec.OriginURL, originURL)}
	}
	if rec.TotalSize >= 0 {
		var want int64
		for _, sl := range rec.Slices {
			if sl.End > want {
				want = sl.End
			}
		}
		if want > 0 && tmpFileSize > want {
			return &Mismatch{Reason: "TMP_FILE_SIZE_ERROR", Detail: fmt.Sprintf("temp file is %d bytes, index expects at most %d", tmpFileSize, want)}
		}
	}
	return nil
}

// Expired reports whether the record's CreatedAt exceeds ttl, per spec
// §4.4. ttl <= 0 means "never expires".
func (rec *Record) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	created := time.UnixMilli(rec.CreatedAt)
	return now.Sub(created) > ttl
}

// Save atomically writes rec: write-to-temp, fsync, rename (spec §4.4).
func (s *Store) Save(rec *Record) error {
	tmp := s.path + ".write"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("index: create temp: %w", err)
	}
	buf := bufio.NewWriter(f)
	if err := encode(buf, rec); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("index: encode: %w", err)
	}
	if err := buf.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("index: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("index: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("index: close: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("index: rename: %w", err)
	}
	return nil
}

// Delete removes the index file, ignoring a not-exist error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if n > 64*1024 {
		return "", fmt.Errorf("string length %d exceeds sanity limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func encode(w io.Writer, rec *Record) error {
	if err := binary.Write(w, binary.BigEndian, schemaVersion); err != nil {
		return err
	}
	if err := writeString(w, rec.OriginURL); err != nil {
		return err
	}
	if err := writeString(w, rec.EffectiveURL); err != nil {
		return err
	}
	fields := []int64{rec.TotalSize, rec.CreatedAt, rec.UpdatedAt}
	for _, v := range fields {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.BigEndian, rec.SlicePolicy); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, rec.PolicyValue); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(rec.Slices))); err != nil {
		return err
	}
	for _, sl := range rec.Slices {
		if err := binary.Write(w, binary.BigEndian, sl.Begin); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, sl.End); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, sl.Downloaded); err != nil {
			return err
		}
	}
	return nil
}

func decode(r io.Reader) (*Record, error) {
	rec := &Record{}
	if err := binary.Read(r, binary.BigEndian, &rec.SchemaVersion); err != nil {
		return nil, err
	}
	var err error
	if rec.OriginURL, err = readString(r); err != nil {
		return nil, err
	}
	if rec.EffectiveURL, err = readString(r); err != nil {
		return nil, err
	}
	for _, dst := range []*int64{&rec.TotalSize, &rec.CreatedAt, &rec.UpdatedAt} {
		if err := binary.Read(r, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}
	if err := binary.Read(r, binary.BigEndian, &rec.SlicePolicy); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &rec.PolicyValue); err != nil {
		return nil, err
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	if count > 1_000_000 {
		return nil, fmt.Errorf("slice count %d exceeds sanity limit", count)
	}
	rec.Slices = make([]sliceset.Slice, count)
	for i := range rec.Slices {
		if err := binary.Read(r, binary.BigEndian, &rec.Slices[i].Begin); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &rec.Slices[i].End); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &rec.Slices[i].Downloaded); err != nil {
			return nil, err
		}
		rec.Slices[i].Status = sliceset.Pending
		if rec.Slices[i].End >= 0 && rec.Slices[i].Downloaded == rec.Slices[i].End-rec.Slices[i].Begin {
			rec.Slices[i].Status = sliceset.Completed
		}
	}
	return rec, nil
}

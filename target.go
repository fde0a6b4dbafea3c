package zoe

import (
	"os"

	"zoe/internal/targetfile"
)

// targetFileHandle pairs a targetfile.File with the path it was opened
// from, since verify() needs to reopen the same file read-only after the
// writable handle closes.
type targetFileHandle struct {
	*targetfile.File
	path string
}

func openTargetFile(path string, knownSize int64) (*targetFileHandle, error) {
	if _, err := statSize(path); err == nil {
		f, err := targetfile.Open(path)
		if err != nil {
			return nil, err
		}
		return &targetFileHandle{File: f, path: path}, nil
	}
	f, err := targetfile.Create(path, knownSize)
	if err != nil {
		return nil, err
	}
	return &targetFileHandle{File: f, path: path}, nil
}

func statSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

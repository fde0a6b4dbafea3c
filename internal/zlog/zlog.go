// Package zlog centralizes zerolog setup so every component logs with the
// same timestamp format and "op" component tag.
package zlog

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once     sync.Once
	base     zerolog.Logger
	debugSet bool
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// SetDebug toggles debug-level logging for the whole process. Call once at
// startup before any component logs.
func SetDebug(enabled bool) {
	debugSet = enabled
	if enabled {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func root() zerolog.Logger {
	once.Do(func() {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: false}).With().Timestamp().Logger()
	})
	return base
}

// New returns a logger tagged with the given component name, mirroring the
// teacher's GetLogger(name) helper.
func New(component string) zerolog.Logger {
	return root().With().Str("op", component).Logger()
}

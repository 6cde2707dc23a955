package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// L is the process-wide logger. Packages log through it directly instead of
// threading a logger value around.
var L zerolog.Logger

var logFile *os.File

func init() {
	L = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func SetLogLevel(level zerolog.Level) {
	L = L.Level(level)
}

// SetLogOutput switches logging to the given file, optionally keeping the
// console writer as a second sink.
func SetLogOutput(dir, name string, alsoConsole bool) error {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = f

	var w io.Writer = f
	if alsoConsole {
		w = zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	L = zerolog.New(w).With().Timestamp().Logger().Level(L.GetLevel())
	return nil
}

func Close() {
	if logFile != nil {
		_ = logFile.Close()
	}
}

package logging

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// FileEnv overrides the log file path. "-" disables file output.
const FileEnv = "AUDIO_INGEST_LOG_FILE"

// New creates a new zerolog logger with console and file output
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel creates a logger filtered at the named level. Unknown level
// names fall back to info.
func NewWithLevel(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return newLogger(console, getLogPath()).Level(lvl)
}

// newLogger writes to console and, when path is set and can be opened, to
// path
func newLogger(console io.Writer, path string) zerolog.Logger {
	writers := []io.Writer{console}
	if f := openLogFile(path); f != nil {
		writers = append(writers, f)
	}

	// Multi-writer: console + file
	multi := zerolog.MultiLevelWriter(writers...)

	return zerolog.New(multi).With().Timestamp().Caller().Logger()
}

func openLogFile(path string) *os.File {
	if path == "" {
		return nil
	}
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil
	}
	return f
}

// getLogPath returns the log file path, empty when file output is disabled
func getLogPath() string {
	if path, ok := os.LookupEnv(FileEnv); ok {
		if path == "-" {
			return ""
		}
		return path
	}

	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Logs"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/state"
		}
	}

	return filepath.Join(base, "audio-ingest", "audio-ingest.log")
}

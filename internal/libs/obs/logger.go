// Package obs provides logging and metrics shared by every sqlpoll component.
package obs

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures the optional rotated log file
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// InitLogger initializes the global logger
func InitLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Pretty print in development
	if os.Getenv("ENV") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// InitFileLogger initializes the global logger and tees JSON output into a size-rotated file.
// The returned closer flushes and closes the file.
func InitFileLogger(level string, opts FileOptions) io.Closer {
	InitLogger(level)
	if opts.Path == "" {
		return nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}

	var console io.Writer = os.Stderr
	if os.Getenv("ENV") == "dev" {
		console = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	log.Logger = log.Output(zerolog.MultiLevelWriter(console, file))
	return file
}

// Logger returns a new logger with the given component name
func Logger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

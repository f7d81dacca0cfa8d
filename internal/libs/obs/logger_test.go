package obs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected zerolog.Level
	}{
		{"info level", "info", zerolog.InfoLevel},
		{"debug level", "debug", zerolog.DebugLevel},
		{"warn level", "warn", zerolog.WarnLevel},
		{"invalid level defaults to info", "invalid", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level)
			if zerolog.GlobalLevel() != tt.expected {
				t.Errorf("expected level %v, got %v", tt.expected, zerolog.GlobalLevel())
			}
		})
	}
}

func TestLogger(t *testing.T) {
	logger := Logger("test-component")

	// Verify logger has the component field set
	ctx := logger.With().Logger().GetLevel()
	if ctx == zerolog.Disabled {
		t.Error("logger should not be disabled")
	}
}

func TestInitFileLogger(t *testing.T) {
	previous := log.Logger
	t.Cleanup(func() { log.Logger = previous })

	path := filepath.Join(t.TempDir(), "sqlpoll.log")
	closer := InitFileLogger("info", FileOptions{Path: path, MaxSizeMB: 1})

	fileLogger := Logger("file-test")
	fileLogger.Info().Msg("written to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to contain output")
	}
}

func TestInitFileLoggerWithoutPath(t *testing.T) {
	closer := InitFileLogger("info", FileOptions{})
	if err := closer.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}

package internal

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is the name used for config and data directories
	DefaultAppName        = "keysieve"
	DefaultConfigPath     = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultStorePath      = filepath.Join(DefaultConfigPath, "addresses.db")
	DefaultDatasetPath    = "Bitcoin_addresses_LATEST.txt"
	DefaultHitLogPath     = "plutus.txt"
	DefaultNotifyTokenEnv = "KEYSIEVE_NOTIFY_TOKEN"

	// DefaultFalsePositiveRate is the filter's target false positive rate
	DefaultFalsePositiveRate = 0.000001
	// DefaultBatchSize is the number of rows per bulk insert statement
	DefaultBatchSize = 400
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// NewLogger builds the process logger from the configured level name.
// An unknown level falls back to info.
func NewLogger(level string, pretty bool) zerolog.Logger {
	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

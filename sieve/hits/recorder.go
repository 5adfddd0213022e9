package hits

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrAppend is returned when a record could not be durably appended. The log
// is rolled back to its previous size, so no partial block remains.
var ErrAppend = errors.New("failed to append hit record")

// logFile is the subset of *os.File the recorder writes through.
type logFile interface {
	Write(p []byte) (int, error)
	Sync() error
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	Close() error
}

// Recorder appends hit records to a log file. Appends from concurrent workers
// are serialized and each record lands as one contiguous block.
type Recorder struct {
	mu       sync.Mutex
	file     logFile
	path     string
	appended int64
	logger   zerolog.Logger
}

// Open opens the hit log at path for appending, creating it if absent.
func Open(path string, logger zerolog.Logger) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create hit log directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open hit log %s: %w", path, err)
	}

	logger = logger.With().Str("component", "hits").Str("path", path).Logger()
	logger.Debug().Msg("hit log opened")

	return &Recorder{file: file, path: path, logger: logger}, nil
}

// Path returns the log file path.
func (r *Recorder) Path() string {
	return r.path
}

// Appended returns how many records this Recorder has written.
func (r *Recorder) Appended() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appended
}

// Append durably writes rec as a single block.
func (r *Recorder) Append(rec HitRecord) error {
	if rec.FoundAt.IsZero() {
		rec.FoundAt = time.Now().UTC()
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrAppend, err)
	}
	block := rec.Format()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return fmt.Errorf("%w: recorder closed", ErrAppend)
	}

	info, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAppend, err)
	}
	size := info.Size()

	n, err := r.file.Write(block)
	if err == nil && n < len(block) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(block))
	}
	if err == nil {
		err = r.file.Sync()
	}
	if err != nil {
		if n > 0 {
			if terr := r.file.Truncate(size); terr != nil {
				r.logger.Error().Err(terr).Int64("size", size).Msg("failed to roll back partial hit record")
			}
		}
		return fmt.Errorf("%w: %s: %v", ErrAppend, rec.Address, err)
	}

	r.appended++
	r.logger.Info().
		Str("address", rec.Address).
		Time("foundAt", rec.FoundAt).
		Msg("hit recorded")
	return nil
}

// Close closes the log file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

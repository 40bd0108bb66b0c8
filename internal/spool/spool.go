// Package spool stores uploaded files on disk while they are imported.
//
// Every upload is written to a uniquely named file and removed once the
// import finishes. A cron-driven sweeper deletes files left behind by a
// crash.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var (
	// ErrTooLarge is returned by Save when the input exceeds maxBytes.
	ErrTooLarge = errors.New("file too large")

	// ErrEmpty is returned by Save when the input has no bytes.
	ErrEmpty = errors.New("file is empty")
)

// Spool manages a directory of temporary upload files.
type Spool struct {
	dir string
}

// New creates the directory if needed.
func New(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{dir: dir}, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// Save copies r into a new file named <uuid><ext> and returns its path and
// size. Inputs over maxBytes or with no bytes are rejected and leave no file.
func (s *Spool) Save(r io.Reader, maxBytes int64, ext string) (string, int64, error) {
	path := filepath.Join(s.dir, uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create spool file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	switch {
	case err != nil:
		err = fmt.Errorf("write spool file: %w", err)
	case n > maxBytes:
		err = ErrTooLarge
	case n == 0:
		err = ErrEmpty
	}
	if err != nil {
		_ = s.Remove(path)
		return "", 0, err
	}

	return path, n, nil
}

// Remove deletes a spooled file. Removing a missing file is not an error.
func (s *Spool) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove spool file: %w", err)
	}
	return nil
}

// Sweep deletes regular files older than maxAge and returns how many it removed.
func (s *Spool) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read spool dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed concurrently by its own request.
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := s.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

// StartSweeper runs Sweep on the cron schedule spec until ctx is done.
// Spec uses the standard five-field syntax or descriptors like "@every 15m".
func (s *Spool) StartSweeper(ctx context.Context, spec string, maxAge time.Duration) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := s.Sweep(maxAge)
		if err != nil {
			slog.Error("spool sweep failed", "dir", s.dir, "removed", n, "error", err)
			return
		}
		if n > 0 {
			slog.Info("spool sweep removed stale files", "dir", s.dir, "removed", n)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule spool sweep %q: %w", spec, err)
	}

	c.Start()
	slog.Info("spool sweeper started", "dir", s.dir, "schedule", spec, "max_age", maxAge)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		slog.Info("spool sweeper stopped")
	}()

	return nil
}

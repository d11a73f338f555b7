package logger

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// backupStamp sorts lexically in time order, so backups are ordered by name
const backupStamp = "20060102T150405.000000"

// RotationOptions bound how much log history a run leaves on disk
type RotationOptions struct {
	MaxSizeMB  int  // start a new file past this size
	MaxAgeDays int  // drop backups older than this, 0 keeps all
	MaxBackups int  // keep at most this many backups, 0 keeps all
	Compress   bool // gzip backups
}

// RotatingWriter is the file sink behind the logger. Backups are named
// <file>.<stamp>[.gz] and pruned every time the file rolls over.
type RotatingWriter struct {
	mu   sync.Mutex
	path string
	opts RotationOptions
	file *os.File
	size int64
	now  func() time.Time

	compressing sync.WaitGroup
}

// NewRotatingWriter opens path for appending and prunes stale backups
func NewRotatingWriter(path string, opts RotationOptions) (*RotatingWriter, error) {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 50
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{path: path, opts: opts, now: time.Now}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()
	return w, nil
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file, w.size = file, info.Size()
	return nil
}

func (w *RotatingWriter) limit() int64 {
	return int64(w.opts.MaxSizeMB) << 20
}

// Write appends p. A single record larger than the limit still lands in
// one file, it is never split.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.limit() {
		if err := w.rollOver(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close waits for pending compression and closes the file
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()

	w.compressing.Wait()
	return err
}

// rollOver moves the current file aside. Called with mu held.
func (w *RotatingWriter) rollOver() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	backup := w.path + "." + w.now().Format(backupStamp)
	if err := os.Rename(w.path, backup); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	if err := w.open(); err != nil {
		return err
	}

	if w.opts.Compress {
		w.compressing.Add(1)
		go func() {
			defer w.compressing.Done()
			if err := gzipFile(backup); err == nil {
				w.prune()
			}
		}()
	}
	w.prune()
	return nil
}

// backups lists rotated files, oldest first
func (w *RotatingWriter) backups() []string {
	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return nil
	}
	prefix := filepath.Base(w.path) + "."
	var out []string
	for _, m := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), prefix), ".gz")
		if _, err := time.Parse(backupStamp, stamp); err == nil {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// prune drops backups past MaxBackups or older than MaxAgeDays
func (w *RotatingWriter) prune() {
	backups := w.backups()

	if w.opts.MaxBackups > 0 && len(backups) > w.opts.MaxBackups {
		for _, old := range backups[:len(backups)-w.opts.MaxBackups] {
			_ = os.Remove(old)
		}
		backups = backups[len(backups)-w.opts.MaxBackups:]
	}

	if w.opts.MaxAgeDays <= 0 {
		return
	}
	cutoff := w.now().AddDate(0, 0, -w.opts.MaxAgeDays)
	for _, b := range backups {
		if info, err := os.Stat(b); err == nil && info.ModTime().Before(cutoff) {
			_ = os.Remove(b)
		}
	}
}

// gzipFile replaces name with name.gz
func gzipFile(name string) (err error) {
	src, err := os.Open(name)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(name + ".gz")
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(name + ".gz")
		}
	}()

	zw := gzip.NewWriter(dst)
	if _, err = io.Copy(zw, src); err != nil {
		return errors.Join(err, zw.Close())
	}
	if err = zw.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}

package logger

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppedClock advances one second per call so every backup gets its own stamp
func steppedClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestNewRotatingWriter(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "nested", "run.log")

	rw, err := NewRotatingWriter(logFile, RotationOptions{MaxSizeMB: 10, MaxAgeDays: 7})
	require.NoError(t, err)
	defer rw.Close()

	_, err = os.Stat(logFile)
	assert.NoError(t, err)
}

func TestRotatingWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "run.log")

	rw, err := NewRotatingWriter(logFile, RotationOptions{MaxSizeMB: 1})
	require.NoError(t, err)
	defer rw.Close()

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	_, err = rw.Write(chunk)
	require.NoError(t, err)
	_, err = rw.Write(chunk)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "run.log.*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	info, err := os.Stat(logFile)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), info.Size())
}

func TestRotatingWriter_OversizedFirstWriteDoesNotRotate(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "run.log")

	rw, err := NewRotatingWriter(logFile, RotationOptions{MaxSizeMB: 1})
	require.NoError(t, err)
	defer rw.Close()

	_, err = rw.Write([]byte(strings.Repeat("y", 2*1024*1024)))
	require.NoError(t, err)

	matches, _ := filepath.Glob(filepath.Join(dir, "run.log.*"))
	assert.Empty(t, matches)
}

func TestRotatingWriter_KeepsNewestBackups(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "run.log")

	rw, err := NewRotatingWriter(logFile, RotationOptions{MaxSizeMB: 1, MaxBackups: 2})
	require.NoError(t, err)
	rw.now = steppedClock()

	chunk := bytes.Repeat([]byte("z"), 700*1024)
	for i := 0; i < 5; i++ {
		_, err = rw.Write(chunk)
		require.NoError(t, err)
	}
	require.NoError(t, rw.Close())

	backups := rw.backups()
	require.Len(t, backups, 2)
	assert.True(t, strings.HasSuffix(backups[1], "20260101T000004.000000"))
}

func TestRotatingWriter_CompressesBackups(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "run.log")

	rw, err := NewRotatingWriter(logFile, RotationOptions{MaxSizeMB: 1, Compress: true})
	require.NoError(t, err)
	rw.now = steppedClock()

	first := bytes.Repeat([]byte("a"), 700*1024)
	_, err = rw.Write(first)
	require.NoError(t, err)
	_, err = rw.Write(bytes.Repeat([]byte("b"), 700*1024))
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "run.log.*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.True(t, strings.HasSuffix(matches[0], ".gz"))

	f, err := os.Open(matches[0])
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, first, data)
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "run.log"), RotationOptions{})
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	_, err = rw.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

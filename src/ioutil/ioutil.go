// Package ioutil is rowvault's path/IO layer: the only place in the
// module that touches the filesystem directly. Every write goes
// through AtomicWrite, whose write-to-temp, lock, flush, rename
// sequence is the durability primitive the rest of the module builds
// on (§4.1).
//
// Locking uses an exclusive advisory lock via golang.org/x/sys/unix.Flock
// for a single-writer-at-a-time guarantee around the temp-then-rename
// sequence.
package ioutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"rowvault/src/cryptox"
	"rowvault/src/rvErrors"
)

// Join composes path elements the way filepath.Join does, exposed
// here so callers never need to import path/filepath themselves and
// so a future implementation could swap in a virtual filesystem
// without touching call sites.
func Join(elems ...string) string {
	return filepath.Join(elems...)
}

// RemoveTree recursively removes path and everything under it. Used
// for table/database deletion after they've been renamed to a
// tombstone name.
func RemoveTree(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "remove tree "+path)
	}
	return nil
}

// AtomicWrite implements §4.1's contract: write to
// "<path>.wal.<random>", take an exclusive advisory lock, write the
// full content, flush and fsync, release the lock, then rename onto
// path. A reader of path never observes a truncated or interleaved
// write. On any failure after the temp file is created, the temp file
// is removed and the error is returned; path is left untouched.
func AtomicWrite(path string, content []byte, logger *zap.SugaredLogger) error {
	logger = orNop(logger)

	dir := filepath.Dir(path)
	tmpPath := path + ".wal." + cryptox.RandomSuffix()

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "create wal file")
	}

	if writeErr := writeLocked(f, content); writeErr != nil {
		f.Close()
		os.Remove(tmpPath)
		logger.Warnw("atomic write failed, temp file removed", "path", path, "error", writeErr)
		return rvErrors.Wrap(writeErr, rvErrors.ErrIOFailure, "write wal file")
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "close wal file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "rename wal file")
	}

	fsyncDir(dir)

	logger.Debugw("atomic write committed", "path", path, "bytes", len(content))
	return nil
}

// writeLocked holds an exclusive advisory lock on f for the duration
// of the write, guaranteeing single-writer serialization across
// processes sharing the same storage root (§5).
func writeLocked(f *os.File, content []byte) error {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return errors.Wrap(err, "acquire exclusive lock")
	}
	defer unix.Flock(fd, unix.LOCK_UN)

	if _, err := f.Write(content); err != nil {
		return errors.Wrap(err, "write content")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "fsync")
	}
	return nil
}

// fsyncDir fsyncs a directory so the rename above is itself durable
// across a crash, not just atomic while the process is alive.
func fsyncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}

// ReadAll returns the full content of path.
func ReadAll(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rvErrors.Wrap(err, rvErrors.ErrNotFound, "read "+path)
		}
		return nil, rvErrors.Wrap(err, rvErrors.ErrIOFailure, "read "+path)
	}
	return data, nil
}

// ReadLine returns the content of the index-th newline-delimited
// record in path without loading the whole file, used for cheap
// single-column row lookups (§4.1).
func ReadLine(path string, index int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", rvErrors.Wrap(err, rvErrors.ErrNotFound, "read line "+path)
		}
		return "", rvErrors.Wrap(err, rvErrors.ErrIOFailure, "read line "+path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for i := 0; scanner.Scan(); i++ {
		if i == index {
			return scanner.Text(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", rvErrors.Wrap(err, rvErrors.ErrIOFailure, "scan "+path)
	}
	return "", rvErrors.Wrap(rvErrors.ErrNotFound, rvErrors.ErrNotFound, "line index out of range")
}

// ReadLines returns every newline-delimited record in path in order.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rvErrors.Wrap(err, rvErrors.ErrNotFound, "read lines "+path)
		}
		return nil, rvErrors.Wrap(err, rvErrors.ErrIOFailure, "read lines "+path)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, rvErrors.Wrap(err, rvErrors.ErrIOFailure, "scan "+path)
	}
	return lines, nil
}

// WriteJSON marshals content and writes it atomically to path.
func WriteJSON(path string, content any, logger *zap.SugaredLogger) error {
	data, err := json.Marshal(content)
	if err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrInternal, "marshal json")
	}
	return AtomicWrite(path, data, logger)
}

// ReadJSON reads path and unmarshals it into out.
func ReadJSON(path string, out any) error {
	data, err := ReadAll(path)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return rvErrors.Wrap(rvErrors.ErrInternal, rvErrors.ErrInternal, "empty metadata file")
		}
		return rvErrors.Wrap(err, rvErrors.ErrInternal, "decode json "+path)
	}
	return nil
}

// Exists reports whether path exists and is a regular file or
// directory (any non-error stat counts).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func orNop(logger *zap.SugaredLogger) *zap.SugaredLogger {
	if logger == nil {
		return zap.NewNop().Sugar()
	}
	return logger
}

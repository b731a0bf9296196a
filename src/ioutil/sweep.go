package ioutil

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// SweepStaleWAL performs a one-shot scan of root for orphaned
// "*.wal.*" temp files older than maxAge and removes them: the temp
// files a cancelled or crashed write leaves behind. It runs only when
// called directly or from a Sweeper; Database.Open does not call it.
func SweepStaleWAL(root string, maxAge time.Duration, logger *zap.SugaredLogger) error {
	logger = orNop(logger)
	cutoff := time.Now().Add(-maxAge)

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !isWALName(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr == nil {
				logger.Infow("swept stale wal file", "path", path, "age", time.Since(info.ModTime()))
			}
		}
		return nil
	})
}

// Sweeper watches a storage root with fsnotify and periodically sweeps
// stale write-ahead temp files that a crashed writer left behind,
// generalizing the file-watching role fsnotify plays in mddb's config
// reload path into a continuous background janitor for a live
// Database. Callers that only need the one-shot behavior can use
// SweepStaleWAL directly and skip starting a Sweeper.
type Sweeper struct {
	root     string
	maxAge   time.Duration
	interval time.Duration
	logger   *zap.SugaredLogger
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a Sweeper for root. Call Start to begin watching
// and Stop to release the underlying fsnotify watcher.
func NewSweeper(root string, maxAge, interval time.Duration, logger *zap.SugaredLogger) (*Sweeper, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, err
	}

	return &Sweeper{
		root:     root,
		maxAge:   maxAge,
		interval: interval,
		logger:   orNop(logger),
		watcher:  watcher,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start runs the sweep loop in a background goroutine: it reacts to
// fsnotify create events by scheduling an immediate sweep pass, and
// otherwise sweeps on a fixed interval as a backstop for events the
// watcher missed (e.g. a rename across an unwatched subdirectory).
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case event, ok := <-s.watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) && isWALName(filepath.Base(event.Name)) {
					_ = SweepStaleWAL(s.root, s.maxAge, s.logger)
				}
			case <-ticker.C:
				_ = SweepStaleWAL(s.root, s.maxAge, s.logger)
			case err, ok := <-s.watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warnw("sweeper watch error", "error", err)
			}
		}
	}()
}

// Stop halts the sweep loop and closes the underlying watcher.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
	s.watcher.Close()
}

func isWALName(name string) bool {
	return strings.Contains(name, ".wal.")
}

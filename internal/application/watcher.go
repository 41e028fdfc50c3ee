package application

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
)

type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

func (s fileState) equal(o fileState) bool {
	return s.exists == o.exists && s.size == o.size && s.modTime.Equal(o.modTime)
}

// fileWatcher polls a fixed set of files and calls onChange once per tick in
// which any of them changed, appeared or disappeared. When nextInterval is set
// it is consulted after every onChange and the ticker follows its value.
type fileWatcher struct {
	paths        []string
	interval     time.Duration
	onChange     func()
	nextInterval func() time.Duration
	logger       *zap.Logger

	stat  func(string) (os.FileInfo, error)
	state map[string]fileState
}

func newFileWatcher(paths []string, interval time.Duration, onChange func(), logger *zap.Logger) *fileWatcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &fileWatcher{
		paths:    paths,
		interval: interval,
		onChange: onChange,
		logger:   logger,
		stat:     os.Stat,
		state:    make(map[string]fileState, len(paths)),
	}
}

func (w *fileWatcher) run(ctx context.Context) {
	w.scan()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.scan() {
				w.onChange()
				w.retune(ticker)
			}
		}
	}
}

func (w *fileWatcher) retune(ticker *time.Ticker) {
	if w.nextInterval == nil {
		return
	}
	next := w.nextInterval()
	if next <= 0 || next == w.interval {
		return
	}
	w.logger.Info("poll interval changed",
		zap.Duration("from", w.interval),
		zap.Duration("to", next),
	)
	w.interval = next
	ticker.Reset(next)
}

// scan refreshes the recorded state and reports whether anything changed
// since the previous scan. The first scan only records.
func (w *fileWatcher) scan() bool {
	changed := false
	for _, path := range w.paths {
		next := fileState{}
		info, err := w.stat(path)
		switch {
		case err == nil:
			next = fileState{exists: true, size: info.Size(), modTime: info.ModTime()}
		case errors.Is(err, fs.ErrNotExist):
		default:
			w.logger.Warn("cannot stat watched file", zap.String("path", path), zap.Error(err))
			continue
		}

		prev, seen := w.state[path]
		w.state[path] = next
		if seen && !prev.equal(next) {
			w.logger.Debug("watched file changed", zap.String("path", path))
			changed = true
		}
	}
	return changed
}

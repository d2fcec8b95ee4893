package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
)

// RemovalHandler is invoked when the watched snapshot disappears.
type RemovalHandler func(path string)

// Watcher 监听快照目录，快照被外部删除或移走时通知订阅者。
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	handler RemovalHandler

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher 监听 index 所在目录。
func NewWatcher(index *FileIndex, handler RemovalHandler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create snapshot watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(index.Path())); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch index directory: %w", err)
	}

	w := &Watcher{
		path: index.Path(),
		fsw:  fsw,
		handler: func(path string) {
			index.Invalidate()
			if handler != nil {
				handler(path)
			}
		},
		done: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()

	logger.Infow("Index snapshot watcher started", "path", w.path)
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				logger.Warnw("Index snapshot removed externally", "path", w.path, "op", ev.Op.String())
				w.handler(w.path)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Errorw("Index snapshot watcher error", "error", err)
		}
	}
}

// Stop 停止监听，可重复调用。
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

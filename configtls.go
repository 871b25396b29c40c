package pgwire

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// CAWatcher watches a set of CA-certificate files on disk and keeps a
// live *x509.CertPool (via TLSSettings) in sync with their contents,
// so a long-running process picks up a rotated CA bundle without a
// restart. Callers read the current TLSSettings with Current(); a reload
// reaches only ConnectionConfigs built from Current() after it. Pool and
// Connect do not consult a CAWatcher themselves.
type CAWatcher struct {
	paths   []string
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	current TLSSettings

	closed atomic.Bool
	done   chan struct{}
}

// WatchCACertificates loads the PEM files at paths into a TLSSettings
// (Enabled/Enforce copied from base) and starts watching them for
// writes/renames, reloading the bundle on change. Callers must call
// Close when the watcher is no longer needed.
func WatchCACertificates(base TLSSettings, paths []string) (*CAWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &ConfigError{Reason: "creating CA certificate watcher: " + err.Error()}
	}

	cw := &CAWatcher{
		paths:   paths,
		watcher: w,
		done:    make(chan struct{}),
	}

	if err := cw.reload(base); err != nil {
		w.Close()
		return nil, err
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			w.Close()
			return nil, &ConfigError{Reason: "watching CA certificate file " + p + ": " + err.Error()}
		}
	}

	go cw.loop(base)
	return cw, nil
}

func (cw *CAWatcher) reload(base TLSSettings) error {
	certs := make([][]byte, 0, len(cw.paths))
	for _, p := range cw.paths {
		pem, err := os.ReadFile(p)
		if err != nil {
			return &ConfigError{Reason: "reading CA certificate " + p + ": " + err.Error()}
		}
		certs = append(certs, pem)
	}
	next := base
	next.CACertificates = certs
	if _, err := next.Pool(); err != nil {
		return err
	}
	cw.mu.Lock()
	cw.current = next
	cw.mu.Unlock()
	return nil
}

func (cw *CAWatcher) loop(base TLSSettings) {
	for {
		select {
		case <-cw.done:
			return
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			_ = cw.reload(base)
		case _, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Current returns the most recently loaded TLSSettings.
func (cw *CAWatcher) Current() TLSSettings {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.current
}

// Close stops the watcher. Idempotent.
func (cw *CAWatcher) Close() error {
	if !cw.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(cw.done)
	return cw.watcher.Close()
}

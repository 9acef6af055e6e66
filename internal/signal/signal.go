// Package signal implements file-based run control. Dropping a file
// named "cancel" or "pause" into the workspace signals directory stops
// or pauses an in-flight run, which lets a second terminal control a
// long collaboration without process plumbing.
package signal

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager watches the workspace signals directory for control files.
type Manager struct {
	signalsDir string

	mu         sync.RWMutex
	cancelFlag bool
	pauseFlag  bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewManager creates a signal manager for the given workspace. The
// watcher is optional; when it cannot be created, Should* fall back to
// stat polling.
func NewManager(workspace string) (*Manager, error) {
	signalsDir := filepath.Join(workspace, "collaboration", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	m := &Manager{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return m, nil
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		return m, nil
	}
	m.watcher = watcher

	go m.watch()
	return m, nil
}

// watch monitors the signals directory for cancel/pause files.
func (m *Manager) watch() {
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			m.mu.Lock()
			switch filepath.Base(event.Name) {
			case "cancel":
				m.cancelFlag = true
			case "pause":
				m.pauseFlag = true
			}
			m.mu.Unlock()
		case <-m.watcher.Errors:
			// keep watching
		}
	}
}

// ShouldCancel reports whether a cancel signal has been received.
func (m *Manager) ShouldCancel() bool {
	// Also check the file directly in case the watcher missed it.
	if _, err := os.Stat(filepath.Join(m.signalsDir, "cancel")); err == nil {
		m.mu.Lock()
		m.cancelFlag = true
		m.mu.Unlock()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancelFlag
}

// ShouldPause reports whether a pause signal has been received.
func (m *Manager) ShouldPause() bool {
	if _, err := os.Stat(filepath.Join(m.signalsDir, "pause")); err == nil {
		m.mu.Lock()
		m.pauseFlag = true
		m.mu.Unlock()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pauseFlag
}

// SendCancel creates a cancel signal file.
func (m *Manager) SendCancel() error {
	path := filepath.Join(m.signalsDir, "cancel")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// SendPause creates a pause signal file.
func (m *Manager) SendPause() error {
	path := filepath.Join(m.signalsDir, "pause")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes all signal files and resets signal state.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelFlag = false
	m.pauseFlag = false

	os.Remove(filepath.Join(m.signalsDir, "cancel"))
	os.Remove(filepath.Join(m.signalsDir, "pause"))
}

// Poll invokes onCancel once a cancel signal is observed, checking
// every interval. The returned stop function ends polling.
func (m *Manager) Poll(interval time.Duration, onCancel func()) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if m.ShouldCancel() {
					onCancel()
					return
				}
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// Close shuts down the signal manager.
func (m *Manager) Close() {
	close(m.done)
	if m.watcher != nil {
		m.watcher.Close()
	}
}

package persona

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"
)

// Manager holds the current persona text and optionally reloads it when
// the persona or characters file changes on disk. Edits take effect on
// the next turn; in-flight turns keep the text they started with.
type Manager struct {
	mu      sync.RWMutex
	text    string
	path    string
	botName string

	watcher     *fsnotify.Watcher
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	reloads     int
}

// NewManager loads the persona at path. The returned manager is usable
// immediately; call Start to enable hot reload.
func NewManager(path, botName string) (*Manager, error) {
	text, err := load(path, botName)
	if err != nil {
		return nil, err
	}
	return &Manager{
		text:        text,
		path:        path,
		botName:     botName,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Text returns the current composed persona.
func (m *Manager) Text() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.text
}

// Reloads returns how many hot reloads have been applied.
func (m *Manager) Reloads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reloads
}

// Reload re-reads the persona files immediately.
func (m *Manager) Reload() error {
	text, err := load(m.path, m.botName)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.text = text
	m.reloads++
	m.mu.Unlock()
	logging.Boot("Persona reloaded from %s (%d chars)", m.path, len(text))
	return nil
}

// Start watches the persona directory for changes. Non-blocking; the
// watcher goroutine exits when ctx is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	// Watch the directory, not the file: editors replace files on save,
	// which drops a watch registered on the file itself.
	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	logging.Boot("Persona hot reload watching %s", dir)

	go m.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the goroutine to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh
	m.watcher.Close()
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryBoot).Warn("Persona watcher error: %v", err)
		case <-ticker.C:
			m.processDebounced()
		}
	}
}

func (m *Manager) handleEvent(event fsnotify.Event) {
	if !m.relevantFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	m.mu.Lock()
	m.debounceMap[event.Name] = time.Now()
	m.mu.Unlock()
}

func (m *Manager) relevantFile(name string) bool {
	base := filepath.Base(name)
	return base == filepath.Base(m.path) || base == "characters.yaml"
}

func (m *Manager) processDebounced() {
	m.mu.Lock()
	now := time.Now()
	pending := false
	for path, at := range m.debounceMap {
		if now.Sub(at) >= m.debounceDur {
			delete(m.debounceMap, path)
			pending = true
		}
	}
	m.mu.Unlock()

	if pending {
		if err := m.Reload(); err != nil {
			logging.Get(logging.CategoryBoot).Warn("Persona reload failed, keeping previous text: %v", err)
		}
	}
}

// Package watch rebuilds wrappers when their sources change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a group must stay quiet before it fires.
const DefaultDebounce = 100 * time.Millisecond

// DefaultExtensions are the file types that trigger a rebuild.
var DefaultExtensions = []string{".ts", ".tsx", ".mts", ".js", ".jsx", ".mjs", ".json", ".wasm"}

// Options configures a Watcher.
type Options struct {
	Debounce   time.Duration
	Extensions []string
	// Ignore lists files whose changes never trigger a rebuild, such as
	// generated sources written by the build itself.
	Ignore []string
	Logger *slog.Logger
}

// Watcher groups directories under names and reports, debounced, which
// group changed.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	exts     []string
	ignore   map[string]bool
	logger   *slog.Logger

	mu     sync.Mutex
	groups map[string]string // watched dir -> group
}

// New creates a Watcher.
func New(opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		debounce: opts.Debounce,
		exts:     opts.Extensions,
		ignore:   make(map[string]bool, len(opts.Ignore)),
		logger:   opts.Logger,
		groups:   make(map[string]string),
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if len(w.exts) == 0 {
		w.exts = DefaultExtensions
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}
	for _, p := range opts.Ignore {
		w.ignore[filepath.Clean(p)] = true
	}
	return w, nil
}

// Add watches dirs recursively on behalf of group.
func (w *Watcher) Add(group string, dirs ...string) error {
	for _, dir := range dirs {
		if err := w.addTree(group, dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return nil
}

// addTree skips node_modules, build output and hidden directories.
func (w *Watcher) addTree(group, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && skipDir(info.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		w.mu.Lock()
		w.groups[filepath.Clean(path)] = group
		w.mu.Unlock()
		return nil
	})
}

func skipDir(name string) bool {
	return name == "node_modules" || name == "dist" || strings.HasPrefix(name, ".")
}

// Groups returns the group names being watched.
func (w *Watcher) Groups() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, g := range w.groups {
		if !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	slices.Sort(out)
	return out
}

// Run calls fn with the group name each time a group's files settle after a
// change. Calls never overlap. An error from fn is logged and watching
// continues. Run returns when ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context, group string) error) error {
	done := make(chan struct{})
	defer close(done)

	fire := make(chan string)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			group, ok := w.handle(event)
			if !ok {
				continue
			}
			if t, exists := timers[group]; exists {
				t.Stop()
			}
			timers[group] = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- group:
				case <-done:
				}
			})

		case group := <-fire:
			w.logger.Info("change detected", "group", group)
			if err := fn(ctx, group); err != nil {
				w.logger.Error("rebuild failed", "group", group, "error", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// handle maps an event to its group, watching new directories as they
// appear.
func (w *Watcher) handle(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return "", false
	}
	name := filepath.Clean(event.Name)

	w.mu.Lock()
	group, ok := w.groups[filepath.Dir(name)]
	w.mu.Unlock()
	if !ok {
		return "", false
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if skipDir(info.Name()) {
				return "", false
			}
			if err := w.addTree(group, name); err != nil {
				w.logger.Warn("failed to watch new directory", "dir", name, "error", err)
			}
			return group, true
		}
	}

	if w.ignore[name] || !slices.Contains(w.exts, filepath.Ext(name)) {
		return "", false
	}
	w.logger.Debug("file changed", "group", group, "file", name, "op", event.Op.String())
	return group, true
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Package watch re-runs remediation when tracked source files change.
// Events are debounced so a flurry of editor writes triggers one pass,
// and every changed path goes through the same filters the scanner
// applies before it reaches the handler.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lintmend/lintmend/internal/scanner"
)

// Handler receives the deduplicated batch of changed candidate files
// after each debounce window. It runs on the watch loop goroutine, so
// new events queue up while a pass is in flight.
type Handler func(ctx context.Context, files []string)

// Classifier applies the scan filters to one repo-relative path.
type Classifier interface {
	Classify(rel string) scanner.Candidate
}

// Config holds watcher configuration.
type Config struct {
	Repo        string
	Extension   string
	Debounce    time.Duration
	ExcludeDirs []string
}

func applyDefaults(cfg *Config) {
	if cfg.Extension == "" {
		cfg.Extension = ".py"
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if len(cfg.ExcludeDirs) == 0 {
		cfg.ExcludeDirs = []string{".git", "__pycache__"}
	}
}

// Watcher drives remediation passes from filesystem events.
type Watcher struct {
	cfg      Config
	classify Classifier
	handler  Handler
	log      *slog.Logger
}

// New creates a watcher over cfg.Repo.
func New(cfg Config, cl Classifier, handler Handler, log *slog.Logger) (*Watcher, error) {
	applyDefaults(&cfg)
	if cfg.Repo == "" {
		return nil, fmt.Errorf("watch: repo path required")
	}
	if cl == nil || handler == nil {
		return nil, fmt.Errorf("watch: classifier and handler required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{cfg: cfg, classify: cl, handler: handler, log: log}, nil
}

// Run watches the repository tree until ctx is cancelled. Cancellation
// is a clean stop, not an error.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw); err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.Repo, err)
	}
	w.log.Info("watching for changes", "repo", w.cfg.Repo, "debounce", w.cfg.Debounce)

	batch := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
		if len(batch) == 0 {
			return
		}
		files := make([]string, 0, len(batch))
		for f := range batch {
			files = append(files, f)
		}
		sort.Strings(files)
		clear(batch)
		w.log.Info("change batch ready", "files", len(files))
		w.handler(ctx, files)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if !w.excludedDir(ev.Name) {
						if addErr := fw.Add(ev.Name); addErr != nil {
							w.log.Warn("watch add failed", "dir", ev.Name, "error", addErr)
						}
					}
					continue
				}
			}
			rel, ok := w.candidate(ev)
			if !ok {
				continue
			}
			batch[rel] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.cfg.Debounce)
			}
		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", werr)
		case <-timerC:
			flush()
		}
	}
}

// candidate reports whether an event names a file the scanner would
// select, returning its repo-relative path.
func (w *Watcher) candidate(ev fsnotify.Event) (string, bool) {
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
		return "", false
	}
	if !strings.HasSuffix(ev.Name, w.cfg.Extension) {
		return "", false
	}
	rel, err := filepath.Rel(w.cfg.Repo, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if c := w.classify.Classify(rel); !c.Selected() {
		w.log.Debug("ignoring change", "file", rel, "reason", string(c.Skip))
		return "", false
	}
	return rel, true
}

// addTree registers the repository's directories, pruning excluded ones.
func (w *Watcher) addTree(fw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.cfg.Repo, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.cfg.Repo && w.excludedDir(path) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *Watcher) excludedDir(path string) bool {
	base := filepath.Base(path)
	for _, excluded := range w.cfg.ExcludeDirs {
		if base == excluded {
			return true
		}
	}
	return false
}
